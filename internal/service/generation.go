package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avelar/songforge/internal/domain"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/provider/suno"
	"github.com/avelar/songforge/internal/repository"
	"github.com/google/uuid"
)

// GenerationService owns the generation job lifecycle: submission to the
// provider, webhook state transitions, and status reads. The persisted job row
// is the single source of truth; both the webhook and the poll refresh write
// through the same monotonic guard.
type GenerationService struct {
	jobs     *repository.JobRepository
	profiles *repository.ProfileRepository
	provider *suno.Client
	quota    *QuotaService
	events   *EventHub
	logger   *logger.Logger
	model    string
}

// GenerationConfig holds configuration for the generation service.
type GenerationConfig struct {
	DefaultModel string
}

// NewGenerationService creates a new generation service.
func NewGenerationService(
	jobs *repository.JobRepository,
	profiles *repository.ProfileRepository,
	provider *suno.Client,
	quota *QuotaService,
	events *EventHub,
	log *logger.Logger,
	cfg *GenerationConfig,
) *GenerationService {
	model := ""
	if cfg != nil {
		model = cfg.DefaultModel
	}
	return &GenerationService{
		jobs:     jobs,
		profiles: profiles,
		provider: provider,
		quota:    quota,
		events:   events,
		logger:   log,
		model:    model,
	}
}

// log returns a logger from context if available, otherwise the service logger.
func (s *GenerationService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// SubmitRequest holds the parameters of a generation submission.
type SubmitRequest struct {
	Prompt       string `json:"prompt" binding:"required"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	Model        string `json:"model"`
	Instrumental bool   `json:"instrumental"`
}

// Submit registers a generation with the provider and persists the pending job
// row. The quota is consumed before the provider call; a provider failure
// refunds any debited credit and persists nothing, so the client simply
// re-submits.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - profile: authenticated account submitting the job.
//   - req: generation parameters.
// Returns:
//   - *domain.GenerationJob: persisted pending job with the provider task ID.
//   - error: domain.ErrQuotaExceeded when no allowance remains, or a wrapped
//     provider/database error.
func (s *GenerationService) Submit(ctx context.Context, profile *domain.Profile, req *SubmitRequest) (*domain.GenerationJob, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt must not be empty")
	}

	model := req.Model
	if model == "" {
		model = s.model
	}

	debited, err := s.quota.Consume(ctx, profile)
	if err != nil {
		return nil, err
	}

	taskID, err := s.provider.Generate(ctx, &suno.GenerateRequest{
		Prompt:       prompt,
		Style:        req.Style,
		Title:        req.Title,
		Model:        model,
		Instrumental: req.Instrumental,
	})
	if err != nil {
		if debited {
			if refundErr := s.quota.Refund(ctx, profile.ID); refundErr != nil {
				s.log(ctx).WithError(refundErr).Error("Failed to refund credit after provider failure")
			}
		}
		return nil, fmt.Errorf("provider submission failed: %w", err)
	}

	job := &domain.GenerationJob{
		ID:           uuid.New().String(),
		TaskID:       taskID,
		UserID:       profile.ID,
		Status:       domain.JobStatusPending,
		Model:        model,
		Prompt:       prompt,
		Style:        req.Style,
		Title:        req.Title,
		Instrumental: req.Instrumental,
		Tracks:       domain.TrackList{},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldTaskID: taskID,
		logger.FieldUserID: profile.ID,
	}).Info("Generation job submitted")

	s.events.Publish(Event{UserID: profile.ID, TaskID: taskID, Status: domain.JobStatusPending})

	return job, nil
}

// HandleCallback applies a provider-pushed state change. Transitions:
// first → first_success with tracks, complete → completed with tracks,
// error or a non-200 code → failed, text → acknowledged without a write.
// Out-of-order deliveries are dropped by the monotonic guard and reported as
// domain.ErrStaleTransition; duplicate deliveries of the same state are
// harmless because the track list is replaced wholesale.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - payload: provider callback body.
// Returns:
//   - error: non-nil if the transition could not be applied; callers still
//     acknowledge the provider regardless.
func (s *GenerationService) HandleCallback(ctx context.Context, payload *suno.CallbackPayload) error {
	taskID := payload.Data.TaskID
	if taskID == "" {
		return fmt.Errorf("callback missing task_id")
	}

	var next domain.JobStatus
	var tracks domain.TrackList
	var errMsg string

	switch {
	case payload.Code != 200:
		next = domain.JobStatusFailed
		errMsg = payload.Msg
		if errMsg == "" {
			errMsg = fmt.Sprintf("provider reported code %d", payload.Code)
		}
	case payload.Data.CallbackType == suno.CallbackTypeError:
		next = domain.JobStatusFailed
		errMsg = payload.Msg
	case payload.Data.CallbackType == suno.CallbackTypeFirst:
		next = domain.JobStatusFirstSuccess
		tracks = suno.NormalizeTracks(payload.Data.Data)
	case payload.Data.CallbackType == suno.CallbackTypeComplete:
		next = domain.JobStatusCompleted
		tracks = suno.NormalizeTracks(payload.Data.Data)
	case payload.Data.CallbackType == suno.CallbackTypeText:
		// Lyrics are ready but no audio yet; nothing to persist.
		s.log(ctx).WithField(logger.FieldTaskID, taskID).Debug("Text callback acknowledged")
		return nil
	default:
		return fmt.Errorf("unknown callback type %q", payload.Data.CallbackType)
	}

	if err := s.jobs.ApplyTransition(ctx, taskID, next, tracks, errMsg); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldTaskID: taskID,
				logger.FieldStatus: string(next),
			}).Warn("Dropped out-of-order callback")
		}
		return err
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldTaskID: taskID,
		logger.FieldStatus: string(next),
	}).Info("Callback applied")

	s.publishTransition(ctx, taskID, next)

	return nil
}

// Status returns the persisted state of a job for its owner. While the job is
// non-terminal the provider is consulted once per call (bounded by the poll
// timeout) and any progress is persisted through the monotonic guard before
// the row is returned; a provider failure degrades to the stored state rather
// than failing the read.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - profile: authenticated caller.
//   - taskID: provider task ID.
// Returns:
//   - *domain.GenerationJob: current job row.
//   - error: domain.ErrNotFound or domain.ErrForbidden on access failures.
func (s *GenerationService) Status(ctx context.Context, profile *domain.Profile, taskID string) (*domain.GenerationJob, error) {
	job, err := s.jobs.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if job.UserID != profile.ID {
		return nil, domain.ErrForbidden
	}

	if job.Status.Terminal() {
		return job, nil
	}

	info, err := s.provider.RecordInfo(ctx, taskID)
	if err != nil {
		s.log(ctx).WithField(logger.FieldTaskID, taskID).WithError(err).Warn("Provider poll failed, serving persisted state")
		return job, nil
	}

	next := suno.MapProviderStatus(info.Status)
	if next == domain.JobStatusPending {
		return job, nil
	}

	var errMsg string
	if next == domain.JobStatusFailed {
		errMsg = "provider reported generation error"
	}

	if err := s.jobs.ApplyTransition(ctx, taskID, next, suno.NormalizeTracks(info.Tracks), errMsg); err != nil {
		if !errors.Is(err, domain.ErrStaleTransition) {
			s.log(ctx).WithField(logger.FieldTaskID, taskID).WithError(err).Error("Failed to persist polled state")
		}
	} else {
		s.publishTransition(ctx, taskID, next)
	}

	return s.jobs.GetByTaskID(ctx, taskID)
}

// List returns a user's jobs, newest first.
func (s *GenerationService) List(ctx context.Context, profile *domain.Profile, limit, offset int) ([]domain.GenerationJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.jobs.ListByUser(ctx, profile.ID, limit, offset)
}

func (s *GenerationService) publishTransition(ctx context.Context, taskID string, status domain.JobStatus) {
	job, err := s.jobs.GetByTaskID(ctx, taskID)
	if err != nil {
		return
	}
	s.events.Publish(Event{UserID: job.UserID, TaskID: taskID, Status: status, TrackCount: len(job.Tracks)})
}

// PublicStatus maps an internal job status to the caller-facing string.
func PublicStatus(status domain.JobStatus) string {
	switch status {
	case domain.JobStatusFirstSuccess:
		return "FIRST_SUCCESS"
	case domain.JobStatusCompleted:
		return "SUCCESS"
	case domain.JobStatusFailed:
		return "ERROR"
	default:
		return "pending"
	}
}
