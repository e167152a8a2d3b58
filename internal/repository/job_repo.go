package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avelar/songforge/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles generation job data operations.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new generation job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails (including a duplicate task ID).
func (r *JobRepository) Create(ctx context.Context, job *domain.GenerationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByTaskID retrieves a job by its provider-assigned task ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: provider task ID.
// Returns:
//   - *domain.GenerationJob: job record if found.
//   - error: domain.ErrNotFound if no row matches; other errors otherwise.
func (r *JobRepository) GetByTaskID(ctx context.Context, taskID string) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	if err := r.db.WithContext(ctx).First(&job, "task_id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// allowedPriorStatuses returns the set of statuses a row may hold for a write
// of next to be applied. Transitions never decrease the status rank and never
// leave a terminal state; rewriting the same non-terminal status is permitted
// because track payloads are replaced wholesale, so duplicate deliveries are
// harmless.
func allowedPriorStatuses(next domain.JobStatus) []domain.JobStatus {
	switch next {
	case domain.JobStatusFirstSuccess:
		return []domain.JobStatus{domain.JobStatusPending, domain.JobStatusFirstSuccess}
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		return []domain.JobStatus{domain.JobStatusPending, domain.JobStatusFirstSuccess}
	default:
		return []domain.JobStatus{domain.JobStatusPending}
	}
}

// ApplyTransition writes a status change through the monotonic guard. The
// UPDATE carries the allowed prior statuses in its WHERE clause, so a late or
// out-of-order delivery (e.g. a stale pending after completed) matches zero
// rows instead of downgrading the job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: provider task ID keying the row.
//   - next: status to write.
//   - tracks: normalized tracks to store; nil leaves the column untouched.
//   - errMsg: error message to store; empty leaves the column untouched.
// Returns:
//   - error: domain.ErrNotFound if no such job, domain.ErrStaleTransition if
//     the guard rejected the write, other errors on database failure.
func (r *JobRepository) ApplyTransition(ctx context.Context, taskID string, next domain.JobStatus, tracks domain.TrackList, errMsg string) error {
	updates := map[string]interface{}{
		"status":     next,
		"updated_at": time.Now(),
	}
	if tracks != nil {
		updates["tracks"] = tracks
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}

	res := r.db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("task_id = ? AND status IN ?", taskID, allowedPriorStatuses(next)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish "no such job" from "guard rejected the write".
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.GenerationJob{}).
			Where("task_id = ?", taskID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrStaleTransition
	}
	return nil
}

// CountCompletedSince counts a user's completed jobs created at or after the
// given time. This backs the derived monthly usage counter.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning account ID.
//   - since: inclusive lower bound on created_at.
// Returns:
//   - int64: number of matching rows.
//   - error: non-nil if the query fails.
func (r *JobRepository) CountCompletedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.GenerationJob{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, domain.JobStatusCompleted, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListByUser retrieves a user's jobs, newest first, with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning account ID.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.GenerationJob: matching job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.GenerationJob, error) {
	var jobs []domain.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListCompletedUnarchived retrieves completed jobs whose media still lives on
// provider URLs. The archiver drains this set.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.GenerationJob: matching job records, oldest first.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListCompletedUnarchived(ctx context.Context, limit int) ([]domain.GenerationJob, error) {
	var jobs []domain.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND archived = ?", domain.JobStatusCompleted, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkArchived stores re-hosted track URLs and flags the job as archived. The
// write is guarded on the completed status so a failed row can never be
// resurrected by a slow archiver.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: provider task ID keying the row.
//   - tracks: track list with archive URLs filled in.
// Returns:
//   - error: domain.ErrStaleTransition if the row is no longer completed.
func (r *JobRepository) MarkArchived(ctx context.Context, taskID string, tracks domain.TrackList) error {
	res := r.db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("task_id = ? AND status = ?", taskID, domain.JobStatusCompleted).
		Updates(map[string]interface{}{
			"tracks":     tracks,
			"archived":   true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// ListCompletedByTaskIDs retrieves completed jobs for a set of task IDs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskIDs: provider task IDs to look up.
// Returns:
//   - []domain.GenerationJob: matching job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListCompletedByTaskIDs(ctx context.Context, taskIDs []string) ([]domain.GenerationJob, error) {
	if len(taskIDs) == 0 {
		return []domain.GenerationJob{}, nil
	}
	var jobs []domain.GenerationJob
	if err := r.db.WithContext(ctx).
		Where("task_id IN ? AND status = ?", taskIDs, domain.JobStatusCompleted).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
