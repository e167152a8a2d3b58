package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/avelar/songforge/internal/domain"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/repository"
	"github.com/google/uuid"
)

// DiscoveryService indexes completed tracks into the vector store and serves
// similarity queries over them. Indexing is best-effort: discovery lags behind
// generation and a failed upsert never affects the job lifecycle.
type DiscoveryService struct {
	jobs           *repository.JobRepository
	vectors        *repository.VectorRepository
	embedder       *EmbeddingService
	logger         *logger.Logger
	scoreThreshold float32
	topK           int
}

// DiscoveryConfig holds configuration for the discovery service.
type DiscoveryConfig struct {
	ScoreThreshold float32
	TopK           int
}

// NewDiscoveryService creates a new discovery service.
func NewDiscoveryService(
	jobs *repository.JobRepository,
	vectors *repository.VectorRepository,
	embedder *EmbeddingService,
	log *logger.Logger,
	cfg *DiscoveryConfig,
) *DiscoveryService {
	topK := 10
	var threshold float32
	if cfg != nil {
		if cfg.TopK > 0 {
			topK = cfg.TopK
		}
		threshold = cfg.ScoreThreshold
	}
	return &DiscoveryService{
		jobs:           jobs,
		vectors:        vectors,
		embedder:       embedder,
		logger:         log,
		scoreThreshold: threshold,
		topK:           topK,
	}
}

// trackPointID derives a stable point ID from a track so re-indexing the same
// track overwrites its previous vector.
func trackPointID(trackID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("track:"+trackID)).String()
}

// trackEmbedText builds the text that represents a track in vector space.
func trackEmbedText(job *domain.GenerationJob, track *domain.NormalizedTrack) string {
	parts := make([]string, 0, 3)
	if track.Title != "" {
		parts = append(parts, track.Title)
	}
	if track.Tags != "" {
		parts = append(parts, track.Tags)
	}
	if job.Prompt != "" {
		parts = append(parts, job.Prompt)
	}
	return strings.Join(parts, "\n")
}

// IndexJob embeds and upserts every track of a completed job. Tracks whose
// embed text is empty are skipped.
func (s *DiscoveryService) IndexJob(ctx context.Context, job *domain.GenerationJob) error {
	texts := make([]string, 0, len(job.Tracks))
	tracks := make([]*domain.NormalizedTrack, 0, len(job.Tracks))
	for i := range job.Tracks {
		track := &job.Tracks[i]
		text := trackEmbedText(job, track)
		if text == "" || track.ID == "" {
			continue
		}
		texts = append(texts, text)
		tracks = append(tracks, track)
	}
	if len(texts) == 0 {
		return nil
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed tracks: %w", err)
	}

	for i, track := range tracks {
		audioURL := track.AudioURL
		if track.ArchiveAudioURL != "" {
			audioURL = track.ArchiveAudioURL
		}
		payload := &repository.TrackPayload{
			TaskID:    job.TaskID,
			TrackID:   track.ID,
			Title:     track.Title,
			Tags:      track.Tags,
			ModelName: track.ModelName,
			AudioURL:  audioURL,
		}
		if err := s.vectors.Upsert(ctx, trackPointID(track.ID), embeddings[i], payload); err != nil {
			return fmt.Errorf("failed to index track %s: %w", track.ID, err)
		}
	}

	s.logger.WithFields(logger.Fields{
		logger.FieldTaskID: job.TaskID,
		logger.FieldCount:  len(tracks),
	}).Debug("Indexed job tracks")

	return nil
}

// SimilarTrack is one similarity hit returned to callers.
type SimilarTrack struct {
	TaskID    string  `json:"task_id"`
	TrackID   string  `json:"track_id"`
	Title     string  `json:"title"`
	Tags      string  `json:"tags"`
	ModelName string  `json:"model_name"`
	AudioURL  string  `json:"audio_url"`
	Score     float32 `json:"score"`
}

// Search embeds a free-text query and returns the closest indexed tracks,
// optionally restricted to one provider model. Hits below the configured
// score threshold are dropped.
func (s *DiscoveryService) Search(ctx context.Context, query, modelName string, limit int) ([]SimilarTrack, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if limit <= 0 || limit > 50 {
		limit = s.topK
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return s.search(ctx, vector, modelName, limit, "")
}

// SimilarToTrack returns tracks close to an already indexed track, excluding
// the track itself.
func (s *DiscoveryService) SimilarToTrack(ctx context.Context, taskID, trackID string, limit int) ([]SimilarTrack, error) {
	if limit <= 0 || limit > 50 {
		limit = s.topK
	}

	job, err := s.jobs.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var track *domain.NormalizedTrack
	for i := range job.Tracks {
		if job.Tracks[i].ID == trackID {
			track = &job.Tracks[i]
			break
		}
	}
	if track == nil {
		return nil, domain.ErrNotFound
	}

	text := trackEmbedText(job, track)
	if text == "" {
		return nil, domain.ErrNotFound
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed track: %w", err)
	}

	// Request one extra hit because the track itself is its own best match.
	hits, err := s.search(ctx, vector, "", limit+1, trackID)
	if err != nil {
		return nil, err
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *DiscoveryService) search(ctx context.Context, vector []float32, modelName string, limit int, excludeTrackID string) ([]SimilarTrack, error) {
	results, err := s.vectors.Search(ctx, vector, limit, modelName)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]SimilarTrack, 0, len(results))
	for _, res := range results {
		if res.Payload == nil || res.Score < s.scoreThreshold {
			continue
		}
		if excludeTrackID != "" && res.Payload.TrackID == excludeTrackID {
			continue
		}
		hits = append(hits, SimilarTrack{
			TaskID:    res.Payload.TaskID,
			TrackID:   res.Payload.TrackID,
			Title:     res.Payload.Title,
			Tags:      res.Payload.Tags,
			ModelName: res.Payload.ModelName,
			AudioURL:  res.Payload.AudioURL,
			Score:     res.Score,
		})
	}
	return hits, nil
}
