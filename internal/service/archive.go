package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avelar/songforge/internal/domain"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/repository"
	"github.com/avelar/songforge/internal/storage"
	"github.com/go-resty/resty/v2"
	_ "golang.org/x/image/webp"
)

// ArchiveService re-hosts completed generation media in object storage.
// Provider URLs expire; archiving copies each track's audio and cover image
// into the bucket and rewrites the persisted track list with durable URLs.
type ArchiveService struct {
	jobs      *repository.JobRepository
	storage   storage.ObjectStorage
	discovery *DiscoveryService
	client    *resty.Client
	logger    *logger.Logger
	workers   int
	batchSize int
}

// ArchiveConfig holds configuration for the archive service.
type ArchiveConfig struct {
	Workers   int
	BatchSize int
}

// NewArchiveService creates a new archive service. discovery may be nil when
// similarity indexing is disabled.
func NewArchiveService(
	jobs *repository.JobRepository,
	objectStorage storage.ObjectStorage,
	discovery *DiscoveryService,
	log *logger.Logger,
	cfg *ArchiveConfig,
) *ArchiveService {
	workers := 4
	batchSize := 20
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
	}

	client := resty.New()
	client.SetTimeout(2 * time.Minute)
	client.SetRetryCount(2)

	return &ArchiveService{
		jobs:      jobs,
		storage:   objectStorage,
		discovery: discovery,
		client:    client,
		logger:    log,
		workers:   workers,
		batchSize: batchSize,
	}
}

// log returns a logger from context if available, otherwise returns the service logger
func (s *ArchiveService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// ArchiveStats holds statistics for one archiver pass.
type ArchiveStats struct {
	TotalJobs    int64
	ArchivedJobs int64
	FailedJobs   int64
	StartTime    time.Time
	EndTime      time.Time
}

// RunOnce archives one batch of completed, not-yet-archived jobs using a
// worker pool. It returns once the batch is drained; an empty batch returns
// immediately with zero stats.
func (s *ArchiveService) RunOnce(ctx context.Context) (*ArchiveStats, error) {
	stats := &ArchiveStats{StartTime: time.Now()}

	jobs, err := s.jobs.ListCompletedUnarchived(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list unarchived jobs: %w", err)
	}
	if len(jobs) == 0 {
		stats.EndTime = time.Now()
		return stats, nil
	}

	stats.TotalJobs = int64(len(jobs))

	jobsChan := make(chan *domain.GenerationJob, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				if ctx.Err() != nil {
					return
				}
				if err := s.archiveJob(ctx, job); err != nil {
					atomic.AddInt64(&stats.FailedJobs, 1)
					s.log(ctx).WithField(logger.FieldTaskID, job.TaskID).WithError(err).Error("Failed to archive job")
					continue
				}
				atomic.AddInt64(&stats.ArchivedJobs, 1)
			}
		}()
	}

	for i := range jobs {
		select {
		case jobsChan <- &jobs[i]:
		case <-ctx.Done():
		}
	}
	close(jobsChan)
	wg.Wait()

	stats.EndTime = time.Now()

	s.log(ctx).WithFields(logger.Fields{
		"total":    stats.TotalJobs,
		"archived": stats.ArchivedJobs,
		"failed":   stats.FailedJobs,
		"duration": stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Archive pass completed")

	return stats, nil
}

// Run executes archive passes on an interval until the context is cancelled.
func (s *ArchiveService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log(ctx).WithError(err).Error("Archive pass failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// archiveJob copies every track's media into object storage and marks the job
// archived with the rewritten track list. The provider URLs stay on the track
// so callers can prefer either.
func (s *ArchiveService) archiveJob(ctx context.Context, job *domain.GenerationJob) error {
	tracks := make(domain.TrackList, len(job.Tracks))
	copy(tracks, job.Tracks)

	for i := range tracks {
		track := &tracks[i]

		if track.AudioURL != "" {
			key := archiveKey(job.TaskID, track.ID, track.AudioURL, "audio", ".mp3")
			if err := s.copyObject(ctx, track.AudioURL, key, "audio/mpeg"); err != nil {
				return fmt.Errorf("audio for track %s: %w", track.ID, err)
			}
			track.ArchiveAudioURL = s.storage.GetURL(key)
		}

		if track.ImageURL != "" {
			data, contentType, err := s.download(ctx, track.ImageURL)
			if err != nil {
				return fmt.Errorf("cover for track %s: %w", track.ID, err)
			}
			if w, h, ok := probeImageSize(data); ok {
				track.ImageWidth = w
				track.ImageHeight = h
			}
			key := archiveKey(job.TaskID, track.ID, track.ImageURL, "covers", ".jpeg")
			if err := s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
				return fmt.Errorf("cover upload for track %s: %w", track.ID, err)
			}
			track.ArchiveImageURL = s.storage.GetURL(key)
		}
	}

	if err := s.jobs.MarkArchived(ctx, job.TaskID, tracks); err != nil {
		return err
	}

	if s.discovery != nil {
		job.Tracks = tracks
		if err := s.discovery.IndexJob(ctx, job); err != nil {
			// Indexing lags archiving; the next search simply misses these
			// tracks until a reindex.
			s.log(ctx).WithField(logger.FieldTaskID, job.TaskID).WithError(err).Warn("Failed to index archived tracks")
		}
	}

	return nil
}

// copyObject downloads a remote object and re-uploads it into the bucket.
func (s *ArchiveService) copyObject(ctx context.Context, url, key, fallbackContentType string) error {
	data, contentType, err := s.download(ctx, url)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = fallbackContentType
	}
	return s.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (s *ArchiveService) download(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, "", fmt.Errorf("download failed: status %d", resp.StatusCode())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// archiveKey builds the bucket key for a track asset, keeping the source
// extension when it has one.
func archiveKey(taskID, trackID, sourceURL, prefix, fallbackExt string) string {
	ext := fallbackExt
	if u := strings.SplitN(sourceURL, "?", 2)[0]; u != "" {
		if e := path.Ext(u); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return fmt.Sprintf("%s/%s/%s%s", prefix, taskID, trackID, ext)
}

// probeImageSize decodes only the image header to read its dimensions.
// Supported formats are jpeg, png, gif and webp.
func probeImageSize(data []byte) (int, int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
