package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/avelar/songforge/internal/domain"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&domain.Profile{}, &domain.GenerationJob{}, &domain.CreditEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedJob(t *testing.T, repo *JobRepository, status domain.JobStatus) *domain.GenerationJob {
	t.Helper()
	job := &domain.GenerationJob{
		ID:     uuid.New().String(),
		TaskID: uuid.New().String(),
		UserID: "user-1",
		Status: status,
		Prompt: "test",
		Tracks: domain.TrackList{},
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return job
}

func TestApplyTransitionForwardOnly(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.JobStatus
		to      domain.JobStatus
		wantErr error
	}{
		{"pending to first_success", domain.JobStatusPending, domain.JobStatusFirstSuccess, nil},
		{"pending to completed", domain.JobStatusPending, domain.JobStatusCompleted, nil},
		{"pending to failed", domain.JobStatusPending, domain.JobStatusFailed, nil},
		{"first_success to completed", domain.JobStatusFirstSuccess, domain.JobStatusCompleted, nil},
		{"first_success to failed", domain.JobStatusFirstSuccess, domain.JobStatusFailed, nil},
		{"completed to first_success", domain.JobStatusCompleted, domain.JobStatusFirstSuccess, domain.ErrStaleTransition},
		{"completed to failed", domain.JobStatusCompleted, domain.JobStatusFailed, domain.ErrStaleTransition},
		{"failed to completed", domain.JobStatusFailed, domain.JobStatusCompleted, domain.ErrStaleTransition},
		{"failed to first_success", domain.JobStatusFailed, domain.JobStatusFirstSuccess, domain.ErrStaleTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewJobRepository(newTestDB(t))
			job := seedJob(t, repo, tt.from)

			err := repo.ApplyTransition(context.Background(), job.TaskID, tt.to, nil, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ApplyTransition(%s -> %s) = %v, want %v", tt.from, tt.to, err, tt.wantErr)
			}

			stored, getErr := repo.GetByTaskID(context.Background(), job.TaskID)
			if getErr != nil {
				t.Fatalf("GetByTaskID failed: %v", getErr)
			}
			wantStatus := tt.to
			if tt.wantErr != nil {
				wantStatus = tt.from
			}
			if stored.Status != wantStatus {
				t.Errorf("stored status = %q, want %q", stored.Status, wantStatus)
			}
		})
	}
}

func TestApplyTransitionSameStatusIsIdempotent(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	job := seedJob(t, repo, domain.JobStatusPending)

	tracks := domain.TrackList{{ID: "tr-1", StreamAudioURL: "https://cdn/s1"}}
	if err := repo.ApplyTransition(context.Background(), job.TaskID, domain.JobStatusFirstSuccess, tracks, ""); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	// Duplicate webhook delivery of the same state replaces the track list.
	tracks2 := domain.TrackList{{ID: "tr-1", StreamAudioURL: "https://cdn/s2"}}
	if err := repo.ApplyTransition(context.Background(), job.TaskID, domain.JobStatusFirstSuccess, tracks2, ""); err != nil {
		t.Fatalf("duplicate transition failed: %v", err)
	}

	stored, _ := repo.GetByTaskID(context.Background(), job.TaskID)
	if stored.Tracks[0].StreamAudioURL != "https://cdn/s2" {
		t.Errorf("tracks = %+v, want replaced list", stored.Tracks)
	}
}

func TestApplyTransitionUnknownTask(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	err := repo.ApplyTransition(context.Background(), "missing", domain.JobStatusCompleted, nil, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyTransitionKeepsTracksWhenNil(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	job := seedJob(t, repo, domain.JobStatusPending)

	tracks := domain.TrackList{{ID: "tr-1", AudioURL: "https://cdn/a"}}
	if err := repo.ApplyTransition(context.Background(), job.TaskID, domain.JobStatusFirstSuccess, tracks, ""); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	// A failed transition with no track payload must not wipe stored tracks.
	if err := repo.ApplyTransition(context.Background(), job.TaskID, domain.JobStatusFailed, nil, "provider error"); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	stored, _ := repo.GetByTaskID(context.Background(), job.TaskID)
	if len(stored.Tracks) != 1 || stored.Tracks[0].AudioURL != "https://cdn/a" {
		t.Errorf("tracks = %+v, want preserved", stored.Tracks)
	}
	if stored.ErrorMessage != "provider error" {
		t.Errorf("error message = %q", stored.ErrorMessage)
	}
}

func TestMarkArchivedOnlyCompleted(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	completed := seedJob(t, repo, domain.JobStatusCompleted)
	pending := seedJob(t, repo, domain.JobStatusPending)

	tracks := domain.TrackList{{ID: "tr-1", ArchiveAudioURL: "https://bucket/a"}}
	if err := repo.MarkArchived(context.Background(), completed.TaskID, tracks); err != nil {
		t.Fatalf("MarkArchived failed: %v", err)
	}
	if err := repo.MarkArchived(context.Background(), pending.TaskID, tracks); !errors.Is(err, domain.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition for pending job, got %v", err)
	}

	unarchived, err := repo.ListCompletedUnarchived(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListCompletedUnarchived failed: %v", err)
	}
	if len(unarchived) != 0 {
		t.Errorf("unarchived = %d jobs, want 0", len(unarchived))
	}
}

func TestCountCompletedSince(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	seedJob(t, repo, domain.JobStatusCompleted)
	seedJob(t, repo, domain.JobStatusCompleted)
	seedJob(t, repo, domain.JobStatusFailed)
	seedJob(t, repo, domain.JobStatusPending)

	count, err := repo.CountCompletedSince(context.Background(), "user-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountCompletedSince failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (failed and pending jobs are free)", count)
	}

	count, err = repo.CountCompletedSince(context.Background(), "user-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CountCompletedSince failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 for a future window", count)
	}
}
