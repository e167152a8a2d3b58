package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avelar/songforge/internal/domain"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/provider/suno"
	"github.com/avelar/songforge/internal/repository"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testEnv wires a generation service against an in-memory database and a fake
// provider server.
type testEnv struct {
	db       *gorm.DB
	jobs     *repository.JobRepository
	profiles *repository.ProfileRepository
	service  *GenerationService
	quota    *QuotaService
	events   *EventHub
	provider *httptest.Server

	// providerHandler is swapped per test to shape provider responses.
	providerHandler http.HandlerFunc
}

func newTestEnv(t *testing.T) *testEnv {
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

	env := &testEnv{db: db}

	env.provider = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if env.providerHandler != nil {
			env.providerHandler(w, r)
			return
		}
		// Default: accept any submission.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 200,
			"msg":  "success",
			"data": map[string]string{"task_id": "task-default"},
		})
	}))
	t.Cleanup(env.provider.Close)

	env.jobs = repository.NewJobRepository(db)
	env.profiles = repository.NewProfileRepository(db)
	env.quota = NewQuotaService(env.jobs, env.profiles, 1)
	env.events = NewEventHub()

	client := suno.NewClient(&suno.Config{
		BaseURL:     env.provider.URL,
		APIKey:      "test-key",
		CallbackURL: "http://localhost/callback",
	})

	env.service = NewGenerationService(
		env.jobs, env.profiles, client, env.quota, env.events,
		logger.NewDefault(), &GenerationConfig{DefaultModel: "V4"},
	)

	return env
}

func (env *testEnv) createProfile(t *testing.T, monthlyLimit, credits int) *domain.Profile {
	t.Helper()
	profile := &domain.Profile{
		ID:            uuid.New().String(),
		APIKey:        uuid.New().String(),
		DisplayName:   "test user",
		MonthlyLimit:  monthlyLimit,
		CreditBalance: credits,
	}
	if err := env.profiles.Create(context.Background(), profile); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	return profile
}

func (env *testEnv) setProviderTaskID(taskID string) {
	env.providerHandler = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 200,
			"msg":  "success",
			"data": map[string]string{"task_id": taskID},
		})
	}
}

func callbackPayload(taskID, callbackType string, tracks []suno.RawTrack) *suno.CallbackPayload {
	payload := &suno.CallbackPayload{Code: 200, Msg: "success"}
	payload.Data.CallbackType = callbackType
	payload.Data.TaskID = taskID
	payload.Data.Data = tracks
	return payload
}

func TestSubmitCreatesPendingJob(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 0)
	env.setProviderTaskID("task-1")

	job, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "a quiet piano piece"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if job.TaskID != "task-1" {
		t.Errorf("TaskID = %q, want %q", job.TaskID, "task-1")
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("Status = %q, want pending", job.Status)
	}
	if job.Model != "V4" {
		t.Errorf("Model = %q, want default V4", job.Model)
	}

	stored, err := env.jobs.GetByTaskID(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.UserID != profile.ID {
		t.Errorf("UserID = %q, want %q", stored.UserID, profile.ID)
	}
}

func TestSubmitEmptyPromptRejected(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 0)

	if _, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "   "}); err == nil {
		t.Fatal("expected error for blank prompt")
	}
}

func TestCallbackLifecycleToCompleted(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 0)
	env.setProviderTaskID("task-lifecycle")

	if _, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "synthwave"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx := context.Background()

	// Text callback acknowledges without a state change.
	if err := env.service.HandleCallback(ctx, callbackPayload("task-lifecycle", suno.CallbackTypeText, nil)); err != nil {
		t.Fatalf("text callback failed: %v", err)
	}
	job, _ := env.jobs.GetByTaskID(ctx, "task-lifecycle")
	if job.Status != domain.JobStatusPending {
		t.Errorf("after text callback status = %q, want pending", job.Status)
	}

	firstTrack := []suno.RawTrack{{ID: "tr-1", Title: "Neon Drive", SourceStreamAudioURL: "https://cdn/stream/1"}}
	if err := env.service.HandleCallback(ctx, callbackPayload("task-lifecycle", suno.CallbackTypeFirst, firstTrack)); err != nil {
		t.Fatalf("first callback failed: %v", err)
	}
	job, _ = env.jobs.GetByTaskID(ctx, "task-lifecycle")
	if job.Status != domain.JobStatusFirstSuccess {
		t.Errorf("after first callback status = %q, want first_success", job.Status)
	}
	if len(job.Tracks) != 1 || job.Tracks[0].StreamAudioURL != "https://cdn/stream/1" {
		t.Errorf("first callback tracks not normalized: %+v", job.Tracks)
	}

	complete := []suno.RawTrack{
		{ID: "tr-1", Title: "Neon Drive", AudioURL: "https://cdn/audio/1", Duration: 180.5},
		{ID: "tr-2", Title: "Neon Drive (alt)", AudioURL: "https://cdn/audio/2", Duration: 175},
	}
	if err := env.service.HandleCallback(ctx, callbackPayload("task-lifecycle", suno.CallbackTypeComplete, complete)); err != nil {
		t.Fatalf("complete callback failed: %v", err)
	}
	job, _ = env.jobs.GetByTaskID(ctx, "task-lifecycle")
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("after complete callback status = %q, want completed", job.Status)
	}
	if len(job.Tracks) != 2 {
		t.Fatalf("track count = %d, want 2", len(job.Tracks))
	}
	if job.Tracks[0].AudioURL != "https://cdn/audio/1" {
		t.Errorf("track audio URL = %q", job.Tracks[0].AudioURL)
	}
}

func TestOutOfOrderCallbackDoesNotDowngrade(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 0)
	env.setProviderTaskID("task-ooo")

	if _, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "drum and bass"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx := context.Background()
	complete := []suno.RawTrack{{ID: "tr-1", AudioURL: "https://cdn/audio/final"}}
	if err := env.service.HandleCallback(ctx, callbackPayload("task-ooo", suno.CallbackTypeComplete, complete)); err != nil {
		t.Fatalf("complete callback failed: %v", err)
	}

	// A delayed first callback arriving after completion must be dropped.
	stale := []suno.RawTrack{{ID: "tr-1", SourceStreamAudioURL: "https://cdn/stream/old"}}
	err := env.service.HandleCallback(ctx, callbackPayload("task-ooo", suno.CallbackTypeFirst, stale))
	if !errors.Is(err, domain.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}

	job, _ := env.jobs.GetByTaskID(ctx, "task-ooo")
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("status downgraded to %q", job.Status)
	}
	if job.Tracks[0].AudioURL != "https://cdn/audio/final" {
		t.Errorf("tracks overwritten by stale callback: %+v", job.Tracks)
	}
}

func TestErrorCallbackMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 0)
	env.setProviderTaskID("task-err")

	if _, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "glitch hop"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	payload := callbackPayload("task-err", suno.CallbackTypeError, nil)
	payload.Msg = "content policy violation"
	if err := env.service.HandleCallback(context.Background(), payload); err != nil {
		t.Fatalf("error callback failed: %v", err)
	}

	job, _ := env.jobs.GetByTaskID(context.Background(), "task-err")
	if job.Status != domain.JobStatusFailed {
		t.Errorf("status = %q, want failed", job.Status)
	}
	if job.ErrorMessage != "content policy violation" {
		t.Errorf("error message = %q", job.ErrorMessage)
	}
}

func TestCallbackUnknownTaskID(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.HandleCallback(context.Background(), callbackPayload("no-such-task", suno.CallbackTypeComplete, nil))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitProviderFailureRefundsCredit(t *testing.T) {
	env := newTestEnv(t)
	// Monthly limit 0 forces the credit path.
	profile := env.createProfile(t, 0, 3)

	env.providerHandler = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 500, "msg": "internal error",
		})
	}

	if _, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "lofi beats"}); err == nil {
		t.Fatal("expected provider failure")
	}

	fresh, err := env.profiles.GetByID(context.Background(), profile.ID)
	if err != nil {
		t.Fatalf("failed to reload profile: %v", err)
	}
	if fresh.CreditBalance != 3 {
		t.Errorf("credit balance = %d after refund, want 3", fresh.CreditBalance)
	}
}

func TestSubmitQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 0, 0)

	_, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "ambient"})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestStatusOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createProfile(t, 10, 0)
	other := env.createProfile(t, 10, 0)
	env.setProviderTaskID("task-owned")

	if _, err := env.service.Submit(context.Background(), owner, &SubmitRequest{Prompt: "jazz"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := env.service.Status(context.Background(), other, "task-owned"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestStatusRefreshesNonTerminalFromProvider(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 0)

	env.providerHandler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/generate":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 200, "msg": "success",
				"data": map[string]string{"task_id": "task-poll"},
			})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 200, "msg": "success",
				"data": map[string]interface{}{
					"taskId": "task-poll",
					"status": suno.StatusComplete,
					"response": map[string]interface{}{
						"sunoData": []map[string]interface{}{
							{"id": "tr-1", "audio_url": "https://cdn/audio/polled", "title": "Polled"},
						},
					},
				},
			})
		}
	}

	if _, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "orchestral"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job, err := env.service.Status(context.Background(), profile, "task-poll")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("status = %q, want completed after poll refresh", job.Status)
	}
	if len(job.Tracks) != 1 || job.Tracks[0].AudioURL != "https://cdn/audio/polled" {
		t.Errorf("polled tracks not persisted: %+v", job.Tracks)
	}
}

func TestStatusServesPersistedOnProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 0)

	env.providerHandler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/generate" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 200, "msg": "success",
				"data": map[string]string{"task_id": "task-degraded"},
			})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}

	if _, err := env.service.Submit(context.Background(), profile, &SubmitRequest{Prompt: "chiptune"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job, err := env.service.Status(context.Background(), profile, "task-degraded")
	if err != nil {
		t.Fatalf("Status should degrade to persisted state, got: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
}

func TestPublicStatus(t *testing.T) {
	tests := []struct {
		status domain.JobStatus
		want   string
	}{
		{domain.JobStatusPending, "pending"},
		{domain.JobStatusFirstSuccess, "FIRST_SUCCESS"},
		{domain.JobStatusCompleted, "SUCCESS"},
		{domain.JobStatusFailed, "ERROR"},
	}

	for _, tt := range tests {
		if got := PublicStatus(tt.status); got != tt.want {
			t.Errorf("PublicStatus(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
