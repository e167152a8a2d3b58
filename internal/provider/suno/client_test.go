package suno

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateReturnsTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"msg":"success","data":{"task_id":"abc123"}}`))
	}))
	defer srv.Close()

	client := NewClient(&Config{BaseURL: srv.URL, APIKey: "test-key"})
	taskID, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "lofi beats"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if taskID != "abc123" {
		t.Errorf("taskID = %q, want %q", taskID, "abc123")
	}
}

func TestGenerateProviderErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":429,"msg":"credit limit reached"}`))
	}))
	defer srv.Close()

	client := NewClient(&Config{BaseURL: srv.URL})
	if _, err := client.Generate(context.Background(), &GenerateRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error for provider code != 200")
	}
}

// A provider endpoint that never answers must not hang the poll: the call has
// to come back with an error within the configured bound.
func TestRecordInfoTimeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	client := NewClient(&Config{BaseURL: srv.URL, PollTimeout: 200 * time.Millisecond})

	start := time.Now()
	_, err := client.RecordInfo(context.Background(), "abc123")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed > 2*time.Second {
		t.Errorf("poll took %v, expected it to abort near the 200ms bound", elapsed)
	}
}

func TestRecordInfoMapsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("taskId"); got != "abc123" {
			t.Errorf("taskId query = %q, want %q", got, "abc123")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"data":{"taskId":"abc123","status":"complete","response":{"sunoData":[{"id":"t1","source_audio_url":"https://src/a.mp3","title":"Song"}]}}}`))
	}))
	defer srv.Close()

	client := NewClient(&Config{BaseURL: srv.URL})
	info, err := client.RecordInfo(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("RecordInfo failed: %v", err)
	}
	if info.Status != StatusComplete {
		t.Errorf("status = %q, want complete", info.Status)
	}
	if len(info.Tracks) != 1 || info.Tracks[0].SourceAudioURL != "https://src/a.mp3" {
		t.Errorf("unexpected tracks: %+v", info.Tracks)
	}
}
