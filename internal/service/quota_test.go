package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avelar/songforge/internal/domain"
	"github.com/google/uuid"
)

func seedCompletedJobs(t *testing.T, env *testEnv, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		job := &domain.GenerationJob{
			ID:     uuid.New().String(),
			TaskID: uuid.New().String(),
			UserID: userID,
			Status: domain.JobStatusCompleted,
			Prompt: "seed",
			Tracks: domain.TrackList{},
		}
		if err := env.jobs.Create(context.Background(), job); err != nil {
			t.Fatalf("failed to seed job: %v", err)
		}
	}
}

func TestQuotaStatusCounting(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 5)
	seedCompletedJobs(t, env, profile.ID, 3)

	status, err := env.quota.Status(context.Background(), profile)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	if status.UsedThisMonth != 3 {
		t.Errorf("UsedThisMonth = %d, want 3", status.UsedThisMonth)
	}
	if status.Remaining != 7 {
		t.Errorf("Remaining = %d, want 7", status.Remaining)
	}
	if status.CreditBalance != 5 {
		t.Errorf("CreditBalance = %d, want 5", status.CreditBalance)
	}
}

func TestQuotaRemainingClampedAtZero(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 2, 0)
	// More completions than the limit, as after an admin lowered it.
	seedCompletedJobs(t, env, profile.ID, 5)

	status, err := env.quota.Status(context.Background(), profile)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0 (clamped)", status.Remaining)
	}
	if status.UsedThisMonth != 5 {
		t.Errorf("UsedThisMonth = %d, want 5", status.UsedThisMonth)
	}
}

func TestQuotaOnlyCountsOwnJobs(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 0)
	other := env.createProfile(t, 10, 0)
	seedCompletedJobs(t, env, other.ID, 4)

	status, err := env.quota.Status(context.Background(), profile)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.UsedThisMonth != 0 {
		t.Errorf("UsedThisMonth = %d, want 0", status.UsedThisMonth)
	}
}

func TestConsumeWithinMonthlyLimitIsFree(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 10, 2)
	seedCompletedJobs(t, env, profile.ID, 9)

	debited, err := env.quota.Consume(context.Background(), profile)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if debited {
		t.Error("Consume debited credits while monthly allowance remained")
	}

	fresh, _ := env.profiles.GetByID(context.Background(), profile.ID)
	if fresh.CreditBalance != 2 {
		t.Errorf("CreditBalance = %d, want untouched 2", fresh.CreditBalance)
	}
}

func TestConsumeDebitsAfterLimitExhausted(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 2, 3)
	seedCompletedJobs(t, env, profile.ID, 2)

	debited, err := env.quota.Consume(context.Background(), profile)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !debited {
		t.Fatal("expected a credit debit")
	}

	fresh, _ := env.profiles.GetByID(context.Background(), profile.ID)
	if fresh.CreditBalance != 2 {
		t.Errorf("CreditBalance = %d, want 2", fresh.CreditBalance)
	}

	entries, err := env.profiles.ListCreditEntries(context.Background(), profile.ID, 10)
	if err != nil {
		t.Fatalf("ListCreditEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != domain.CreditEntryDebit {
		t.Errorf("ledger entries = %+v, want one debit", entries)
	}
}

func TestConsumeExhaustedQuotaAndCredits(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 0, 0)

	_, err := env.quota.Consume(context.Background(), profile)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestRefundRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	profile := env.createProfile(t, 0, 1)

	if _, err := env.quota.Consume(context.Background(), profile); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if err := env.quota.Refund(context.Background(), profile.ID); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	fresh, _ := env.profiles.GetByID(context.Background(), profile.ID)
	if fresh.CreditBalance != 1 {
		t.Errorf("CreditBalance = %d, want 1", fresh.CreditBalance)
	}
}

func TestStartOfMonth(t *testing.T) {
	in := time.Date(2025, time.March, 17, 14, 33, 12, 500, time.UTC)
	got := startOfMonth(in)
	want := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("startOfMonth = %v, want %v", got, want)
	}
}
