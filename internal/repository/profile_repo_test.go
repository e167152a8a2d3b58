package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/avelar/songforge/internal/domain"
	"github.com/google/uuid"
)

func seedProfile(t *testing.T, repo *ProfileRepository, credits int) *domain.Profile {
	t.Helper()
	profile := &domain.Profile{
		ID:            uuid.New().String(),
		APIKey:        uuid.New().String(),
		DisplayName:   "test",
		MonthlyLimit:  10,
		CreditBalance: credits,
	}
	if err := repo.Create(context.Background(), profile); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	return profile
}

func TestDebitCreditsGuardsBalance(t *testing.T) {
	repo := NewProfileRepository(newTestDB(t))
	profile := seedProfile(t, repo, 2)

	ctx := context.Background()

	if err := repo.DebitCredits(ctx, profile.ID, 1, "task-1"); err != nil {
		t.Fatalf("first debit failed: %v", err)
	}
	if err := repo.DebitCredits(ctx, profile.ID, 1, "task-2"); err != nil {
		t.Fatalf("second debit failed: %v", err)
	}
	if err := repo.DebitCredits(ctx, profile.ID, 1, "task-3"); !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	fresh, err := repo.GetByID(ctx, profile.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fresh.CreditBalance != 0 {
		t.Errorf("balance = %d, want 0", fresh.CreditBalance)
	}

	entries, err := repo.ListCreditEntries(ctx, profile.ID, 10)
	if err != nil {
		t.Fatalf("ListCreditEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("ledger entries = %d, want 2 (no entry for the refused debit)", len(entries))
	}
}

func TestDebitCreditsOversizedAmount(t *testing.T) {
	repo := NewProfileRepository(newTestDB(t))
	profile := seedProfile(t, repo, 3)

	err := repo.DebitCredits(context.Background(), profile.ID, 5, "task-1")
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	fresh, _ := repo.GetByID(context.Background(), profile.ID)
	if fresh.CreditBalance != 3 {
		t.Errorf("balance = %d, want untouched 3", fresh.CreditBalance)
	}
}

func TestGrantCredits(t *testing.T) {
	repo := NewProfileRepository(newTestDB(t))
	profile := seedProfile(t, repo, 0)

	if err := repo.GrantCredits(context.Background(), profile.ID, 5); err != nil {
		t.Fatalf("GrantCredits failed: %v", err)
	}

	fresh, _ := repo.GetByID(context.Background(), profile.ID)
	if fresh.CreditBalance != 5 {
		t.Errorf("balance = %d, want 5", fresh.CreditBalance)
	}

	if err := repo.GrantCredits(context.Background(), "missing", 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByAPIKey(t *testing.T) {
	repo := NewProfileRepository(newTestDB(t))
	profile := seedProfile(t, repo, 0)

	found, err := repo.GetByAPIKey(context.Background(), profile.APIKey)
	if err != nil {
		t.Fatalf("GetByAPIKey failed: %v", err)
	}
	if found.ID != profile.ID {
		t.Errorf("resolved profile %q, want %q", found.ID, profile.ID)
	}

	if _, err := repo.GetByAPIKey(context.Background(), "bogus"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
