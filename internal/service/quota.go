package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avelar/songforge/internal/domain"
	"github.com/avelar/songforge/internal/repository"
)

// QuotaService computes generation allowance from the monthly free tier and
// the purchased credit balance. Only completed jobs count against the monthly
// limit; failed generations are free retries.
type QuotaService struct {
	jobs       *repository.JobRepository
	profiles   *repository.ProfileRepository
	creditCost int
}

// NewQuotaService creates a new quota service. creditCost is the number of
// credits debited per generation once the monthly allowance is exhausted.
func NewQuotaService(jobs *repository.JobRepository, profiles *repository.ProfileRepository, creditCost int) *QuotaService {
	if creditCost <= 0 {
		creditCost = 1
	}
	return &QuotaService{jobs: jobs, profiles: profiles, creditCost: creditCost}
}

// Status reports the caller's current allowance. Remaining is clamped to zero
// so a raised count (or a lowered limit) never produces a negative value.
func (s *QuotaService) Status(ctx context.Context, profile *domain.Profile) (*domain.QuotaStatus, error) {
	used, err := s.jobs.CountCompletedSince(ctx, profile.ID, startOfMonth(time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to count completed jobs: %w", err)
	}

	remaining := int64(profile.MonthlyLimit) - used
	if remaining < 0 {
		remaining = 0
	}

	// Re-read the balance; the profile attached by auth middleware may be
	// stale after a debit in the same request.
	fresh, err := s.profiles.GetByID(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	return &domain.QuotaStatus{
		MonthlyLimit:  profile.MonthlyLimit,
		UsedThisMonth: used,
		Remaining:     remaining,
		CreditBalance: fresh.CreditBalance,
	}, nil
}

// Consume authorizes one generation. If the monthly allowance still has room
// nothing is debited; otherwise credits are debited atomically. The returned
// bool reports whether a debit happened, so a failed provider call can be
// refunded. The ledger entry carries no task ID because the debit happens
// before the provider assigns one.
func (s *QuotaService) Consume(ctx context.Context, profile *domain.Profile) (bool, error) {
	used, err := s.jobs.CountCompletedSince(ctx, profile.ID, startOfMonth(time.Now().UTC()))
	if err != nil {
		return false, fmt.Errorf("failed to count completed jobs: %w", err)
	}
	if used < int64(profile.MonthlyLimit) {
		return false, nil
	}

	if err := s.profiles.DebitCredits(ctx, profile.ID, s.creditCost, ""); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return false, domain.ErrQuotaExceeded
		}
		return false, err
	}
	return true, nil
}

// Refund returns a previously debited generation credit.
func (s *QuotaService) Refund(ctx context.Context, profileID string) error {
	return s.profiles.GrantCredits(ctx, profileID, s.creditCost)
}

// startOfMonth truncates t to midnight on the first day of its month.
func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
