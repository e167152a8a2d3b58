package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avelar/songforge/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProfileRepository handles account and credit ledger operations.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProfileRepository: repository instance bound to db.
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts a new profile record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - profile: profile record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// GetByID retrieves a profile by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: profile ID.
// Returns:
//   - *domain.Profile: profile record if found.
//   - error: domain.ErrNotFound if no row matches.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// GetByAPIKey retrieves a profile by its API key. Used by the auth middleware.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - apiKey: bearer credential presented by the client.
// Returns:
//   - *domain.Profile: profile record if found.
//   - error: domain.ErrNotFound if no row matches.
func (r *ProfileRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.db.WithContext(ctx).First(&profile, "api_key = ?", apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// DebitCredits atomically deducts credits from a profile and records a ledger
// entry. The balance check and the deduction are one guarded UPDATE, so two
// concurrent debits can never both succeed on an insufficient balance.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: profile to debit.
//   - amount: credits to deduct; must be positive.
//   - taskID: generation task the debit pays for, recorded on the ledger entry.
// Returns:
//   - error: domain.ErrInsufficientCredits if the balance is too low.
func (r *ProfileRepository) DebitCredits(ctx context.Context, userID string, amount int, taskID string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND credit_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"credit_balance": gorm.Expr("credit_balance - ?", amount),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInsufficientCredits
	}

	entry := &domain.CreditEntry{
		ID:     uuid.New().String(),
		UserID: userID,
		Type:   domain.CreditEntryDebit,
		Amount: amount,
		TaskID: taskID,
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// GrantCredits adds credits to a profile and records a ledger entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: profile to credit.
//   - amount: credits to add; must be positive.
// Returns:
//   - error: non-nil if the update fails.
func (r *ProfileRepository) GrantCredits(ctx context.Context, userID string, amount int) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"credit_balance": gorm.Expr("credit_balance + ?", amount),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}

	entry := &domain.CreditEntry{
		ID:     uuid.New().String(),
		UserID: userID,
		Type:   domain.CreditEntryGrant,
		Amount: amount,
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListCreditEntries retrieves a user's ledger entries, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning account ID.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.CreditEntry: matching ledger rows.
//   - error: non-nil if the query fails.
func (r *ProfileRepository) ListCreditEntries(ctx context.Context, userID string, limit int) ([]domain.CreditEntry, error) {
	var entries []domain.CreditEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
