package domain

import "time"

// Profile represents an account on the platform. The API key is the bearer
// credential presented by clients; the monthly limit and credit balance back
// the generation quota.
type Profile struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	APIKey        string    `gorm:"type:text;not null;uniqueIndex:idx_profiles_api_key" json:"-"`
	DisplayName   string    `gorm:"type:text" json:"display_name"`
	MonthlyLimit  int       `gorm:"default:10" json:"monthly_limit"`
	CreditBalance int       `gorm:"default:0" json:"credit_balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Profile) TableName() string {
	return "profiles"
}

// CreditEntryType distinguishes ledger movements.
type CreditEntryType string

const (
	CreditEntryDebit CreditEntryType = "debit"
	CreditEntryGrant CreditEntryType = "grant"
)

// CreditEntry is an append-only ledger row recording a single credit movement.
// The balance itself lives on Profile and is only changed through guarded,
// atomic updates; entries exist for auditability.
type CreditEntry struct {
	ID        string          `gorm:"type:text;primaryKey" json:"id"`
	UserID    string          `gorm:"type:text;not null;index:idx_credit_entries_user" json:"user_id"`
	Type      CreditEntryType `gorm:"type:text;not null" json:"type"`
	Amount    int             `gorm:"not null" json:"amount"`
	TaskID    string          `gorm:"type:text" json:"task_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName returns the database table name for CreditEntry.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (CreditEntry) TableName() string {
	return "credit_entries"
}

// QuotaStatus is the caller-facing view of an account's generation allowance.
// UsedThisMonth is derived by counting completed jobs since the start of the
// current month; Remaining is clamped at zero.
type QuotaStatus struct {
	MonthlyLimit  int   `json:"monthly_limit"`
	UsedThisMonth int64 `json:"used_this_month"`
	Remaining     int64 `json:"remaining"`
	CreditBalance int   `json:"credit_balance"`
}
