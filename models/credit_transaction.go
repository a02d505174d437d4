package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditTransactionType represents the type of a credit ledger entry
type CreditTransactionType string

const (
	CreditTransactionTypePurchase    CreditTransactionType = "purchase"     // Credits bought through billing
	CreditTransactionTypeAdminAdd    CreditTransactionType = "admin_add"    // Manual grant by an operator
	CreditTransactionTypeAdminDeduct CreditTransactionType = "admin_deduct" // Manual deduction by an operator
	CreditTransactionTypeUsage       CreditTransactionType = "usage"        // One successful send consuming a credit
	CreditTransactionTypeRefund      CreditTransactionType = "refund"       // Refund of a failed purchase or send
	CreditTransactionTypeBonus       CreditTransactionType = "bonus"        // Promotional grant
	CreditTransactionTypeTransfer    CreditTransactionType = "transfer"     // Account-to-account transfer leg
	CreditTransactionTypeExpiry      CreditTransactionType = "expiry"       // Credits voided at plan expiry
)

// CreditTransaction is an immutable row in the per-account credit ledger.
// Rows are only ever inserted; the denormalized counters on Account change in
// the same transaction as the insert. Invariant: BalanceAfter equals
// BalanceBefore + Amount on every row.
type CreditTransaction struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	AccountID uint  `gorm:"not null;index" json:"account_id"`
	ActorID   *uint `gorm:"index" json:"actor_id,omitempty"` // Operator who applied a manual adjustment

	Type   CreditTransactionType `gorm:"type:varchar(20);not null;index" json:"type"`
	Amount int64                 `gorm:"not null" json:"amount"` // Signed: negative for deductions

	BalanceBefore int64 `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64 `gorm:"not null" json:"balance_after"`

	Description string          `gorm:"type:text" json:"description"`
	Metadata    json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`

	// Relationships
	Account Account `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"account,omitempty"`
}

// CreditTransactionFilter represents filter criteria for ledger queries
type CreditTransactionFilter struct {
	ID            *uint                  `json:"id,omitempty"`
	UUID          *uuid.UUID             `json:"uuid,omitempty"`
	AccountID     *uint                  `json:"account_id,omitempty"`
	ActorID       *uint                  `json:"actor_id,omitempty"`
	Type          *CreditTransactionType `json:"type,omitempty"`
	CreatedAfter  *time.Time             `json:"created_after,omitempty"`
	CreatedBefore *time.Time             `json:"created_before,omitempty"`
}

// TableName returns the table name for the CreditTransaction model
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// BeforeCreate ensures UUID is set
func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	return nil
}
