// Package models contains the GORM entities shared by the dispatch engine.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account represents a tenant of the messaging platform. Account CRUD lives
// outside the dispatch engine; the engine only reads the gating fields and
// mutates the usage and credit counters.
//
// The daily/monthly invariants (messages_used_today <= daily_limit etc.) are
// enforced at gate time, not by database constraints. Concurrent writers can
// transiently violate them, so they are advisory.
type Account struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	Email string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`

	// Gate fields
	IsActive  *bool      `gorm:"not null;default:true" json:"is_active"`
	IsBanned  *bool      `gorm:"not null;default:false" json:"is_banned"`
	BanReason *string    `gorm:"type:text" json:"ban_reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Quota counters (time-windowed caps, independent of credits)
	DailyLimit        int64 `gorm:"not null;default:1000" json:"daily_limit"`
	MonthlyLimit      int64 `gorm:"not null;default:10000" json:"monthly_limit"`
	MessagesUsedToday int64 `gorm:"not null;default:0" json:"messages_used_today"`
	MessagesUsedMonth int64 `gorm:"not null;default:0" json:"messages_used_month"`

	// Credit counters, denormalized from the credit_transactions ledger.
	// Credits is the total provisioned, CreditsUsed the total consumed;
	// available = Credits - CreditsUsed.
	Credits     int64 `gorm:"not null;default:0" json:"credits"`
	CreditsUsed int64 `gorm:"not null;default:0" json:"credits_used"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Campaigns          []Campaign          `gorm:"foreignKey:AccountID" json:"campaigns,omitempty"`
	ScheduledMessages  []ScheduledMessage  `gorm:"foreignKey:AccountID" json:"scheduled_messages,omitempty"`
	Messages           []Message           `gorm:"foreignKey:AccountID" json:"messages,omitempty"`
	Webhooks           []Webhook           `gorm:"foreignKey:AccountID" json:"webhooks,omitempty"`
	CreditTransactions []CreditTransaction `gorm:"foreignKey:AccountID" json:"credit_transactions,omitempty"`
}

// AvailableCredits returns the credits still consumable by this account
func (a *Account) AvailableCredits() int64 {
	return a.Credits - a.CreditsUsed
}

// IsExpired reports whether the account has an expiry in the past
func (a *Account) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// AccountFilter represents filter criteria for account queries
type AccountFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	Email         *string    `json:"email,omitempty"`
	IsActive      *bool      `json:"is_active,omitempty"`
	IsBanned      *bool      `json:"is_banned,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}

// TableName returns the table name for the Account model
func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate ensures UUID is set
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	return nil
}
