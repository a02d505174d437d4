package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduledMessageStatus represents the status of a scheduled message
type ScheduledMessageStatus string

const (
	ScheduledMessageStatusPending ScheduledMessageStatus = "pending"
	ScheduledMessageStatusSent    ScheduledMessageStatus = "sent"
	ScheduledMessageStatusFailed  ScheduledMessageStatus = "failed"
)

// RecurringPattern represents how a recurring scheduled message repeats
type RecurringPattern string

const (
	RecurringPatternDaily   RecurringPattern = "daily"
	RecurringPatternWeekly  RecurringPattern = "weekly"
	RecurringPatternMonthly RecurringPattern = "monthly"
)

// Valid checks if the pattern is one of the recognized recurrence kinds
func (p RecurringPattern) Valid() bool {
	switch p {
	case RecurringPatternDaily, RecurringPatternWeekly, RecurringPatternMonthly:
		return true
	default:
		return false
	}
}

// ScheduledMessage is a single future send, optionally recurring. Recurrence
// never mutates the schedule in place: each occurrence that sends successfully
// inserts a brand-new pending row for the next occurrence.
type ScheduledMessage struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	AccountID uint `gorm:"not null;index" json:"account_id"`

	Phone   string `gorm:"type:varchar(20);not null" json:"phone"`
	Message string `gorm:"type:text;not null" json:"message"`

	MediaType *string `gorm:"type:varchar(20)" json:"media_type,omitempty"`
	MediaURL  *string `gorm:"type:text" json:"media_url,omitempty"`

	Status ScheduledMessageStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	ScheduledAt time.Time  `gorm:"not null;index" json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`

	Recurring        bool              `gorm:"not null;default:false" json:"recurring"`
	RecurringPattern *RecurringPattern `gorm:"type:varchar(10)" json:"recurring_pattern,omitempty"`

	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Account Account `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"account,omitempty"`
}

// ScheduledMessageFilter represents filter criteria for scheduled message queries
type ScheduledMessageFilter struct {
	ID        *uint                   `json:"id,omitempty"`
	UUID      *uuid.UUID              `json:"uuid,omitempty"`
	AccountID *uint                   `json:"account_id,omitempty"`
	Status    *ScheduledMessageStatus `json:"status,omitempty"`
	DueBefore *time.Time              `json:"due_before,omitempty"`
	Recurring *bool                   `json:"recurring,omitempty"`
}

// TableName returns the table name for the ScheduledMessage model
func (ScheduledMessage) TableName() string {
	return "scheduled_messages"
}

// BeforeCreate ensures UUID is set
func (m *ScheduledMessage) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	return nil
}

// NextOccurrence returns the scheduled time of the next occurrence after the
// given instant: daily +24h, weekly +7d, monthly the same day next calendar
// month. Returns the zero time for a non-recurring row or unknown pattern.
func (m *ScheduledMessage) NextOccurrence(now time.Time) time.Time {
	if !m.Recurring || m.RecurringPattern == nil {
		return time.Time{}
	}
	switch *m.RecurringPattern {
	case RecurringPatternDaily:
		return now.Add(24 * time.Hour)
	case RecurringPatternWeekly:
		return now.Add(7 * 24 * time.Hour)
	case RecurringPatternMonthly:
		return now.AddDate(0, 1, 0)
	default:
		return time.Time{}
	}
}
