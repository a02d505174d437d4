package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusRunning,
		CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusFailed,
		CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions may leave this status
func (s CampaignStatus) Terminal() bool {
	switch s {
	case CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Campaign is a named, paced bulk-send job targeting a resolved contact list.
// Created by a user action; mutated only by the campaign state machine and the
// dispatch loop (count increments); deletion is disallowed while running.
type Campaign struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	AccountID uint `gorm:"not null;index" json:"account_id"`

	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	Content string `gorm:"type:text;not null" json:"content"` // Message template, may carry {a|b|c} spintax

	MediaType *string `gorm:"type:varchar(20)" json:"media_type,omitempty"`
	MediaURL  *string `gorm:"type:text" json:"media_url,omitempty"`

	Status CampaignStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`

	// Progress counters, incremented by the dispatch loop
	TotalContacts int64 `gorm:"not null;default:0" json:"total_contacts"`
	SentCount     int64 `gorm:"not null;default:0" json:"sent_count"`
	FailedCount   int64 `gorm:"not null;default:0" json:"failed_count"`

	// Pacing settings for the anti-abuse inter-message delay
	MinDelayMs int `gorm:"not null;default:5000" json:"min_delay_ms"`
	MaxDelayMs int `gorm:"not null;default:15000" json:"max_delay_ms"`
	UseSpintax bool `gorm:"not null;default:false" json:"use_spintax"`

	ScheduledAt  *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Account  Account           `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"account,omitempty"`
	Contacts []CampaignContact `gorm:"foreignKey:CampaignID" json:"contacts,omitempty"`
	Messages []Message         `gorm:"foreignKey:CampaignID" json:"messages,omitempty"`
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID              *uint           `json:"id,omitempty"`
	UUID            *uuid.UUID      `json:"uuid,omitempty"`
	AccountID       *uint           `json:"account_id,omitempty"`
	Status          *CampaignStatus `json:"status,omitempty"`
	ScheduledBefore *time.Time      `json:"scheduled_before,omitempty"`
	CreatedAfter    *time.Time      `json:"created_after,omitempty"`
	CreatedBefore   *time.Time      `json:"created_before,omitempty"`
}

// TableName returns the table name for the Campaign model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate ensures UUID is set
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	return nil
}

// CampaignContact is one resolved recipient of a campaign. AttemptedAt marks
// recipients the dispatch loop has already tried, so a resumed campaign
// continues from the first untouched contact.
type CampaignContact struct {
	ID         uint `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	Phone     string          `gorm:"type:varchar(20);not null" json:"phone"`
	Variables json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"variables"` // Template substitution values

	AttemptedAt *time.Time `gorm:"index" json:"attempted_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// CampaignContactFilter represents filter criteria for contact queries
type CampaignContactFilter struct {
	ID         *uint `json:"id,omitempty"`
	CampaignID *uint `json:"campaign_id,omitempty"`
	// Unattempted limits results to contacts the loop has not tried yet
	Unattempted *bool `json:"unattempted,omitempty"`
}

// TableName returns the table name for the CampaignContact model
func (CampaignContact) TableName() string {
	return "campaign_contacts"
}
