package models

import (
	"encoding/json"
	"time"
)

// WebhookLog is an immutable record of one delivery attempt, including
// retries. Attempt 1 is the initial delivery.
type WebhookLog struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	WebhookID uint `gorm:"not null;index" json:"webhook_id"`

	Event   string          `gorm:"type:varchar(64);not null;index" json:"event"`
	Attempt int             `gorm:"not null;default:0" json:"attempt"`
	Payload json.RawMessage `gorm:"type:jsonb;not null" json:"payload"`

	Response   *string `gorm:"type:text" json:"response,omitempty"`
	StatusCode int     `gorm:"not null;default:0" json:"status_code"`
	Success    bool    `gorm:"not null;index" json:"success"`
	Error      *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`

	// Relationships
	Webhook Webhook `gorm:"foreignKey:WebhookID;constraint:OnDelete:CASCADE" json:"webhook,omitempty"`
}

// WebhookLogFilter represents filter criteria for webhook log queries
type WebhookLogFilter struct {
	ID            *uint      `json:"id,omitempty"`
	WebhookID     *uint      `json:"webhook_id,omitempty"`
	Event         *string    `json:"event,omitempty"`
	Success       *bool      `json:"success,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}

// TableName returns the table name for the WebhookLog model
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
