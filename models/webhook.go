package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Webhook event names emitted by the dispatch engine
const (
	WebhookEventMessageSent       = "message.sent"
	WebhookEventMessageDelivered  = "message.delivered"
	WebhookEventMessageRead       = "message.read"
	WebhookEventMessageFailed     = "message.failed"
	WebhookEventCampaignStarted   = "campaign.started"
	WebhookEventCampaignCompleted = "campaign.completed"
	WebhookEventCampaignFailed    = "campaign.failed"
)

// DefaultWebhookEvents is the event set a new webhook subscribes to
func DefaultWebhookEvents() pq.StringArray {
	return pq.StringArray{
		WebhookEventMessageSent,
		WebhookEventMessageDelivered,
		WebhookEventMessageRead,
		WebhookEventMessageFailed,
		WebhookEventCampaignStarted,
		WebhookEventCampaignCompleted,
	}
}

// WebhookAuthType represents how deliveries authenticate to the endpoint
type WebhookAuthType string

const (
	WebhookAuthNone   WebhookAuthType = "none"
	WebhookAuthBasic  WebhookAuthType = "basic"
	WebhookAuthBearer WebhookAuthType = "bearer"
	WebhookAuthCustom WebhookAuthType = "custom"
)

// Webhook is an account-configured HTTP callback target notified of
// lifecycle events. Delivery is best-effort: terminal failures are only
// visible through WebhookLog rows and the call counters.
type Webhook struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	AccountID uint `gorm:"not null;index" json:"account_id"`

	Name string `gorm:"type:varchar(255);not null" json:"name"`
	URL  string `gorm:"type:text;not null" json:"url"`

	// Secret, when set, enables the HMAC-SHA256 signature header consumers
	// rely on for payload integrity.
	Secret    *string         `gorm:"type:varchar(255)" json:"secret,omitempty"`
	AuthType  WebhookAuthType `gorm:"type:varchar(10);not null;default:'none'" json:"auth_type"`
	AuthValue *string         `gorm:"type:text" json:"auth_value,omitempty"`

	CustomHeaders json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"custom_headers"`

	Events pq.StringArray `gorm:"type:text[];not null" json:"events"`

	IsActive *bool `gorm:"not null;default:true" json:"is_active"`

	// Running delivery counters
	TotalCalls   int64 `gorm:"not null;default:0" json:"total_calls"`
	SuccessCalls int64 `gorm:"not null;default:0" json:"success_calls"`
	FailedCalls  int64 `gorm:"not null;default:0" json:"failed_calls"`

	LastCalledAt *time.Time `json:"last_called_at,omitempty"`
	LastStatus   *int       `json:"last_status,omitempty"`
	LastError    *string    `gorm:"type:text" json:"last_error,omitempty"`

	// Retry policy (linear backoff: retry_delay_ms * attempt)
	RetryEnabled bool `gorm:"not null;default:true" json:"retry_enabled"`
	MaxRetries   int  `gorm:"not null;default:3" json:"max_retries"`
	RetryDelayMs int  `gorm:"not null;default:5000" json:"retry_delay_ms"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Account Account      `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"account,omitempty"`
	Logs    []WebhookLog `gorm:"foreignKey:WebhookID" json:"logs,omitempty"`
}

// SubscribedTo reports whether the webhook subscribes to the given event
func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookFilter represents filter criteria for webhook queries
type WebhookFilter struct {
	ID        *uint      `json:"id,omitempty"`
	UUID      *uuid.UUID `json:"uuid,omitempty"`
	AccountID *uint      `json:"account_id,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
	Event     *string    `json:"event,omitempty"`
}

// TableName returns the table name for the Webhook model
func (Webhook) TableName() string {
	return "webhooks"
}

// BeforeCreate ensures UUID and a default event set are present
func (w *Webhook) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == uuid.Nil {
		w.UUID = uuid.New()
	}
	if len(w.Events) == 0 {
		w.Events = DefaultWebhookEvents()
	}
	return nil
}
