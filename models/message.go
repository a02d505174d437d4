package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageStatus represents the delivery state of an outbound message.
// Status advances monotonically pending -> sent -> delivered -> read;
// failed is terminal and never advances.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Rank returns the monotonic ordering position of the status. Failed has no
// rank; it sits outside the ordering and is terminal once applied.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusPending:
		return 0
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	default:
		return -1
	}
}

// Message is the append-mostly outcome record of one send attempt.
type Message struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`

	AccountID  uint  `gorm:"not null;index" json:"account_id"`
	CampaignID *uint `gorm:"index" json:"campaign_id,omitempty"`

	Phone string `gorm:"type:varchar(20);not null" json:"phone"`
	Body  string `gorm:"type:text;not null" json:"body"`

	Status MessageStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// TransportMessageID is the provider-assigned identifier used to correlate
	// inbound delivery/read receipts with this row.
	TransportMessageID *string `gorm:"type:varchar(255);index" json:"transport_message_id,omitempty"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	Account  Account   `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"account,omitempty"`
	Campaign *Campaign `gorm:"foreignKey:CampaignID" json:"campaign,omitempty"`
}

// MessageFilter represents filter criteria for message queries
type MessageFilter struct {
	ID                 *uint          `json:"id,omitempty"`
	UUID               *uuid.UUID     `json:"uuid,omitempty"`
	AccountID          *uint          `json:"account_id,omitempty"`
	CampaignID         *uint          `json:"campaign_id,omitempty"`
	Status             *MessageStatus `json:"status,omitempty"`
	Phone              *string        `json:"phone,omitempty"`
	TransportMessageID *string        `json:"transport_message_id,omitempty"`
	CreatedAfter       *time.Time     `json:"created_after,omitempty"`
	CreatedBefore      *time.Time     `json:"created_before,omitempty"`
}

// TableName returns the table name for the Message model
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate ensures UUID is set
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	return nil
}
