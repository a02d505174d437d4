package dto

import "time"

// RecipientDTO is one recipient of a bulk dispatch request
type RecipientDTO struct {
	Phone     string            `json:"phone" validate:"required,max=20"`
	Variables map[string]string `json:"variables,omitempty"`
	MediaType *string           `json:"media_type,omitempty"`
	MediaURL  *string           `json:"media_url,omitempty"`
}

// BulkDispatchRequest starts an ad-hoc paced send to a list of recipients
type BulkDispatchRequest struct {
	Message    string         `json:"message" validate:"required"`
	Recipients []RecipientDTO `json:"recipients" validate:"required,min=1,dive"`
	MinDelayMs int            `json:"min_delay_ms" validate:"omitempty,min=0"`
	MaxDelayMs int            `json:"max_delay_ms" validate:"omitempty,min=0"`
	UseSpintax bool           `json:"use_spintax"`
}

// BulkDispatchResponse summarizes a finished batch
type BulkDispatchResponse struct {
	Total      int    `json:"total"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	DenyReason string `json:"deny_reason,omitempty"`
}

// ScheduleMessageRequest schedules a single message for later delivery
type ScheduleMessageRequest struct {
	Phone            string    `json:"phone" validate:"required,max=20"`
	Message          string    `json:"message" validate:"required"`
	MediaType        *string   `json:"media_type,omitempty"`
	MediaURL         *string   `json:"media_url,omitempty"`
	ScheduledAt      time.Time `json:"scheduled_at" validate:"required"`
	Recurring        bool      `json:"recurring"`
	RecurringPattern *string   `json:"recurring_pattern,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
}

// StatusCallbackRequest is the transport's delivery receipt
type StatusCallbackRequest struct {
	MessageID string     `json:"message_id" validate:"required"`
	Status    string     `json:"status" validate:"required,oneof=sent delivered read failed"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}
