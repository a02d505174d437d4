package dto

import "time"

// CampaignContactDTO is one recipient of a campaign
type CampaignContactDTO struct {
	Phone     string            `json:"phone" validate:"required,max=20"`
	Variables map[string]string `json:"variables,omitempty"`
}

// CreateCampaignRequest creates a campaign with its contact list
type CreateCampaignRequest struct {
	Name        string               `json:"name" validate:"required,max=255"`
	Content     string               `json:"content" validate:"required"`
	ScheduledAt *time.Time           `json:"scheduled_at,omitempty"`
	MinDelayMs  int                  `json:"min_delay_ms" validate:"omitempty,min=0"`
	MaxDelayMs  int                  `json:"max_delay_ms" validate:"omitempty,min=0"`
	UseSpintax  bool                 `json:"use_spintax"`
	Contacts    []CampaignContactDTO `json:"contacts" validate:"required,min=1,dive"`
}

// CampaignResponse is the API view of a campaign
type CampaignResponse struct {
	UUID          string     `json:"uuid"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	TotalContacts int64      `json:"total_contacts"`
	SentCount     int64      `json:"sent_count"`
	FailedCount   int64      `json:"failed_count"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
