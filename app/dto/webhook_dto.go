package dto

// CreateWebhookRequest registers a webhook subscription
type CreateWebhookRequest struct {
	Name          string            `json:"name" validate:"required,max=255"`
	URL           string            `json:"url" validate:"required,url"`
	Events        []string          `json:"events,omitempty"`
	Secret        *string           `json:"secret,omitempty"`
	AuthType      string            `json:"auth_type,omitempty" validate:"omitempty,oneof=none basic bearer custom"`
	AuthValue     *string           `json:"auth_value,omitempty"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
	RetryEnabled  *bool             `json:"retry_enabled,omitempty"`
	MaxRetries    int               `json:"max_retries" validate:"omitempty,min=0,max=10"`
	RetryDelayMs  int               `json:"retry_delay_ms" validate:"omitempty,min=0"`
}

// TransferCreditsRequest moves credits between two accounts
type TransferCreditsRequest struct {
	ToAccountID uint  `json:"to_account_id" validate:"required"`
	Amount      int64 `json:"amount" validate:"required,gt=0"`
}

// AdjustCreditsRequest applies a manual credit adjustment
type AdjustCreditsRequest struct {
	Amount      int64  `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}
