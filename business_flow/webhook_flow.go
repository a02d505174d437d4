// Package businessflow contains the core business logic and use cases for message dispatch workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"wablast/app/services"
	"wablast/models"
	"wablast/repository"
	"wablast/utils"
)

// WebhookFlow manages webhook subscriptions for an account
type WebhookFlow interface {
	Create(ctx context.Context, accountID uint, req *CreateWebhookRequest) (*models.Webhook, error)
	List(ctx context.Context, accountID uint) ([]*models.Webhook, error)
	// Disable deactivates the webhook; delivery history is kept
	Disable(ctx context.Context, accountID, webhookID uint) error
	// Test performs one synchronous delivery of a sample payload
	Test(ctx context.Context, accountID, webhookID uint) (*models.WebhookLog, error)
	Logs(ctx context.Context, accountID, webhookID uint, limit, offset int) ([]*models.WebhookLog, int64, error)
}

// CreateWebhookRequest carries the inputs for a new webhook subscription
type CreateWebhookRequest struct {
	Name          string            `json:"name" validate:"required,max=255"`
	URL           string            `json:"url" validate:"required,url"`
	Events        []string          `json:"events,omitempty"`
	Secret        *string           `json:"secret,omitempty"`
	AuthType      string            `json:"auth_type,omitempty"`
	AuthValue     *string           `json:"auth_value,omitempty"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
	RetryEnabled  *bool             `json:"retry_enabled,omitempty"`
	MaxRetries    int               `json:"max_retries,omitempty"`
	RetryDelayMs  int               `json:"retry_delay_ms,omitempty"`
}

// WebhookFlowImpl implements WebhookFlow
type WebhookFlowImpl struct {
	webhookRepo repository.WebhookRepository
	dispatcher  services.WebhookService
	logger      *log.Logger
}

// NewWebhookFlow creates a new webhook flow
func NewWebhookFlow(webhookRepo repository.WebhookRepository, dispatcher services.WebhookService, logger *log.Logger) WebhookFlow {
	return &WebhookFlowImpl{
		webhookRepo: webhookRepo,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

func (f *WebhookFlowImpl) Create(ctx context.Context, accountID uint, req *CreateWebhookRequest) (*models.Webhook, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrWebhookURLRequired
	}

	events := pq.StringArray(req.Events)
	if len(events) == 0 {
		events = models.DefaultWebhookEvents()
	}

	authType := models.WebhookAuthType(req.AuthType)
	switch authType {
	case models.WebhookAuthBasic, models.WebhookAuthBearer, models.WebhookAuthCustom:
	default:
		authType = models.WebhookAuthNone
	}

	webhook := &models.Webhook{
		AccountID:    accountID,
		Name:         req.Name,
		URL:          req.URL,
		Events:       events,
		Secret:       req.Secret,
		AuthType:     authType,
		AuthValue:    req.AuthValue,
		IsActive:     utils.ToPtr(true),
		RetryEnabled: req.RetryEnabled == nil || *req.RetryEnabled,
		MaxRetries:   req.MaxRetries,
		RetryDelayMs: req.RetryDelayMs,
	}
	if len(req.CustomHeaders) > 0 {
		if raw, err := json.Marshal(req.CustomHeaders); err == nil {
			webhook.CustomHeaders = raw
		}
	}

	if err := f.webhookRepo.Save(ctx, webhook); err != nil {
		return nil, fmt.Errorf("failed to save webhook: %w", err)
	}
	return webhook, nil
}

func (f *WebhookFlowImpl) List(ctx context.Context, accountID uint) ([]*models.Webhook, error) {
	webhooks, err := f.webhookRepo.ByFilter(ctx, models.WebhookFilter{AccountID: &accountID}, "id ASC", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return webhooks, nil
}

func (f *WebhookFlowImpl) Disable(ctx context.Context, accountID, webhookID uint) error {
	webhook, err := f.owned(ctx, accountID, webhookID)
	if err != nil {
		return err
	}
	webhook.IsActive = utils.ToPtr(false)
	if err := f.webhookRepo.Update(ctx, webhook); err != nil {
		return fmt.Errorf("failed to disable webhook: %w", err)
	}
	return nil
}

func (f *WebhookFlowImpl) Test(ctx context.Context, accountID, webhookID uint) (*models.WebhookLog, error) {
	if _, err := f.owned(ctx, accountID, webhookID); err != nil {
		return nil, err
	}
	return f.dispatcher.TestWebhook(ctx, webhookID)
}

func (f *WebhookFlowImpl) Logs(ctx context.Context, accountID, webhookID uint, limit, offset int) ([]*models.WebhookLog, int64, error) {
	if _, err := f.owned(ctx, accountID, webhookID); err != nil {
		return nil, 0, err
	}
	logs, err := f.webhookRepo.ListLogs(ctx, webhookID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	total, err := f.webhookRepo.CountLogs(ctx, webhookID, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook logs: %w", err)
	}
	return logs, total, nil
}

// owned loads the webhook and verifies the account owns it
func (f *WebhookFlowImpl) owned(ctx context.Context, accountID, webhookID uint) (*models.Webhook, error) {
	webhook, err := f.webhookRepo.ByID(ctx, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook: %w", err)
	}
	if webhook == nil || webhook.AccountID != accountID {
		return nil, ErrWebhookNotFound
	}
	return webhook, nil
}
