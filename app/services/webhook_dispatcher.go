// Package services provides external service integrations and technical concerns like transport sessions and webhooks
package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"wablast/app/middleware"
	"wablast/config"
	"wablast/models"
	"wablast/repository"
	"wablast/utils"
)

// WebhookService fans dispatch events out to subscriber endpoints
type WebhookService interface {
	// Trigger delivers the event to every matching active webhook of the
	// account. Delivery runs in the background and never blocks the caller.
	Trigger(ctx context.Context, accountID uint, event string, data map[string]any)
	// TestWebhook performs a single synchronous delivery of a test payload
	// and returns the resulting log entry.
	TestWebhook(ctx context.Context, webhookID uint) (*models.WebhookLog, error)
	// Wait blocks until all in-flight deliveries finish
	Wait()
}

// WebhookDispatcher implements WebhookService
type WebhookDispatcher struct {
	repo   repository.WebhookRepository
	config *config.WebhookConfig
	client *http.Client
	logger *log.Logger
	wg     sync.WaitGroup

	// sleep is replaceable in tests to skip retry delays
	sleep func(ctx context.Context, d time.Duration)
}

// webhookPayload is the body posted to subscriber endpoints
type webhookPayload struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewWebhookDispatcher creates a new webhook dispatcher
func NewWebhookDispatcher(repo repository.WebhookRepository, cfg *config.WebhookConfig, logger *log.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		repo:   repo,
		config: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
		sleep: func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
		},
	}
}

// Trigger looks up the account's subscribers and delivers in the background
func (d *WebhookDispatcher) Trigger(ctx context.Context, accountID uint, event string, data map[string]any) {
	if !d.config.Enabled {
		return
	}

	webhooks, err := d.repo.ListActiveByEvent(ctx, accountID, event)
	if err != nil {
		d.logger.Printf("failed to list webhooks for account %d event %s: %v", accountID, event, err)
		return
	}

	// Deliveries outlive the triggering request
	background := context.WithoutCancel(ctx)
	for _, webhook := range webhooks {
		d.wg.Add(1)
		go func(w *models.Webhook) {
			defer d.wg.Done()
			d.deliverWithRetry(background, w, event, data)
		}(webhook)
	}
}

// Wait blocks until all in-flight deliveries finish
func (d *WebhookDispatcher) Wait() {
	d.wg.Wait()
}

// TestWebhook delivers a sample payload once, without retries
func (d *WebhookDispatcher) TestWebhook(ctx context.Context, webhookID uint) (*models.WebhookLog, error) {
	webhook, err := d.repo.ByID(ctx, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook: %w", err)
	}
	if webhook == nil {
		return nil, fmt.Errorf("webhook %d not found", webhookID)
	}

	logEntry := d.attempt(ctx, webhook, "webhook.test", map[string]any{
		"message": "test delivery",
	}, 1)

	if err := d.repo.SaveLog(ctx, logEntry); err != nil {
		d.logger.Printf("failed to save webhook %d test log: %v", webhookID, err)
	}
	if err := d.repo.RecordResult(ctx, webhook.ID, logEntry.Success, logEntry.StatusCode, logEntry.Error, utils.UTCNow()); err != nil {
		d.logger.Printf("failed to record webhook %d test result: %v", webhookID, err)
	}
	return logEntry, nil
}

// deliverWithRetry posts the event, retrying failures with a linearly
// growing delay. Every attempt is logged and counted against the webhook's
// delivery totals.
func (d *WebhookDispatcher) deliverWithRetry(ctx context.Context, webhook *models.Webhook, event string, data map[string]any) {
	attempts := 1
	if webhook.RetryEnabled {
		maxRetries := webhook.MaxRetries
		if maxRetries <= 0 {
			maxRetries = d.config.MaxRetries
		}
		attempts += maxRetries
	}

	retryDelay := time.Duration(webhook.RetryDelayMs) * time.Millisecond
	if retryDelay <= 0 {
		retryDelay = d.config.RetryDelay
	}

	var last *models.WebhookLog
	for attempt := 1; attempt <= attempts; attempt++ {
		last = d.attempt(ctx, webhook, event, data, attempt)
		middleware.RecordWebhookDelivery(last.Success)
		if err := d.repo.SaveLog(ctx, last); err != nil {
			d.logger.Printf("failed to save webhook %d delivery log: %v", webhook.ID, err)
		}
		if err := d.repo.RecordResult(ctx, webhook.ID, last.Success, last.StatusCode, last.Error, utils.UTCNow()); err != nil {
			d.logger.Printf("failed to record webhook %d result: %v", webhook.ID, err)
		}
		if last.Success {
			break
		}
		if attempt < attempts {
			d.sleep(ctx, retryDelay*time.Duration(attempt))
		}
	}

	if !last.Success {
		d.logger.Printf("webhook %d delivery of %s failed after %d attempts", webhook.ID, event, attempts)
	}
}

// attempt performs one delivery and returns its log entry
func (d *WebhookDispatcher) attempt(ctx context.Context, webhook *models.Webhook, event string, data map[string]any, attempt int) *models.WebhookLog {
	now := utils.UTCNow()
	payload := webhookPayload{
		Event:     event,
		Timestamp: now.Format(time.RFC3339),
		Data:      data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte("{}")
	}

	logEntry := &models.WebhookLog{
		WebhookID: webhook.ID,
		Event:     event,
		Attempt:   attempt,
		Payload:   json.RawMessage(body),
	}
	if err != nil {
		logEntry.Error = utils.ToPtr(fmt.Sprintf("failed to marshal payload: %v", err))
		return logEntry
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		logEntry.Error = utils.ToPtr(fmt.Sprintf("failed to create request: %v", err))
		return logEntry
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(now.Unix(), 10))
	if webhook.Secret != nil && *webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, *webhook.Secret))
	}
	applyAuth(req, webhook)
	applyCustomHeaders(req, webhook)

	resp, err := d.client.Do(req)
	if err != nil {
		logEntry.Error = utils.ToPtr(fmt.Sprintf("request failed: %v", err))
		return logEntry
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	logEntry.StatusCode = resp.StatusCode
	logEntry.Response = utils.ToPtr(string(respBody))
	logEntry.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !logEntry.Success {
		logEntry.Error = utils.ToPtr(fmt.Sprintf("endpoint returned status %d", resp.StatusCode))
	}
	return logEntry
}

// Sign computes the hex HMAC-SHA256 signature consumers verify against
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func applyAuth(req *http.Request, webhook *models.Webhook) {
	if webhook.AuthValue == nil || *webhook.AuthValue == "" {
		return
	}
	switch webhook.AuthType {
	case models.WebhookAuthBasic:
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(*webhook.AuthValue)))
	case models.WebhookAuthBearer:
		req.Header.Set("Authorization", "Bearer "+*webhook.AuthValue)
	case models.WebhookAuthCustom:
		req.Header.Set("Authorization", *webhook.AuthValue)
	}
}

func applyCustomHeaders(req *http.Request, webhook *models.Webhook) {
	if len(webhook.CustomHeaders) == 0 {
		return
	}
	var headers map[string]string
	if err := json.Unmarshal(webhook.CustomHeaders, &headers); err != nil {
		return
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
}
