// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"wablast/app/dto"
	businessflow "wablast/business_flow"
)

// WebhookHandlerInterface defines the contract for webhook handlers
type WebhookHandlerInterface interface {
	CreateWebhook(c fiber.Ctx) error
	ListWebhooks(c fiber.Ctx) error
	DisableWebhook(c fiber.Ctx) error
	TestWebhook(c fiber.Ctx) error
	GetWebhookLogs(c fiber.Ctx) error
}

// WebhookHandler handles webhook subscription HTTP requests
type WebhookHandler struct {
	webhookFlow businessflow.WebhookFlow
	validator   *validator.Validate
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookFlow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{
		webhookFlow: webhookFlow,
		validator:   validator.New(),
	}
}

func (h *WebhookHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WebhookHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateWebhook registers a webhook subscription for the account
func (h *WebhookHandler) CreateWebhook(c fiber.Ctx) error {
	var req dto.CreateWebhookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}

	webhook, err := h.webhookFlow.Create(c.Context(), acct, &businessflow.CreateWebhookRequest{
		Name:          req.Name,
		URL:           req.URL,
		Events:        req.Events,
		Secret:        req.Secret,
		AuthType:      req.AuthType,
		AuthValue:     req.AuthValue,
		CustomHeaders: req.CustomHeaders,
		RetryEnabled:  req.RetryEnabled,
		MaxRetries:    req.MaxRetries,
		RetryDelayMs:  req.RetryDelayMs,
	})
	if err != nil {
		if errors.Is(err, businessflow.ErrWebhookURLRequired) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Webhook URL is required", "WEBHOOK_URL_REQUIRED", nil)
		}
		log.Println("Webhook creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Webhook creation failed", "WEBHOOK_CREATE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Webhook created", webhook)
}

// ListWebhooks returns the account's webhook subscriptions
func (h *WebhookHandler) ListWebhooks(c fiber.Ctx) error {
	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}

	webhooks, err := h.webhookFlow.List(c.Context(), acct)
	if err != nil {
		log.Println("Webhook listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list webhooks", "WEBHOOK_LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Webhooks", webhooks)
}

// DisableWebhook deactivates a webhook subscription
func (h *WebhookHandler) DisableWebhook(c fiber.Ctx) error {
	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}
	webhookID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook ID", "INVALID_WEBHOOK_ID", nil)
	}

	if err := h.webhookFlow.Disable(c.Context(), acct, webhookID); err != nil {
		if errors.Is(err, businessflow.ErrWebhookNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Webhook not found", "WEBHOOK_NOT_FOUND", nil)
		}
		log.Println("Webhook disable failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Webhook disable failed", "WEBHOOK_DISABLE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Webhook disabled", nil)
}

// TestWebhook delivers a sample payload once and returns the attempt log
func (h *WebhookHandler) TestWebhook(c fiber.Ctx) error {
	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}
	webhookID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook ID", "INVALID_WEBHOOK_ID", nil)
	}

	logEntry, err := h.webhookFlow.Test(c.Context(), acct, webhookID)
	if err != nil {
		if errors.Is(err, businessflow.ErrWebhookNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Webhook not found", "WEBHOOK_NOT_FOUND", nil)
		}
		log.Println("Webhook test failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Webhook test failed", "WEBHOOK_TEST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Test delivery finished", logEntry)
}

// GetWebhookLogs returns the webhook's delivery history
func (h *WebhookHandler) GetWebhookLogs(c fiber.Ctx) error {
	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}
	webhookID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook ID", "INVALID_WEBHOOK_ID", nil)
	}

	limit, offset := 50, 0
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}

	logs, total, err := h.webhookFlow.Logs(c.Context(), acct, webhookID, limit, offset)
	if err != nil {
		if errors.Is(err, businessflow.ErrWebhookNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Webhook not found", "WEBHOOK_NOT_FOUND", nil)
		}
		log.Println("Webhook log listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list webhook logs", "WEBHOOK_LOGS_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Webhook logs", dto.PagedData{
		Items: logs,
		Total: total,
	})
}
