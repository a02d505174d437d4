// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"wablast/app/dto"
	"wablast/app/services"
	businessflow "wablast/business_flow"
)

// DispatchHandlerInterface defines the contract for dispatch handlers
type DispatchHandlerInterface interface {
	BulkDispatch(c fiber.Ctx) error
	ScheduleMessage(c fiber.Ctx) error
	ListScheduled(c fiber.Ctx) error
}

// DispatchHandler handles bulk dispatch and scheduling HTTP requests
type DispatchHandler struct {
	dispatchFlow businessflow.DispatchFlow
	scheduleFlow businessflow.ScheduleFlow
	validator    *validator.Validate
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatchFlow businessflow.DispatchFlow, scheduleFlow businessflow.ScheduleFlow) *DispatchHandler {
	return &DispatchHandler{
		dispatchFlow: dispatchFlow,
		scheduleFlow: scheduleFlow,
		validator:    validator.New(),
	}
}

func (h *DispatchHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *DispatchHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// BulkDispatch runs a paced send loop over the given recipients. The call
// blocks until the batch settles, so clients should watch the realtime
// channel for progress instead of holding short timeouts.
func (h *DispatchHandler) BulkDispatch(c fiber.Ctx) error {
	var req dto.BulkDispatchRequest
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

	items := make([]businessflow.DispatchItem, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		items = append(items, businessflow.DispatchItem{
			Phone:     r.Phone,
			Variables: r.Variables,
			Media:     services.MediaOptions{MediaType: r.MediaType, MediaURL: r.MediaURL},
		})
	}

	result, err := h.dispatchFlow.RunBatch(c.Context(), acct, items, businessflow.DispatchOptions{
		Template:   req.Message,
		UseSpintax: req.UseSpintax,
		MinDelay:   msToDuration(req.MinDelayMs),
		MaxDelay:   msToDuration(req.MaxDelayMs),
	})
	if err != nil {
		if errors.Is(err, businessflow.ErrSessionNotConnected) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Session is not connected", "SESSION_NOT_CONNECTED", nil)
		}
		if errors.Is(err, businessflow.ErrAccountNotFound) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		if errors.Is(err, businessflow.ErrBatchTooLarge) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Too many recipients in one request", "BATCH_TOO_LARGE", nil)
		}
		log.Println("Bulk dispatch failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Bulk dispatch failed", "DISPATCH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Batch processed", dto.BulkDispatchResponse{
		Total:      result.Total,
		Sent:       result.Sent,
		Failed:     result.Failed,
		DenyReason: string(result.DenyReason),
	})
}

// ScheduleMessage stores a message for the scheduler to deliver later
func (h *DispatchHandler) ScheduleMessage(c fiber.Ctx) error {
	var req dto.ScheduleMessageRequest
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

	msg, err := h.scheduleFlow.Schedule(c.Context(), acct, &businessflow.ScheduleMessageRequest{
		Phone:            req.Phone,
		Message:          req.Message,
		MediaType:        req.MediaType,
		MediaURL:         req.MediaURL,
		ScheduledAt:      req.ScheduledAt,
		Recurring:        req.Recurring,
		RecurringPattern: req.RecurringPattern,
	})
	if err != nil {
		if errors.Is(err, businessflow.ErrInvalidRecurringPattern) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid recurring pattern", "INVALID_RECURRING_PATTERN", nil)
		}
		if errors.Is(err, businessflow.ErrScheduleTimeNotPresent) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Schedule time is required", "SCHEDULE_TIME_REQUIRED", nil)
		}
		log.Println("Message scheduling failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Message scheduling failed", "SCHEDULING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Message scheduled", msg)
}

// ListScheduled returns the account's scheduled messages
func (h *DispatchHandler) ListScheduled(c fiber.Ctx) error {
	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
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

	rows, err := h.scheduleFlow.List(c.Context(), acct, limit, offset)
	if err != nil {
		log.Println("Listing scheduled messages failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list scheduled messages", "LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled messages", rows)
}
