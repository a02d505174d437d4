// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"wablast/app/dto"
	businessflow "wablast/business_flow"
	"wablast/models"
)

// CallbackHandlerInterface defines the contract for transport callback handlers
type CallbackHandlerInterface interface {
	StatusCallback(c fiber.Ctx) error
}

// CallbackHandler receives delivery receipts from the messaging gateway
type CallbackHandler struct {
	statusFlow businessflow.MessageStatusFlow
	validator  *validator.Validate
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(statusFlow businessflow.MessageStatusFlow) *CallbackHandler {
	return &CallbackHandler{
		statusFlow: statusFlow,
		validator:  validator.New(),
	}
}

func (h *CallbackHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CallbackHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// StatusCallback applies a delivery receipt to the matching message. The
// gateway retries on non-2xx, so unknown messages return 404 only once the
// payload is well-formed.
func (h *CallbackHandler) StatusCallback(c fiber.Ctx) error {
	var req dto.StatusCallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	var at time.Time
	if req.Timestamp != nil {
		at = req.Timestamp.UTC()
	}
	err := h.statusFlow.ApplyStatusUpdate(c.Context(), req.MessageID, models.MessageStatus(req.Status), at)
	if err != nil {
		if errors.Is(err, businessflow.ErrMessageNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Message not found", "MESSAGE_NOT_FOUND", nil)
		}
		log.Println("Status update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Status update failed", "STATUS_UPDATE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Status applied", nil)
}
