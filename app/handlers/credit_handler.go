// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"wablast/app/dto"
	businessflow "wablast/business_flow"
	"wablast/models"
)

// CreditHandlerInterface defines the contract for credit handlers
type CreditHandlerInterface interface {
	GetBalance(c fiber.Ctx) error
	TransferCredits(c fiber.Ctx) error
	AdjustCredits(c fiber.Ctx) error
	Reconcile(c fiber.Ctx) error
}

// CreditHandler handles credit ledger HTTP requests
type CreditHandler struct {
	creditFlow businessflow.CreditFlow
	validator  *validator.Validate
}

// NewCreditHandler creates a new credit handler
func NewCreditHandler(creditFlow businessflow.CreditFlow) *CreditHandler {
	return &CreditHandler{
		creditFlow: creditFlow,
		validator:  validator.New(),
	}
}

func (h *CreditHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CreditHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GetBalance returns the account's credit counters
func (h *CreditHandler) GetBalance(c fiber.Ctx) error {
	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}

	balance, err := h.creditFlow.Balance(c.Context(), acct)
	if err != nil {
		if errors.Is(err, businessflow.ErrAccountNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		log.Println("Balance lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Balance lookup failed", "BALANCE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Balance", balance)
}

// TransferCredits moves credits from the caller to another account
func (h *CreditHandler) TransferCredits(c fiber.Ctx) error {
	var req dto.TransferCreditsRequest
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

	if err := h.creditFlow.Transfer(c.Context(), acct, req.ToAccountID, req.Amount, nil); err != nil {
		if errors.Is(err, businessflow.ErrInsufficientCredits) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Insufficient credits", "INSUFFICIENT_CREDITS", nil)
		}
		if errors.Is(err, businessflow.ErrTransferSameAccount) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Cannot transfer to the same account", "TRANSFER_SAME_ACCOUNT", nil)
		}
		if errors.Is(err, businessflow.ErrAccountNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		log.Println("Credit transfer failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Credit transfer failed", "TRANSFER_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Credits transferred", nil)
}

// AdjustCredits applies a manual grant or deduction to an account. Reserved
// for operator tooling behind the gateway.
func (h *CreditHandler) AdjustCredits(c fiber.Ctx) error {
	var req dto.AdjustCreditsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	targetID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid account ID", "INVALID_ACCOUNT_ID", nil)
	}

	txType := models.CreditTransactionTypeAdminAdd
	if req.Amount < 0 {
		txType = models.CreditTransactionTypeAdminDeduct
	}
	var actorID *uint
	if acct, ok := accountID(c); ok {
		actorID = &acct
	}

	entry, err := h.creditFlow.ApplyDelta(c.Context(), targetID, req.Amount, txType, req.Description, actorID)
	if err != nil {
		if errors.Is(err, businessflow.ErrAccountNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		if errors.Is(err, businessflow.ErrInsufficientCredits) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Insufficient credits", "INSUFFICIENT_CREDITS", nil)
		}
		log.Println("Credit adjustment failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Credit adjustment failed", "ADJUSTMENT_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Credits adjusted", entry)
}

// Reconcile recomputes the balance from ledger history
func (h *CreditHandler) Reconcile(c fiber.Ctx) error {
	targetID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid account ID", "INVALID_ACCOUNT_ID", nil)
	}

	repair := c.Query("repair") == "true"
	report, err := h.creditFlow.Reconcile(c.Context(), targetID, repair)
	if err != nil {
		if errors.Is(err, businessflow.ErrAccountNotFound) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Account not found", "ACCOUNT_NOT_FOUND", nil)
		}
		log.Println("Reconciliation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Reconciliation failed", "RECONCILE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Reconciliation report", report)
}
