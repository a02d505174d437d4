// Package businessflow contains the core business logic and use cases for message dispatch workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Account-related errors
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountInactive       = errors.New("account is inactive")
	ErrAccountBanned         = errors.New("account is banned")
	ErrAccountExpired        = errors.New("account subscription has expired")
	ErrInsufficientCredits   = errors.New("insufficient credits")
	ErrTransferSameAccount   = errors.New("cannot transfer credits to the same account")
	ErrTransferAmountInvalid = errors.New("transfer amount must be positive")

	// Campaign-related errors
	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrCampaignNotStartable  = errors.New("campaign can only be started from draft or scheduled")
	ErrCampaignNotRunning    = errors.New("campaign is not running")
	ErrCampaignNotPaused     = errors.New("campaign is not paused")
	ErrCampaignNotCancelable = errors.New("campaign cannot be cancelled in its current state")
	ErrCampaignRunning       = errors.New("campaign is running")
	ErrCampaignHasNoContent  = errors.New("campaign content is required")

	// Scheduled message errors
	ErrScheduledMessageNotFound = errors.New("scheduled message not found")
	ErrScheduleTimeNotPresent   = errors.New("schedule time is not present")
	ErrInvalidRecurringPattern  = errors.New("invalid recurring pattern")

	// Dispatch errors
	ErrSessionNotConnected = errors.New("session not connected")
	ErrEmptyBatch          = errors.New("dispatch batch is empty")
	ErrBatchTooLarge       = errors.New("dispatch batch exceeds the configured batch size")

	// Message status errors
	ErrMessageNotFound = errors.New("message not found")

	// Webhook errors
	ErrWebhookNotFound    = errors.New("webhook not found")
	ErrWebhookURLRequired = errors.New("webhook url is required")
)

// BusinessError represents a business logic error with context
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewBusinessErrorf creates a new business error with formatted message
func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// QuotaDeniedError reports why the quota gate rejected a send. It carries the
// limit and current usage so callers can surface actionable messages.
type QuotaDeniedError struct {
	Reason DenyReason
	Limit  int64
	Used   int64
}

func (e *QuotaDeniedError) Error() string {
	switch e.Reason {
	case DenyDailyLimit:
		return fmt.Sprintf("daily message limit reached (%d/%d)", e.Used, e.Limit)
	case DenyMonthlyLimit:
		return fmt.Sprintf("monthly message limit reached (%d/%d)", e.Used, e.Limit)
	case DenyNoCredits:
		return "no message credits remaining"
	case DenyDeactivated:
		return "account is deactivated"
	case DenyBanned:
		return "account is banned"
	case DenyExpired:
		return "account subscription has expired"
	default:
		return fmt.Sprintf("send denied: %s", e.Reason)
	}
}
