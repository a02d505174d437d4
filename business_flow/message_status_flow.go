// Package businessflow contains the core business logic and use cases for message dispatch workflows
package businessflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"wablast/models"
	"wablast/repository"
	"wablast/utils"
)

// MessageStatusFlow applies inbound delivery receipts to message records
type MessageStatusFlow interface {
	// ApplyStatusUpdate moves the message identified by the transport's ID
	// to the new status, stamping it with the receipt time (a zero at means
	// now). Updates are idempotent and only ever move the status forward;
	// stale or repeated receipts are dropped silently.
	ApplyStatusUpdate(ctx context.Context, transportMessageID string, status models.MessageStatus, at time.Time) error
}

// MessageStatusFlowImpl implements MessageStatusFlow
type MessageStatusFlowImpl struct {
	messageRepo repository.MessageRepository
	webhooks    WebhookTrigger
	logger      *log.Logger
}

// WebhookTrigger is the slice of the webhook service the flows need.
// Keeping it minimal makes the flows easy to test.
type WebhookTrigger interface {
	Trigger(ctx context.Context, accountID uint, event string, data map[string]any)
}

// NewMessageStatusFlow creates a new message status flow
func NewMessageStatusFlow(messageRepo repository.MessageRepository, webhooks WebhookTrigger, logger *log.Logger) MessageStatusFlow {
	return &MessageStatusFlowImpl{
		messageRepo: messageRepo,
		webhooks:    webhooks,
		logger:      logger,
	}
}

func (f *MessageStatusFlowImpl) ApplyStatusUpdate(ctx context.Context, transportMessageID string, status models.MessageStatus, at time.Time) error {
	message, err := f.messageRepo.ByTransportMessageID(ctx, transportMessageID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}
	if message == nil {
		return ErrMessageNotFound
	}

	// Failed is terminal; anything else must outrank the current status
	if message.Status == models.MessageStatusFailed {
		return nil
	}
	if status != models.MessageStatusFailed && status.Rank() <= message.Status.Rank() {
		return nil
	}

	if at.IsZero() {
		at = utils.UTCNow()
	}
	message.Status = status
	switch status {
	case models.MessageStatusDelivered:
		if message.DeliveredAt == nil {
			message.DeliveredAt = &at
		}
	case models.MessageStatusRead:
		if message.DeliveredAt == nil {
			message.DeliveredAt = &at
		}
		if message.ReadAt == nil {
			message.ReadAt = &at
		}
	}

	if err := f.messageRepo.Update(ctx, message); err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}

	event := eventForStatus(status)
	if event != "" {
		f.webhooks.Trigger(ctx, message.AccountID, event, map[string]any{
			"message_id": message.UUID.String(),
			"phone":      message.Phone,
			"status":     string(status),
		})
	}
	return nil
}

func eventForStatus(status models.MessageStatus) string {
	switch status {
	case models.MessageStatusSent:
		return models.WebhookEventMessageSent
	case models.MessageStatusDelivered:
		return models.WebhookEventMessageDelivered
	case models.MessageStatusRead:
		return models.WebhookEventMessageRead
	case models.MessageStatusFailed:
		return models.WebhookEventMessageFailed
	default:
		return ""
	}
}
