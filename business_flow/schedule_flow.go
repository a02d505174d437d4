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

// ScheduleFlow manages one-off and recurring scheduled messages
type ScheduleFlow interface {
	Schedule(ctx context.Context, accountID uint, req *ScheduleMessageRequest) (*models.ScheduledMessage, error)
	List(ctx context.Context, accountID uint, limit, offset int) ([]*models.ScheduledMessage, error)
}

// ScheduleMessageRequest carries the inputs for a new scheduled message
type ScheduleMessageRequest struct {
	Phone            string    `json:"phone" validate:"required,max=20"`
	Message          string    `json:"message" validate:"required"`
	MediaType        *string   `json:"media_type,omitempty"`
	MediaURL         *string   `json:"media_url,omitempty"`
	ScheduledAt      time.Time `json:"scheduled_at" validate:"required"`
	Recurring        bool      `json:"recurring"`
	RecurringPattern *string   `json:"recurring_pattern,omitempty"`
}

// ScheduleFlowImpl implements ScheduleFlow
type ScheduleFlowImpl struct {
	scheduledRepo repository.ScheduledMessageRepository
	logger        *log.Logger
}

// NewScheduleFlow creates a new schedule flow
func NewScheduleFlow(scheduledRepo repository.ScheduledMessageRepository, logger *log.Logger) ScheduleFlow {
	return &ScheduleFlowImpl{
		scheduledRepo: scheduledRepo,
		logger:        logger,
	}
}

func (f *ScheduleFlowImpl) Schedule(ctx context.Context, accountID uint, req *ScheduleMessageRequest) (*models.ScheduledMessage, error) {
	if req.ScheduledAt.IsZero() {
		return nil, ErrScheduleTimeNotPresent
	}

	msg := &models.ScheduledMessage{
		AccountID:   accountID,
		Phone:       req.Phone,
		Message:     req.Message,
		MediaType:   req.MediaType,
		MediaURL:    req.MediaURL,
		Status:      models.ScheduledMessageStatusPending,
		ScheduledAt: req.ScheduledAt.UTC(),
		Recurring:   req.Recurring,
	}
	if req.Recurring {
		if req.RecurringPattern == nil {
			return nil, ErrInvalidRecurringPattern
		}
		pattern := models.RecurringPattern(*req.RecurringPattern)
		if !pattern.Valid() {
			return nil, ErrInvalidRecurringPattern
		}
		msg.RecurringPattern = &pattern
	}

	if err := f.scheduledRepo.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save scheduled message: %w", err)
	}
	return msg, nil
}

func (f *ScheduleFlowImpl) List(ctx context.Context, accountID uint, limit, offset int) ([]*models.ScheduledMessage, error) {
	if limit <= 0 {
		limit = utils.SchedulerBatchLimit
	}
	rows, err := f.scheduledRepo.ByFilter(ctx, models.ScheduledMessageFilter{AccountID: &accountID}, "scheduled_at ASC", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled messages: %w", err)
	}
	return rows, nil
}
