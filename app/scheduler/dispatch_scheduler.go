// Package scheduler
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"wablast/app/services"
	businessflow "wablast/business_flow"
	"wablast/models"
	"wablast/repository"
	"wablast/utils"
)

// DispatchScheduler periodically promotes due scheduled messages and due
// campaigns. Ticks run at most one at a time; a tick that would overlap a
// slow predecessor is skipped.
type DispatchScheduler struct {
	scheduledRepo repository.ScheduledMessageRepository
	campaignRepo  repository.CampaignRepository
	campaigns     businessflow.CampaignFlow
	dispatch      businessflow.DispatchFlow
	sessions      services.SessionManager
	logger        *log.Logger
	interval      time.Duration
	batchLimit    int

	runMu sync.Mutex
}

// NewDispatchScheduler creates a new dispatch scheduler
func NewDispatchScheduler(
	scheduledRepo repository.ScheduledMessageRepository,
	campaignRepo repository.CampaignRepository,
	campaigns businessflow.CampaignFlow,
	dispatch businessflow.DispatchFlow,
	sessions services.SessionManager,
	logger *log.Logger,
	interval time.Duration,
	batchLimit int,
) *DispatchScheduler {
	if interval <= 0 {
		interval = utils.SchedulerInterval
	}
	if batchLimit <= 0 {
		batchLimit = utils.SchedulerBatchLimit
	}
	return &DispatchScheduler{
		scheduledRepo: scheduledRepo,
		campaignRepo:  campaignRepo,
		campaigns:     campaigns,
		dispatch:      dispatch,
		sessions:      sessions,
		logger:        logger,
		interval:      interval,
		batchLimit:    batchLimit,
	}
}

// Start runs the tick loop until the returned stop function is called
func (s *DispatchScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Tick(ctx, utils.UTCNow())

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx, utils.UTCNow())
			}
		}
	}()

	return cancel
}

// Tick processes everything due at the given instant. Safe to call directly;
// concurrent calls beyond the first return immediately.
func (s *DispatchScheduler) Tick(ctx context.Context, now time.Time) {
	if !s.runMu.TryLock() {
		s.logger.Printf("scheduler tick skipped, previous tick still running")
		return
	}
	defer s.runMu.Unlock()

	s.processScheduledMessages(ctx, now)
	s.processDueCampaigns(ctx, now)
}

// processScheduledMessages sends each due message through the dispatch flow
// and, for recurring schedules, plants the next occurrence as a new row.
func (s *DispatchScheduler) processScheduledMessages(ctx context.Context, now time.Time) {
	due, err := s.scheduledRepo.ListDue(ctx, now, s.batchLimit)
	if err != nil {
		s.logger.Printf("failed to list due scheduled messages: %v", err)
		return
	}

	for _, msg := range due {
		if ctx.Err() != nil {
			return
		}
		s.processScheduledMessage(ctx, msg, now)
	}
}

func (s *DispatchScheduler) processScheduledMessage(ctx context.Context, msg *models.ScheduledMessage, now time.Time) {
	if !s.sessions.IsConnected(ctx, msg.AccountID) {
		s.markFailed(ctx, msg, "session not connected")
		return
	}

	items := []businessflow.DispatchItem{{
		Phone: msg.Phone,
		Media: services.MediaOptions{MediaType: msg.MediaType, MediaURL: msg.MediaURL},
	}}
	result, err := s.dispatch.RunBatch(ctx, msg.AccountID, items, businessflow.DispatchOptions{
		Template: msg.Message,
	})
	if err != nil {
		s.markFailed(ctx, msg, err.Error())
		return
	}
	if result.Sent != 1 {
		reason := "send failed"
		if result.DenyReason != "" {
			reason = (&businessflow.QuotaDeniedError{Reason: result.DenyReason}).Error()
		}
		s.markFailed(ctx, msg, reason)
		return
	}

	if err := s.scheduledRepo.MarkSent(ctx, msg.ID, utils.UTCNow()); err != nil {
		s.logger.Printf("failed to mark scheduled message %d sent: %v", msg.ID, err)
	}
	s.scheduleNext(ctx, msg, now)
}

func (s *DispatchScheduler) markFailed(ctx context.Context, msg *models.ScheduledMessage, reason string) {
	if err := s.scheduledRepo.MarkFailed(ctx, msg.ID, reason); err != nil {
		s.logger.Printf("failed to mark scheduled message %d failed: %v", msg.ID, err)
	}
}

// scheduleNext inserts the next occurrence of a recurring schedule as a new
// pending row. Only a sent occurrence continues the series; a failed one
// ends it.
func (s *DispatchScheduler) scheduleNext(ctx context.Context, msg *models.ScheduledMessage, now time.Time) {
	if !msg.Recurring || msg.RecurringPattern == nil || !msg.RecurringPattern.Valid() {
		return
	}

	next := &models.ScheduledMessage{
		AccountID:        msg.AccountID,
		Phone:            msg.Phone,
		Message:          msg.Message,
		MediaType:        msg.MediaType,
		MediaURL:         msg.MediaURL,
		Status:           models.ScheduledMessageStatusPending,
		ScheduledAt:      msg.NextOccurrence(now),
		Recurring:        true,
		RecurringPattern: msg.RecurringPattern,
	}
	if err := s.scheduledRepo.Save(ctx, next); err != nil {
		s.logger.Printf("failed to schedule next occurrence of message %d: %v", msg.ID, err)
	}
}

// processDueCampaigns starts scheduled campaigns whose time has come. Each
// campaign loop runs in its own goroutine; the guarded status transition in
// Start keeps a campaign from running twice.
func (s *DispatchScheduler) processDueCampaigns(ctx context.Context, now time.Time) {
	due, err := s.campaignRepo.ListDue(ctx, now, s.batchLimit)
	if err != nil {
		s.logger.Printf("failed to list due campaigns: %v", err)
		return
	}

	for _, campaign := range due {
		if ctx.Err() != nil {
			return
		}
		go func(id uint) {
			if _, err := s.campaigns.Start(ctx, id); err != nil {
				s.logger.Printf("failed to start due campaign %d: %v", id, err)
			}
		}(campaign.ID)
	}
}
