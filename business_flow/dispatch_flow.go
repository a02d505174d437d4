// Package businessflow contains the core business logic and use cases for message dispatch workflows
package businessflow

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"wablast/app/middleware"
	"wablast/app/services"
	"wablast/config"
	"wablast/models"
	"wablast/repository"
	"wablast/utils"
)

// DispatchItem is one recipient in a dispatch batch
type DispatchItem struct {
	Phone     string
	Variables map[string]string
	Media     services.MediaOptions
	// ContactID links the item back to a campaign contact, when applicable
	ContactID *uint
}

// DispatchOptions controls how a batch is processed
type DispatchOptions struct {
	// Template is the message body, possibly carrying variables and spintax
	Template   string
	UseSpintax bool

	// Pacing bounds; zero values fall back to the configured defaults
	MinDelay time.Duration
	MaxDelay time.Duration

	// CampaignID attributes messages and counters to a campaign
	CampaignID *uint

	// Continue is polled before each item. Returning false stops the loop
	// without touching the remaining items, so they can be retried later.
	Continue func(ctx context.Context) (bool, error)
}

// DispatchResult summarizes a processed batch
type DispatchResult struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	// Stopped is set when Continue ended the loop early
	Stopped bool `json:"stopped"`
	// DenyReason is set when the quota gate cut the batch short
	DenyReason DenyReason `json:"deny_reason,omitempty"`
}

// DispatchFlow runs the paced send loop for a batch of recipients
type DispatchFlow interface {
	RunBatch(ctx context.Context, accountID uint, items []DispatchItem, opts DispatchOptions) (*DispatchResult, error)
}

// DispatchFlowImpl implements DispatchFlow
type DispatchFlowImpl struct {
	accountRepo  repository.AccountRepository
	messageRepo  repository.MessageRepository
	campaignRepo repository.CampaignRepository
	gate         *QuotaGate
	credits      CreditFlow
	sessions     services.SessionManager
	webhooks     WebhookTrigger
	notifier     services.RealtimeNotifier
	config       *config.DispatchConfig
	logger       *log.Logger

	// sleep and randDelay are replaceable in tests
	sleep     func(ctx context.Context, d time.Duration) error
	randDelay func(min, max time.Duration) time.Duration
}

// NewDispatchFlow creates a new dispatch flow
func NewDispatchFlow(
	accountRepo repository.AccountRepository,
	messageRepo repository.MessageRepository,
	campaignRepo repository.CampaignRepository,
	credits CreditFlow,
	sessions services.SessionManager,
	webhooks WebhookTrigger,
	notifier services.RealtimeNotifier,
	cfg *config.DispatchConfig,
	logger *log.Logger,
) *DispatchFlowImpl {
	return &DispatchFlowImpl{
		accountRepo:  accountRepo,
		messageRepo:  messageRepo,
		campaignRepo: campaignRepo,
		gate:         NewQuotaGate(cfg.CreditSystemEnabled),
		credits:      credits,
		sessions:     sessions,
		webhooks:     webhooks,
		notifier:     notifier,
		config:       cfg,
		logger:       logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		randDelay: func(min, max time.Duration) time.Duration {
			if max <= min {
				return min
			}
			return min + time.Duration(rand.Int63n(int64(max-min)+1))
		},
	}
}

// RunBatch sends every item in order, re-checking the quota gate before each
// send and pacing with a uniform random delay between items. One invocation
// accepts at most BatchSize items. The account's session lock is held for the
// whole batch, so batches for one account never interleave.
func (f *DispatchFlowImpl) RunBatch(ctx context.Context, accountID uint, items []DispatchItem, opts DispatchOptions) (*DispatchResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if f.config.BatchSize > 0 && len(items) > f.config.BatchSize {
		return nil, ErrBatchTooLarge
	}

	result := &DispatchResult{Total: len(items)}

	session, release, err := f.sessions.Acquire(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	defer release()

	if !session.IsConnected(ctx) {
		f.failRemaining(ctx, accountID, items, opts, result, ErrSessionNotConnected.Error())
		f.publishBatchComplete(ctx, accountID, opts, result)
		return result, ErrSessionNotConnected
	}

	minDelay, maxDelay := f.delays(opts)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i, item := range items {
		if opts.Continue != nil {
			ok, err := opts.Continue(ctx)
			if err != nil {
				return result, err
			}
			if !ok {
				result.Stopped = true
				break
			}
		}
		if ctx.Err() != nil {
			result.Stopped = true
			break
		}

		// The gate re-reads the account each iteration so limit changes and
		// concurrent usage take effect mid-batch.
		account, err := f.accountRepo.ByID(ctx, accountID)
		if err != nil {
			return result, fmt.Errorf("failed to load account: %w", err)
		}
		if account == nil {
			return result, ErrAccountNotFound
		}
		if decision := f.gate.Admit(account); !decision.Allowed {
			result.DenyReason = decision.Reason
			f.failRemaining(ctx, accountID, items[i:], opts, result, decision.Err().Error())
			break
		}

		body := RenderTemplate(opts.Template, item.Variables, opts.UseSpintax, rng)
		f.processItem(ctx, accountID, session, item, body, opts, result, i)

		if i < len(items)-1 {
			if err := f.sleep(ctx, f.randDelay(minDelay, maxDelay)); err != nil {
				result.Stopped = true
				break
			}
		}
	}

	f.publishBatchComplete(ctx, accountID, opts, result)
	return result, nil
}

func (f *DispatchFlowImpl) delays(opts DispatchOptions) (time.Duration, time.Duration) {
	minDelay := opts.MinDelay
	if minDelay <= 0 {
		minDelay = f.config.MinDelay
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = f.config.MaxDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return minDelay, maxDelay
}

// processItem performs one send and records its outcome. Send failures never
// abort the batch; the loop moves on to the next recipient.
func (f *DispatchFlowImpl) processItem(ctx context.Context, accountID uint, session services.TransportSession, item DispatchItem, body string, opts DispatchOptions, result *DispatchResult, index int) {
	transportMessageID, sendErr := session.SendMessage(ctx, item.Phone, body, item.Media)

	now := utils.UTCNow()
	message := &models.Message{
		AccountID:  accountID,
		CampaignID: opts.CampaignID,
		Phone:      item.Phone,
		Body:       body,
	}

	if sendErr == nil {
		message.Status = models.MessageStatusSent
		message.SentAt = &now
		message.TransportMessageID = &transportMessageID
	} else {
		message.Status = models.MessageStatusFailed
		message.ErrorMessage = utils.ToPtr(sendErr.Error())
	}

	if err := f.messageRepo.Save(ctx, message); err != nil {
		// Treat an unrecordable outcome as a failure rather than resending
		f.logger.Printf("failed to record message outcome for account %d phone %s: %v", accountID, item.Phone, err)
		sendErr = fmt.Errorf("failed to record outcome: %w", err)
	}

	f.markAttempted(ctx, item)

	if sendErr == nil {
		result.Sent++
		middleware.RecordMessageDispatched("sent")
		if err := f.accountRepo.IncrementUsage(ctx, accountID); err != nil {
			f.logger.Printf("failed to increment usage for account %d: %v", accountID, err)
		}
		if f.config.CreditSystemEnabled {
			if _, err := f.credits.DeductForSend(ctx, accountID); err != nil {
				f.logger.Printf("failed to deduct credit for account %d: %v", accountID, err)
			}
		}
		if opts.CampaignID != nil {
			if err := f.campaignRepo.IncrementCounters(ctx, *opts.CampaignID, 1, 0); err != nil {
				f.logger.Printf("failed to increment campaign %d counters: %v", *opts.CampaignID, err)
			}
		}
		f.webhooks.Trigger(ctx, accountID, models.WebhookEventMessageSent, map[string]any{
			"message_id": message.UUID.String(),
			"phone":      item.Phone,
		})
	} else {
		result.Failed++
		middleware.RecordMessageDispatched("failed")
		if opts.CampaignID != nil {
			if err := f.campaignRepo.IncrementCounters(ctx, *opts.CampaignID, 0, 1); err != nil {
				f.logger.Printf("failed to increment campaign %d counters: %v", *opts.CampaignID, err)
			}
		}
		f.webhooks.Trigger(ctx, accountID, models.WebhookEventMessageFailed, map[string]any{
			"phone": item.Phone,
			"error": sendErr.Error(),
		})
	}

	f.publishProgress(ctx, accountID, opts, result, index, item.Phone, sendErr == nil)
}

// failRemaining records every remaining item as failed with the given reason
func (f *DispatchFlowImpl) failRemaining(ctx context.Context, accountID uint, items []DispatchItem, opts DispatchOptions, result *DispatchResult, reason string) {
	label := "failed"
	if result.DenyReason != "" {
		label = "denied"
	}
	for _, item := range items {
		message := &models.Message{
			AccountID:    accountID,
			CampaignID:   opts.CampaignID,
			Phone:        item.Phone,
			Body:         "",
			Status:       models.MessageStatusFailed,
			ErrorMessage: utils.ToPtr(reason),
		}
		if err := f.messageRepo.Save(ctx, message); err != nil {
			f.logger.Printf("failed to record skipped message for account %d phone %s: %v", accountID, item.Phone, err)
		}
		f.markAttempted(ctx, item)
		result.Failed++
		middleware.RecordMessageDispatched(label)
	}
	if opts.CampaignID != nil && len(items) > 0 {
		if err := f.campaignRepo.IncrementCounters(ctx, *opts.CampaignID, 0, int64(len(items))); err != nil {
			f.logger.Printf("failed to increment campaign %d counters: %v", *opts.CampaignID, err)
		}
	}
}

func (f *DispatchFlowImpl) markAttempted(ctx context.Context, item DispatchItem) {
	if item.ContactID == nil {
		return
	}
	if err := f.campaignRepo.MarkContactAttempted(ctx, *item.ContactID, utils.UTCNow()); err != nil {
		f.logger.Printf("failed to mark contact %d attempted: %v", *item.ContactID, err)
	}
}

func (f *DispatchFlowImpl) publishProgress(ctx context.Context, accountID uint, opts DispatchOptions, result *DispatchResult, index int, phone string, success bool) {
	data := map[string]any{
		"index":   index,
		"total":   result.Total,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"phone":   phone,
		"success": success,
	}
	if opts.CampaignID != nil {
		data["campaign_id"] = *opts.CampaignID
	}
	event := services.RealtimeEventDispatchProgress
	if opts.CampaignID != nil {
		event = services.RealtimeEventCampaignProgress
	}
	if err := f.notifier.Publish(ctx, accountID, event, data); err != nil {
		f.logger.Printf("failed to publish progress for account %d: %v", accountID, err)
	}
}

func (f *DispatchFlowImpl) publishBatchComplete(ctx context.Context, accountID uint, opts DispatchOptions, result *DispatchResult) {
	data := map[string]any{
		"total":  result.Total,
		"sent":   result.Sent,
		"failed": result.Failed,
	}
	if result.DenyReason != "" {
		data["deny_reason"] = string(result.DenyReason)
	}
	if opts.CampaignID != nil {
		data["campaign_id"] = *opts.CampaignID
	}
	if err := f.notifier.Publish(ctx, accountID, services.RealtimeEventBatchComplete, data); err != nil {
		f.logger.Printf("failed to publish batch completion for account %d: %v", accountID, err)
	}
}
