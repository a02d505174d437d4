// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"wablast/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// AccountRepository defines operations for accounts. The dispatch engine does
// not own account CRUD; it reads gate fields and mutates usage/credit counters.
type AccountRepository interface {
	Repository[models.Account, models.AccountFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Account, error)
	ByEmail(ctx context.Context, email string) (*models.Account, error)
	// ByIDForUpdate loads the account under a row lock; must run inside a
	// transaction carried by ctx.
	ByIDForUpdate(ctx context.Context, id uint) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	// IncrementUsage atomically bumps messages_used_today and
	// messages_used_month by one.
	IncrementUsage(ctx context.Context, accountID uint) error
	// UpdateCounters writes the denormalized credit counters
	UpdateCounters(ctx context.Context, accountID uint, credits, creditsUsed int64) error
	ResetDailyUsage(ctx context.Context) (int64, error)
	ResetMonthlyUsage(ctx context.Context) (int64, error)
}

// CreditTransactionRepository defines operations for the append-only credit ledger
type CreditTransactionRepository interface {
	Repository[models.CreditTransaction, models.CreditTransactionFilter]
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.CreditTransaction, error)
	// LatestByAccount returns the most recent ledger row for the account
	LatestByAccount(ctx context.Context, accountID uint) (*models.CreditTransaction, error)
	// SumByAccount recomputes the net balance from ledger history; used by
	// reconciliation, for which the ledger is the source of truth.
	SumByAccount(ctx context.Context, accountID uint) (int64, error)
}

// CampaignRepository defines operations for campaigns and their contacts
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	// UpdateStatus transitions status only when the current status is one of
	// the allowed values; returns false when the guard did not match.
	UpdateStatus(ctx context.Context, campaignID uint, from []models.CampaignStatus, to models.CampaignStatus) (bool, error)
	// IncrementCounters atomically adds to sent_count and failed_count
	IncrementCounters(ctx context.Context, campaignID uint, sentDelta, failedDelta int64) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	Delete(ctx context.Context, campaignID uint) error

	SaveContacts(ctx context.Context, contacts []*models.CampaignContact) error
	CountContacts(ctx context.Context, campaignID uint) (int64, error)
	// ListUnattemptedContacts returns contacts the loop has not tried yet,
	// ordered by id, so a resumed campaign continues where it stopped.
	ListUnattemptedContacts(ctx context.Context, campaignID uint, limit int) ([]*models.CampaignContact, error)
	MarkContactAttempted(ctx context.Context, contactID uint, at time.Time) error
}

// ScheduledMessageRepository defines operations for scheduled messages
type ScheduledMessageRepository interface {
	Repository[models.ScheduledMessage, models.ScheduledMessageFilter]
	Update(ctx context.Context, msg *models.ScheduledMessage) error
	// ListDue returns pending rows with scheduled_at <= now, capped at limit
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error)
	MarkSent(ctx context.Context, id uint, at time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string) error
}

// MessageRepository defines operations for outbound message outcome records
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	ByTransportMessageID(ctx context.Context, transportMessageID string) (*models.Message, error)
	Update(ctx context.Context, msg *models.Message) error
	CountByCampaign(ctx context.Context, campaignID uint, status models.MessageStatus) (int64, error)
}

// WebhookRepository defines operations for webhooks and their delivery logs
type WebhookRepository interface {
	Repository[models.Webhook, models.WebhookFilter]
	Update(ctx context.Context, webhook *models.Webhook) error
	// ListActiveByEvent returns the account's active webhooks subscribed to event
	ListActiveByEvent(ctx context.Context, accountID uint, event string) ([]*models.Webhook, error)
	// RecordResult bumps total_calls plus success_calls or failed_calls and
	// refreshes the last_* fields in one atomic update.
	RecordResult(ctx context.Context, webhookID uint, success bool, statusCode int, errMsg *string, at time.Time) error

	SaveLog(ctx context.Context, log *models.WebhookLog) error
	ListLogs(ctx context.Context, webhookID uint, limit, offset int) ([]*models.WebhookLog, error)
	CountLogs(ctx context.Context, webhookID uint, success *bool) (int64, error)
}

// ProxyConfigRepository defines operations for outbound proxy selection and health
type ProxyConfigRepository interface {
	Repository[models.ProxyConfig, models.ProxyConfigFilter]
	Update(ctx context.Context, proxy *models.ProxyConfig) error
	// ListCandidates returns active proxies scoped to the account unioned with
	// global ones (only global when accountID is nil), ordered by
	// (priority ASC, fail_count ASC, usage_count ASC).
	ListCandidates(ctx context.Context, accountID *uint) ([]*models.ProxyConfig, error)
	IncrementUsage(ctx context.Context, proxyID uint) error
	// RecordHealth applies a probe outcome: success resets fail_count and sets
	// last_status=working, failure increments fail_count and sets failed.
	RecordHealth(ctx context.Context, proxyID uint, ok bool, at time.Time) error
}
