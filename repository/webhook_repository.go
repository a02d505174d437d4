package repository

import (
	"context"
	"time"

	"wablast/models"
	"wablast/utils"

	"gorm.io/gorm"
)

// WebhookRepositoryImpl implements the WebhookRepository interface
type WebhookRepositoryImpl struct {
	*BaseRepository[models.Webhook, models.WebhookFilter]
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &WebhookRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Webhook, models.WebhookFilter](db),
	}
}

// Update persists the webhook
func (r *WebhookRepositoryImpl) Update(ctx context.Context, webhook *models.Webhook) error {
	db := r.getDB(ctx)
	webhook.UpdatedAt = utils.UTCNow()
	return db.Save(webhook).Error
}

// ListActiveByEvent returns the account's active webhooks subscribed to event
func (r *WebhookRepositoryImpl) ListActiveByEvent(ctx context.Context, accountID uint, event string) ([]*models.Webhook, error) {
	db := r.getDB(ctx)
	var rows []*models.Webhook
	err := db.Where("account_id = ? AND is_active = ? AND ? = ANY(events)", accountID, true, event).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecordResult bumps the delivery counters and refreshes the last_* fields in
// one atomic update, so concurrent deliveries never lose increments
func (r *WebhookRepositoryImpl) RecordResult(ctx context.Context, webhookID uint, success bool, statusCode int, errMsg *string, at time.Time) error {
	db := r.getDB(ctx)

	updates := map[string]any{
		"total_calls":    gorm.Expr("total_calls + 1"),
		"last_called_at": at,
		"last_status":    statusCode,
		"updated_at":     utils.UTCNow(),
	}
	if success {
		updates["success_calls"] = gorm.Expr("success_calls + 1")
		updates["last_error"] = nil
	} else {
		updates["failed_calls"] = gorm.Expr("failed_calls + 1")
		updates["last_error"] = errMsg
	}

	return db.Model(&models.Webhook{}).
		Where("id = ?", webhookID).
		Updates(updates).Error
}

// SaveLog inserts an immutable delivery-attempt record
func (r *WebhookRepositoryImpl) SaveLog(ctx context.Context, log *models.WebhookLog) error {
	db := r.getDB(ctx)
	return db.Create(log).Error
}

// ListLogs returns delivery logs for the webhook, newest first
func (r *WebhookRepositoryImpl) ListLogs(ctx context.Context, webhookID uint, limit, offset int) ([]*models.WebhookLog, error) {
	db := r.getDB(ctx)
	query := db.Where("webhook_id = ?", webhookID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.WebhookLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountLogs counts delivery logs, optionally restricted by success flag
func (r *WebhookRepositoryImpl) CountLogs(ctx context.Context, webhookID uint, success *bool) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.WebhookLog{}).Where("webhook_id = ?", webhookID)
	if success != nil {
		query = query.Where("success = ?", *success)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// ByFilter retrieves webhooks based on filter criteria
func (r *WebhookRepositoryImpl) ByFilter(ctx context.Context, filter models.WebhookFilter, orderBy string, limit, offset int) ([]*models.Webhook, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Webhook{})

	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Event != nil {
		query = query.Where("? = ANY(events)", *filter.Event)
	}

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.Webhook
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
