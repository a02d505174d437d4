package repository

import (
	"context"
	"time"

	"wablast/models"
	"wablast/utils"

	"gorm.io/gorm"
)

// ScheduledMessageRepositoryImpl implements the ScheduledMessageRepository interface
type ScheduledMessageRepositoryImpl struct {
	*BaseRepository[models.ScheduledMessage, models.ScheduledMessageFilter]
}

// NewScheduledMessageRepository creates a new scheduled message repository
func NewScheduledMessageRepository(db *gorm.DB) ScheduledMessageRepository {
	return &ScheduledMessageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ScheduledMessage, models.ScheduledMessageFilter](db),
	}
}

// Update persists the scheduled message
func (r *ScheduledMessageRepositoryImpl) Update(ctx context.Context, msg *models.ScheduledMessage) error {
	db := r.getDB(ctx)
	msg.UpdatedAt = utils.UTCNow()
	return db.Save(msg).Error
}

// ListDue returns pending rows with scheduled_at <= now, oldest first
func (r *ScheduledMessageRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var rows []*models.ScheduledMessage
	err := db.Where("status = ? AND scheduled_at <= ?", models.ScheduledMessageStatusPending, now).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkSent transitions the row to sent and stamps sent_at
func (r *ScheduledMessageRepositoryImpl) MarkSent(ctx context.Context, id uint, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.ScheduledMessageStatusSent,
			"sent_at":    at,
			"updated_at": utils.UTCNow(),
		}).Error
}

// MarkFailed transitions the row to failed with a human-readable reason
func (r *ScheduledMessageRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string) error {
	db := r.getDB(ctx)
	return db.Model(&models.ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.ScheduledMessageStatusFailed,
			"error_message": reason,
			"updated_at":    utils.UTCNow(),
		}).Error
}

// ByFilter retrieves scheduled messages based on filter criteria
func (r *ScheduledMessageRepositoryImpl) ByFilter(ctx context.Context, filter models.ScheduledMessageFilter, orderBy string, limit, offset int) ([]*models.ScheduledMessage, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.ScheduledMessage{})

	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.DueBefore != nil {
		query = query.Where("scheduled_at <= ?", *filter.DueBefore)
	}
	if filter.Recurring != nil {
		query = query.Where("recurring = ?", *filter.Recurring)
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

	var rows []*models.ScheduledMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
