package repository

import (
	"context"
	"errors"

	"wablast/models"
	"wablast/utils"

	"gorm.io/gorm"
)

// MessageRepositoryImpl implements the MessageRepository interface
type MessageRepositoryImpl struct {
	*BaseRepository[models.Message, models.MessageFilter]
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Message, models.MessageFilter](db),
	}
}

// ByTransportMessageID finds the outcome record correlated with a provider receipt
func (r *MessageRepositoryImpl) ByTransportMessageID(ctx context.Context, transportMessageID string) (*models.Message, error) {
	db := r.getDB(ctx)
	var msg models.Message
	err := db.Where("transport_message_id = ?", transportMessageID).Last(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// Update persists the message
func (r *MessageRepositoryImpl) Update(ctx context.Context, msg *models.Message) error {
	db := r.getDB(ctx)
	msg.UpdatedAt = utils.UTCNow()
	return db.Save(msg).Error
}

// CountByCampaign counts a campaign's messages in the given status
func (r *MessageRepositoryImpl) CountByCampaign(ctx context.Context, campaignID uint, status models.MessageStatus) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Message{}).
		Where("campaign_id = ? AND status = ?", campaignID, status).
		Count(&count).Error
	return count, err
}

// ByFilter retrieves messages based on filter criteria
func (r *MessageRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Message{})

	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Phone != nil {
		query = query.Where("phone = ?", *filter.Phone)
	}
	if filter.TransportMessageID != nil {
		query = query.Where("transport_message_id = ?", *filter.TransportMessageID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
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

	var rows []*models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
