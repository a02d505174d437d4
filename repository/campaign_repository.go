package repository

import (
	"context"
	"errors"
	"time"

	"wablast/models"
	"wablast/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, raw string) (*models.Campaign, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}

	db := r.getDB(ctx)
	var campaign models.Campaign
	err = db.Where("uuid = ?", parsed).Last(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

// Update persists the campaign
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) error {
	db := r.getDB(ctx)
	campaign.UpdatedAt = utils.UTCNow()
	return db.Save(campaign).Error
}

// UpdateStatus transitions status only when the current status is one of the
// allowed values. The guard makes concurrent state-machine callers safe: the
// losing writer observes false and gives up.
func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, campaignID uint, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status IN ?", campaignID, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementCounters atomically adds to sent_count and failed_count
func (r *CampaignRepositoryImpl) IncrementCounters(ctx context.Context, campaignID uint, sentDelta, failedDelta int64) error {
	if sentDelta == 0 && failedDelta == 0 {
		return nil
	}
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{
			"sent_count":   gorm.Expr("sent_count + ?", sentDelta),
			"failed_count": gorm.Expr("failed_count + ?", failedDelta),
			"updated_at":   utils.UTCNow(),
		}).Error
}

// ListDue returns scheduled campaigns whose scheduled_at has passed
func (r *CampaignRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var rows []*models.Campaign
	err := db.Where("status = ? AND scheduled_at <= ?", models.CampaignStatusScheduled, now).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete soft-deletes the campaign and its contacts
func (r *CampaignRepositoryImpl) Delete(ctx context.Context, campaignID uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	if err = db.Where("campaign_id = ?", campaignID).Delete(&models.CampaignContact{}).Error; err != nil {
		return err
	}
	err = db.Delete(&models.Campaign{}, campaignID).Error
	return err
}

// SaveContacts inserts resolved recipients in batches
func (r *CampaignRepositoryImpl) SaveContacts(ctx context.Context, contacts []*models.CampaignContact) error {
	if len(contacts) == 0 {
		return nil
	}
	db := r.getDB(ctx)
	return db.CreateInBatches(contacts, 100).Error
}

// CountContacts returns the number of resolved recipients for the campaign
func (r *CampaignRepositoryImpl) CountContacts(ctx context.Context, campaignID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.CampaignContact{}).
		Where("campaign_id = ?", campaignID).
		Count(&count).Error
	return count, err
}

// ListUnattemptedContacts returns contacts the loop has not tried yet, in id
// order, so a resumed campaign continues from where it stopped
func (r *CampaignRepositoryImpl) ListUnattemptedContacts(ctx context.Context, campaignID uint, limit int) ([]*models.CampaignContact, error) {
	db := r.getDB(ctx)
	query := db.Where("campaign_id = ? AND attempted_at IS NULL", campaignID).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []*models.CampaignContact
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkContactAttempted stamps the contact so it is never retried by resume
func (r *CampaignRepositoryImpl) MarkContactAttempted(ctx context.Context, contactID uint, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.CampaignContact{}).
		Where("id = ?", contactID).
		Update("attempted_at", at).Error
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Campaign{})

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
	if filter.ScheduledBefore != nil {
		query = query.Where("scheduled_at <= ?", *filter.ScheduledBefore)
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

	var rows []*models.Campaign
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
