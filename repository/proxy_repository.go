package repository

import (
	"context"
	"time"

	"wablast/models"
	"wablast/utils"

	"gorm.io/gorm"
)

// ProxyConfigRepositoryImpl implements the ProxyConfigRepository interface
type ProxyConfigRepositoryImpl struct {
	*BaseRepository[models.ProxyConfig, models.ProxyConfigFilter]
}

// NewProxyConfigRepository creates a new proxy config repository
func NewProxyConfigRepository(db *gorm.DB) ProxyConfigRepository {
	return &ProxyConfigRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ProxyConfig, models.ProxyConfigFilter](db),
	}
}

// Update persists the proxy config
func (r *ProxyConfigRepositoryImpl) Update(ctx context.Context, proxy *models.ProxyConfig) error {
	db := r.getDB(ctx)
	proxy.UpdatedAt = utils.UTCNow()
	return db.Save(proxy).Error
}

// ListCandidates returns active proxies scoped to the account unioned with
// global ones (only global when accountID is nil), best candidate first
func (r *ProxyConfigRepositoryImpl) ListCandidates(ctx context.Context, accountID *uint) ([]*models.ProxyConfig, error) {
	db := r.getDB(ctx)
	query := db.Where("is_active = ?", true)
	if accountID != nil {
		query = query.Where("account_id = ? OR is_global = ?", *accountID, true)
	} else {
		query = query.Where("is_global = ?", true)
	}
	var rows []*models.ProxyConfig
	err := query.Order("priority ASC, fail_count ASC, usage_count ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// IncrementUsage atomically bumps the proxy usage counter
func (r *ProxyConfigRepositoryImpl) IncrementUsage(ctx context.Context, proxyID uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.ProxyConfig{}).
		Where("id = ?", proxyID).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  utils.UTCNow(),
		}).Error
}

// RecordHealth applies a probe outcome: success resets fail_count and marks
// the proxy working, failure increments fail_count and marks it failed.
// Proxies are never deactivated here; operators keep visibility.
func (r *ProxyConfigRepositoryImpl) RecordHealth(ctx context.Context, proxyID uint, ok bool, at time.Time) error {
	db := r.getDB(ctx)

	updates := map[string]any{
		"last_checked_at": at,
		"updated_at":      utils.UTCNow(),
	}
	if ok {
		updates["last_status"] = models.ProxyStatusWorking
		updates["fail_count"] = 0
	} else {
		updates["last_status"] = models.ProxyStatusFailed
		updates["fail_count"] = gorm.Expr("fail_count + 1")
	}

	return db.Model(&models.ProxyConfig{}).
		Where("id = ?", proxyID).
		Updates(updates).Error
}

// ByFilter retrieves proxy configs based on filter criteria
func (r *ProxyConfigRepositoryImpl) ByFilter(ctx context.Context, filter models.ProxyConfigFilter, orderBy string, limit, offset int) ([]*models.ProxyConfig, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.ProxyConfig{})

	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.IsGlobal != nil {
		query = query.Where("is_global = ?", *filter.IsGlobal)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("last_status = ?", *filter.Status)
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

	var rows []*models.ProxyConfig
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
