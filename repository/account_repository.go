package repository

import (
	"context"
	"errors"

	"wablast/models"
	"wablast/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepositoryImpl implements the AccountRepository interface
type AccountRepositoryImpl struct {
	*BaseRepository[models.Account, models.AccountFilter]
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &AccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Account, models.AccountFilter](db),
	}
}

// ByUUID finds an account by UUID
func (r *AccountRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Account, error) {
	db := r.getDB(ctx)
	var account models.Account
	err := db.Where("uuid = ?", uuid).Last(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ByEmail finds an account by email
func (r *AccountRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.Account, error) {
	db := r.getDB(ctx)
	var account models.Account
	err := db.Where("email = ?", email).Last(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ByIDForUpdate loads the account under SELECT ... FOR UPDATE. The row lock
// serializes concurrent ledger mutations per account; callers must hold a
// transaction in ctx or the lock is pointless.
func (r *AccountRepositoryImpl) ByIDForUpdate(ctx context.Context, id uint) (*models.Account, error) {
	db := r.getDB(ctx)
	var account models.Account
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Update persists the account
func (r *AccountRepositoryImpl) Update(ctx context.Context, account *models.Account) error {
	db := r.getDB(ctx)
	account.UpdatedAt = utils.UTCNow()
	return db.Save(account).Error
}

// IncrementUsage atomically bumps the daily and monthly usage counters by one
func (r *AccountRepositoryImpl) IncrementUsage(ctx context.Context, accountID uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"messages_used_today": gorm.Expr("messages_used_today + 1"),
			"messages_used_month": gorm.Expr("messages_used_month + 1"),
			"updated_at":          utils.UTCNow(),
		}).Error
}

// UpdateCounters writes the denormalized credit counters
func (r *AccountRepositoryImpl) UpdateCounters(ctx context.Context, accountID uint, credits, creditsUsed int64) error {
	db := r.getDB(ctx)
	return db.Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"credits":      credits,
			"credits_used": creditsUsed,
			"updated_at":   utils.UTCNow(),
		}).Error
}

// ResetDailyUsage zeroes messages_used_today for every account
func (r *AccountRepositoryImpl) ResetDailyUsage(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Account{}).
		Where("messages_used_today > 0").
		Updates(map[string]any{
			"messages_used_today": 0,
			"updated_at":          utils.UTCNow(),
		})
	return res.RowsAffected, res.Error
}

// ResetMonthlyUsage zeroes messages_used_month for every account
func (r *AccountRepositoryImpl) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Account{}).
		Where("messages_used_month > 0").
		Updates(map[string]any{
			"messages_used_month": 0,
			"updated_at":          utils.UTCNow(),
		})
	return res.RowsAffected, res.Error
}

// ByFilter retrieves accounts based on filter criteria
func (r *AccountRepositoryImpl) ByFilter(ctx context.Context, filter models.AccountFilter, orderBy string, limit, offset int) ([]*models.Account, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Account{})

	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.IsBanned != nil {
		query = query.Where("is_banned = ?", *filter.IsBanned)
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

	var accounts []*models.Account
	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
