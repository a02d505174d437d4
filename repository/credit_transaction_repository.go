package repository

import (
	"context"
	"errors"

	"wablast/models"

	"gorm.io/gorm"
)

// CreditTransactionRepositoryImpl implements the CreditTransactionRepository interface
type CreditTransactionRepositoryImpl struct {
	*BaseRepository[models.CreditTransaction, models.CreditTransactionFilter]
}

// NewCreditTransactionRepository creates a new credit transaction repository
func NewCreditTransactionRepository(db *gorm.DB) CreditTransactionRepository {
	return &CreditTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CreditTransaction, models.CreditTransactionFilter](db),
	}
}

// ListByAccount returns ledger rows for the account, newest first
func (r *CreditTransactionRepositoryImpl) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.CreditTransaction, error) {
	db := r.getDB(ctx)
	query := db.Where("account_id = ?", accountID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.CreditTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestByAccount returns the most recent ledger row for the account
func (r *CreditTransactionRepositoryImpl) LatestByAccount(ctx context.Context, accountID uint) (*models.CreditTransaction, error) {
	db := r.getDB(ctx)
	var row models.CreditTransaction
	err := db.Where("account_id = ?", accountID).Order("created_at DESC, id DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// SumByAccount recomputes the net balance from the full ledger history
func (r *CreditTransactionRepositoryImpl) SumByAccount(ctx context.Context, accountID uint) (int64, error) {
	db := r.getDB(ctx)
	var sum *int64
	err := db.Model(&models.CreditTransaction{}).
		Where("account_id = ?", accountID).
		Select("SUM(amount)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// ByFilter retrieves ledger rows based on filter criteria
func (r *CreditTransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.CreditTransactionFilter, orderBy string, limit, offset int) ([]*models.CreditTransaction, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.CreditTransaction{})

	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
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

	var rows []*models.CreditTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
