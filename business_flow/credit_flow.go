// Package businessflow contains the core business logic and use cases for message dispatch workflows
package businessflow

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"wablast/models"
	"wablast/repository"
)

// CreditFlow owns the append-only credit ledger and the denormalized
// counters on Account. Every balance change inserts a ledger row and updates
// the counters in one transaction, under a row lock on the account.
type CreditFlow interface {
	// ApplyDelta applies a signed credit change and returns the resulting
	// ledger entry. Deductions that would take the balance below zero fail
	// with ErrInsufficientCredits and leave no trace.
	ApplyDelta(ctx context.Context, accountID uint, amount int64, txType models.CreditTransactionType, description string, actorID *uint) (*models.CreditTransaction, error)
	// DeductForSend consumes one credit for a successful send
	DeductForSend(ctx context.Context, accountID uint) (*models.CreditTransaction, error)
	// Transfer moves credits between accounts. Both legs commit together or
	// not at all.
	Transfer(ctx context.Context, fromID, toID uint, amount int64, actorID *uint) error
	// Balance returns the account's total, used and available credits
	Balance(ctx context.Context, accountID uint) (*BalanceSnapshot, error)
	// Reconcile recomputes the balance from ledger history and reports any
	// drift against the denormalized counters. When repair is set, the
	// counters are rewritten to match the ledger.
	Reconcile(ctx context.Context, accountID uint, repair bool) (*ReconcileReport, error)
}

// BalanceSnapshot is a point-in-time view of an account's credits
type BalanceSnapshot struct {
	AccountID uint  `json:"account_id"`
	Credits   int64 `json:"credits"`
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
}

// ReconcileReport compares the ledger-derived balance with the counters
type ReconcileReport struct {
	AccountID      uint  `json:"account_id"`
	LedgerBalance  int64 `json:"ledger_balance"`
	CounterBalance int64 `json:"counter_balance"`
	Drift          int64 `json:"drift"`
	Repaired       bool  `json:"repaired"`
}

// CreditFlowImpl implements CreditFlow
type CreditFlowImpl struct {
	accountRepo repository.AccountRepository
	ledgerRepo  repository.CreditTransactionRepository
	db          *gorm.DB
	logger      *log.Logger
}

// NewCreditFlow creates a new credit flow
func NewCreditFlow(
	accountRepo repository.AccountRepository,
	ledgerRepo repository.CreditTransactionRepository,
	db *gorm.DB,
	logger *log.Logger,
) CreditFlow {
	return &CreditFlowImpl{
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		db:          db,
		logger:      logger,
	}
}

// ApplyDelta changes the account balance by amount inside one transaction.
// The account row lock serializes concurrent changes so BalanceBefore and
// BalanceAfter always chain correctly.
func (f *CreditFlowImpl) ApplyDelta(ctx context.Context, accountID uint, amount int64, txType models.CreditTransactionType, description string, actorID *uint) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		entry, err = f.applyDeltaLocked(txCtx, accountID, amount, txType, description, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// applyDeltaLocked must run inside a transaction carried by ctx
func (f *CreditFlowImpl) applyDeltaLocked(ctx context.Context, accountID uint, amount int64, txType models.CreditTransactionType, description string, actorID *uint) (*models.CreditTransaction, error) {
	account, err := f.accountRepo.ByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	balanceBefore := account.AvailableCredits()
	balanceAfter := balanceBefore + amount
	if balanceAfter < 0 {
		return nil, ErrInsufficientCredits
	}

	// Usage consumes from the used counter; every other deduction shrinks
	// the provisioned total. Grants always raise the total.
	credits, creditsUsed := account.Credits, account.CreditsUsed
	switch {
	case amount >= 0:
		credits += amount
	case txType == models.CreditTransactionTypeUsage:
		creditsUsed += -amount
	default:
		credits -= -amount
	}

	if err := f.accountRepo.UpdateCounters(ctx, accountID, credits, creditsUsed); err != nil {
		return nil, fmt.Errorf("failed to update credit counters: %w", err)
	}

	entry := &models.CreditTransaction{
		AccountID:     accountID,
		ActorID:       actorID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Description:   description,
	}
	if err := f.ledgerRepo.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return entry, nil
}

// DeductForSend consumes one credit for a successful send
func (f *CreditFlowImpl) DeductForSend(ctx context.Context, accountID uint) (*models.CreditTransaction, error) {
	return f.ApplyDelta(ctx, accountID, -1, models.CreditTransactionTypeUsage, "Message sent", nil)
}

// Transfer debits the sender and credits the receiver in one transaction.
// Accounts are locked in ID order to avoid deadlocks between concurrent
// opposite-direction transfers.
func (f *CreditFlowImpl) Transfer(ctx context.Context, fromID, toID uint, amount int64, actorID *uint) error {
	if fromID == toID {
		return ErrTransferSameAccount
	}
	if amount <= 0 {
		return ErrTransferAmountInvalid
	}

	return repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		first, second := fromID, toID
		if second < first {
			first, second = second, first
		}
		if _, err := f.accountRepo.ByIDForUpdate(txCtx, first); err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}
		if _, err := f.accountRepo.ByIDForUpdate(txCtx, second); err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}

		if _, err := f.applyDeltaLocked(txCtx, fromID, -amount, models.CreditTransactionTypeTransfer,
			fmt.Sprintf("Transfer to account %d", toID), actorID); err != nil {
			return err
		}
		if _, err := f.applyDeltaLocked(txCtx, toID, amount, models.CreditTransactionTypeTransfer,
			fmt.Sprintf("Transfer from account %d", fromID), actorID); err != nil {
			return err
		}
		return nil
	})
}

// Balance returns the account's current credit counters
func (f *CreditFlowImpl) Balance(ctx context.Context, accountID uint) (*BalanceSnapshot, error) {
	account, err := f.accountRepo.ByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return &BalanceSnapshot{
		AccountID: accountID,
		Credits:   account.Credits,
		Used:      account.CreditsUsed,
		Available: account.AvailableCredits(),
	}, nil
}

// Reconcile treats the ledger as the source of truth and reports counter drift
func (f *CreditFlowImpl) Reconcile(ctx context.Context, accountID uint, repair bool) (*ReconcileReport, error) {
	var report *ReconcileReport
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		account, err := f.accountRepo.ByIDForUpdate(txCtx, accountID)
		if err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}
		if account == nil {
			return ErrAccountNotFound
		}

		ledgerBalance, err := f.ledgerRepo.SumByAccount(txCtx, accountID)
		if err != nil {
			return fmt.Errorf("failed to sum ledger: %w", err)
		}

		counterBalance := account.AvailableCredits()
		report = &ReconcileReport{
			AccountID:      accountID,
			LedgerBalance:  ledgerBalance,
			CounterBalance: counterBalance,
			Drift:          counterBalance - ledgerBalance,
		}
		if report.Drift == 0 || !repair {
			return nil
		}

		// Rewrite the provisioned total so available matches the ledger
		if err := f.accountRepo.UpdateCounters(txCtx, accountID, account.CreditsUsed+ledgerBalance, account.CreditsUsed); err != nil {
			return fmt.Errorf("failed to repair counters: %w", err)
		}
		report.Repaired = true
		f.logger.Printf("reconciled account %d: drift %d repaired", accountID, report.Drift)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
