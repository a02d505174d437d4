// Package businessflow contains the core business logic and use cases for message dispatch workflows
package businessflow

import (
	"time"

	"wablast/models"
	"wablast/utils"
)

// DenyReason identifies which gate check rejected a send
type DenyReason string

const (
	DenyDeactivated  DenyReason = "deactivated"
	DenyBanned       DenyReason = "banned"
	DenyExpired      DenyReason = "expired"
	DenyDailyLimit   DenyReason = "daily_limit"
	DenyMonthlyLimit DenyReason = "monthly_limit"
	DenyNoCredits    DenyReason = "no_credits"
)

// Decision is the outcome of a quota gate check
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// Limit and Used are populated for limit-based denials
	Limit int64
	Used  int64
}

// Err converts a denial into a QuotaDeniedError, or nil when allowed
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &QuotaDeniedError{Reason: d.Reason, Limit: d.Limit, Used: d.Used}
}

// QuotaGate decides whether an account may send one more message. Admit is a
// pure predicate over the account snapshot; callers persist counter updates
// separately after a successful send.
type QuotaGate struct {
	creditSystemEnabled bool
	now                 func() time.Time
}

// NewQuotaGate creates a gate. When creditSystemEnabled is false the credit
// balance check is skipped and only activity and quota checks apply.
func NewQuotaGate(creditSystemEnabled bool) *QuotaGate {
	return &QuotaGate{
		creditSystemEnabled: creditSystemEnabled,
		now:                 utils.UTCNow,
	}
}

// Admit runs the gate checks in order: active, banned, expiry, daily limit,
// monthly limit, credits. The first failing check wins.
func (g *QuotaGate) Admit(account *models.Account) Decision {
	if !utils.IsTrue(account.IsActive) {
		return Decision{Reason: DenyDeactivated}
	}
	if utils.IsTrue(account.IsBanned) {
		return Decision{Reason: DenyBanned}
	}
	if account.IsExpired(g.now()) {
		return Decision{Reason: DenyExpired}
	}
	// A zero limit blocks sending outright
	if account.MessagesUsedToday >= account.DailyLimit {
		return Decision{Reason: DenyDailyLimit, Limit: account.DailyLimit, Used: account.MessagesUsedToday}
	}
	if account.MessagesUsedMonth >= account.MonthlyLimit {
		return Decision{Reason: DenyMonthlyLimit, Limit: account.MonthlyLimit, Used: account.MessagesUsedMonth}
	}
	if g.creditSystemEnabled && account.AvailableCredits() <= 0 {
		return Decision{Reason: DenyNoCredits, Limit: account.Credits, Used: account.CreditsUsed}
	}
	return Decision{Allowed: true}
}
