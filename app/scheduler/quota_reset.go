// Package scheduler
package scheduler

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"wablast/config"
	"wablast/repository"
)

// QuotaResetJob zeroes the per-account usage counters on cron schedules,
// daily at midnight and monthly on the first.
type QuotaResetJob struct {
	accountRepo repository.AccountRepository
	config      *config.DispatchConfig
	logger      *log.Logger
	cron        *cron.Cron
}

// NewQuotaResetJob creates a new quota reset job
func NewQuotaResetJob(accountRepo repository.AccountRepository, cfg *config.DispatchConfig, logger *log.Logger) *QuotaResetJob {
	return &QuotaResetJob{
		accountRepo: accountRepo,
		config:      cfg,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start registers the cron entries and begins running them. The returned
// stop function drains in-flight jobs.
func (j *QuotaResetJob) Start() (func(), error) {
	if _, err := j.cron.AddFunc(j.config.DailyResetCron, j.ResetDaily); err != nil {
		return nil, err
	}
	if _, err := j.cron.AddFunc(j.config.MonthlyResetCron, j.ResetMonthly); err != nil {
		return nil, err
	}
	j.cron.Start()

	return func() {
		<-j.cron.Stop().Done()
	}, nil
}

// ResetDaily zeroes messages_used_today for every account
func (j *QuotaResetJob) ResetDaily() {
	affected, err := j.accountRepo.ResetDailyUsage(context.Background())
	if err != nil {
		j.logger.Printf("daily quota reset failed: %v", err)
		return
	}
	j.logger.Printf("daily quota reset: %d accounts", affected)
}

// ResetMonthly zeroes messages_used_month for every account
func (j *QuotaResetJob) ResetMonthly() {
	affected, err := j.accountRepo.ResetMonthlyUsage(context.Background())
	if err != nil {
		j.logger.Printf("monthly quota reset failed: %v", err)
		return
	}
	j.logger.Printf("monthly quota reset: %d accounts", affected)
}
