package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/config"
	"wablast/models"
)

// fakeResetAccountRepo implements AccountRepository; only the usage reset
// operations carry behavior
type fakeResetAccountRepo struct {
	mu            sync.Mutex
	dailyResets   int
	monthlyResets int
	err           error
}

func (r *fakeResetAccountRepo) ByID(context.Context, uint) (*models.Account, error) {
	return nil, nil
}

func (r *fakeResetAccountRepo) ByFilter(context.Context, models.AccountFilter, string, int, int) ([]*models.Account, error) {
	return nil, nil
}

func (r *fakeResetAccountRepo) Save(context.Context, *models.Account) error { return nil }

func (r *fakeResetAccountRepo) SaveBatch(context.Context, []*models.Account) error { return nil }

func (r *fakeResetAccountRepo) ByUUID(context.Context, string) (*models.Account, error) {
	return nil, nil
}

func (r *fakeResetAccountRepo) ByEmail(context.Context, string) (*models.Account, error) {
	return nil, nil
}

func (r *fakeResetAccountRepo) ByIDForUpdate(context.Context, uint) (*models.Account, error) {
	return nil, nil
}

func (r *fakeResetAccountRepo) Update(context.Context, *models.Account) error { return nil }

func (r *fakeResetAccountRepo) IncrementUsage(context.Context, uint) error { return nil }

func (r *fakeResetAccountRepo) UpdateCounters(context.Context, uint, int64, int64) error {
	return nil
}

func (r *fakeResetAccountRepo) ResetDailyUsage(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.dailyResets++
	return 3, nil
}

func (r *fakeResetAccountRepo) ResetMonthlyUsage(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.monthlyResets++
	return 3, nil
}

func (r *fakeResetAccountRepo) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dailyResets, r.monthlyResets
}

func resetJob(repo *fakeResetAccountRepo, daily, monthly string) *QuotaResetJob {
	cfg := &config.DispatchConfig{
		DailyResetCron:   daily,
		MonthlyResetCron: monthly,
	}
	return NewQuotaResetJob(repo, cfg, log.New(io.Discard, "", 0))
}

func TestQuotaResetRunsBothCounters(t *testing.T) {
	repo := &fakeResetAccountRepo{}
	job := resetJob(repo, "0 0 * * *", "0 0 1 * *")

	job.ResetDaily()
	job.ResetDaily()
	job.ResetMonthly()

	daily, monthly := repo.counts()
	assert.Equal(t, 2, daily)
	assert.Equal(t, 1, monthly)
}

func TestQuotaResetToleratesRepositoryError(t *testing.T) {
	repo := &fakeResetAccountRepo{err: errors.New("db down")}
	job := resetJob(repo, "0 0 * * *", "0 0 1 * *")

	job.ResetDaily()
	job.ResetMonthly()

	daily, monthly := repo.counts()
	assert.Zero(t, daily)
	assert.Zero(t, monthly)
}

func TestQuotaResetStartRejectsBadCron(t *testing.T) {
	repo := &fakeResetAccountRepo{}

	_, err := resetJob(repo, "not a cron spec", "0 0 1 * *").Start()
	require.Error(t, err)

	_, err = resetJob(repo, "0 0 * * *", "also bad").Start()
	require.Error(t, err)
}

func TestQuotaResetStartAndStop(t *testing.T) {
	repo := &fakeResetAccountRepo{}
	job := resetJob(repo, "0 0 * * *", "0 0 1 * *")

	stop, err := job.Start()
	require.NoError(t, err)
	require.NotNil(t, stop)

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not drain")
	}
}
