package businessflow

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/app/services"
	"wablast/config"
	"wablast/models"
	"wablast/utils"
)

type dispatchFixture struct {
	flow        *DispatchFlowImpl
	accountRepo *fakeAccountRepo
	messageRepo *fakeMessageRepo
	campaigns   *fakeCampaignRepo
	credits     *fakeCreditFlow
	sessions    *services.MockSessionManager
	trigger     *fakeWebhookTrigger
	notifier    *services.MockNotifier

	mu     sync.Mutex
	sleeps []time.Duration
}

func newDispatchFixture(account *models.Account, cfg *config.DispatchConfig) *dispatchFixture {
	fx := &dispatchFixture{
		accountRepo: newFakeAccountRepo(account),
		messageRepo: newFakeMessageRepo(),
		campaigns:   newFakeCampaignRepo(),
		sessions:    services.NewMockSessionManager(),
		trigger:     &fakeWebhookTrigger{},
		notifier:    services.NewMockNotifier(),
	}
	fx.credits = newFakeCreditFlow(fx.accountRepo)

	fx.flow = NewDispatchFlow(
		fx.accountRepo,
		fx.messageRepo,
		fx.campaigns,
		fx.credits,
		fx.sessions,
		fx.trigger,
		fx.notifier,
		cfg,
		log.New(io.Discard, "", 0),
	)

	// Record pacing decisions instead of sleeping
	fx.flow.sleep = func(ctx context.Context, d time.Duration) error {
		fx.mu.Lock()
		fx.sleeps = append(fx.sleeps, d)
		fx.mu.Unlock()
		return nil
	}
	return fx
}

func defaultDispatchConfig() *config.DispatchConfig {
	return &config.DispatchConfig{
		CreditSystemEnabled: true,
		MinDelay:            5 * time.Second,
		MaxDelay:            15 * time.Second,
		BatchSize:           100,
	}
}

func batchOf(n int) []DispatchItem {
	items := make([]DispatchItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, DispatchItem{Phone: "+1555000000" + string(rune('1'+i))})
	}
	return items
}

func TestRunBatchSendsEveryItem(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())

	result, err := fx.flow.RunBatch(context.Background(), 1, batchOf(3), DispatchOptions{Template: "hello"})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.Stopped)

	assert.Len(t, fx.sessions.Sent, 3)
	assert.Len(t, fx.messageRepo.byStatus(models.MessageStatusSent), 3)
	assert.Len(t, fx.credits.Deductions, 3)

	account, _ := fx.accountRepo.ByID(context.Background(), 1)
	assert.Equal(t, int64(3), account.MessagesUsedToday)
	assert.Equal(t, int64(3), account.MessagesUsedMonth)

	// One message.sent webhook per recipient
	assert.Len(t, fx.trigger.byEvent(models.WebhookEventMessageSent), 3)
}

func TestRunBatchRejectsOversizeBatch(t *testing.T) {
	cfg := defaultDispatchConfig()
	cfg.BatchSize = 2
	fx := newDispatchFixture(activeAccount(), cfg)

	_, err := fx.flow.RunBatch(context.Background(), 1, batchOf(3), DispatchOptions{Template: "hello"})

	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Empty(t, fx.sessions.Sent)
}

func TestRunBatchPacingBetweenItemsOnly(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())

	var rangesSeen [][2]time.Duration
	fx.flow.randDelay = func(min, max time.Duration) time.Duration {
		rangesSeen = append(rangesSeen, [2]time.Duration{min, max})
		return min
	}

	_, err := fx.flow.RunBatch(context.Background(), 1, batchOf(3), DispatchOptions{
		Template: "hello",
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 200 * time.Millisecond,
	})

	require.NoError(t, err)
	// Two gaps for three items, none after the last
	require.Len(t, fx.sleeps, 2)
	require.Len(t, rangesSeen, 2)
	for _, r := range rangesSeen {
		assert.Equal(t, 100*time.Millisecond, r[0])
		assert.Equal(t, 200*time.Millisecond, r[1])
	}
	for _, d := range fx.sleeps {
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestRunBatchFallsBackToConfiguredDelays(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())

	var seen [2]time.Duration
	fx.flow.randDelay = func(min, max time.Duration) time.Duration {
		seen = [2]time.Duration{min, max}
		return 0
	}

	_, err := fx.flow.RunBatch(context.Background(), 1, batchOf(2), DispatchOptions{Template: "hello"})

	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, seen[0])
	assert.Equal(t, 15*time.Second, seen[1])
}

func TestRunBatchEmptyBatch(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())

	_, err := fx.flow.RunBatch(context.Background(), 1, nil, DispatchOptions{Template: "hello"})

	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestRunBatchSessionNotConnected(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())
	fx.sessions.Connected = false

	result, err := fx.flow.RunBatch(context.Background(), 1, batchOf(3), DispatchOptions{Template: "hello"})

	assert.ErrorIs(t, err, ErrSessionNotConnected)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 3, result.Failed)
	assert.Len(t, fx.messageRepo.byStatus(models.MessageStatusFailed), 3)
	assert.Empty(t, fx.sessions.Sent)
}

func TestRunBatchDeniedMidBatchFailsRemainder(t *testing.T) {
	account := activeAccount()
	account.Credits = 1
	fx := newDispatchFixture(account, defaultDispatchConfig())

	result, err := fx.flow.RunBatch(context.Background(), 1, batchOf(5), DispatchOptions{Template: "hello"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 4, result.Failed)
	assert.Equal(t, DenyNoCredits, result.DenyReason)

	// The denied remainder is recorded, not silently dropped
	assert.Len(t, fx.messageRepo.byStatus(models.MessageStatusSent), 1)
	assert.Len(t, fx.messageRepo.byStatus(models.MessageStatusFailed), 4)
	assert.Len(t, fx.sessions.Sent, 1)
}

func TestRunBatchPauseLeavesRemainderUntouched(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())

	calls := 0
	opts := DispatchOptions{
		Template: "hello",
		Continue: func(ctx context.Context) (bool, error) {
			calls++
			return calls <= 2, nil
		},
	}

	result, err := fx.flow.RunBatch(context.Background(), 1, batchOf(4), opts)

	require.NoError(t, err)
	assert.True(t, result.Stopped)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 0, result.Failed)
	// Only the processed items have message rows; the remainder stays clean
	// so a resume can pick it up.
	assert.Len(t, fx.messageRepo.byStatus(models.MessageStatusSent), 2)
	assert.Len(t, fx.messageRepo.byStatus(models.MessageStatusFailed), 0)
}

func TestRunBatchSkipsCreditDeductionWhenDisabled(t *testing.T) {
	cfg := defaultDispatchConfig()
	cfg.CreditSystemEnabled = false
	account := activeAccount()
	account.Credits = 0
	fx := newDispatchFixture(account, cfg)

	result, err := fx.flow.RunBatch(context.Background(), 1, batchOf(2), DispatchOptions{Template: "hello"})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Empty(t, fx.credits.Deductions)
}

func TestRunBatchSendFailureDoesNotAbort(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())

	sent := 0
	fx.sessions.SendFunc = func(accountID uint, phone, body string) (string, error) {
		sent++
		if sent == 2 {
			return "", assert.AnError
		}
		return "tid-" + phone, nil
	}

	result, err := fx.flow.RunBatch(context.Background(), 1, batchOf(3), DispatchOptions{Template: "hello"})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	// Failed sends consume no credit
	assert.Len(t, fx.credits.Deductions, 2)
	assert.Len(t, fx.trigger.byEvent(models.WebhookEventMessageFailed), 1)
}

func TestRunBatchMarksCampaignContactsAttempted(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())

	campaign := &models.Campaign{ID: 7, AccountID: 1, Status: models.CampaignStatusRunning}
	require.NoError(t, fx.campaigns.Save(context.Background(), campaign))
	require.NoError(t, fx.campaigns.SaveContacts(context.Background(), []*models.CampaignContact{
		{ID: 1, CampaignID: 7, Phone: "+15550000001"},
		{ID: 2, CampaignID: 7, Phone: "+15550000002"},
	}))

	items := []DispatchItem{
		{Phone: "+15550000001", ContactID: utils.ToPtr(uint(1))},
		{Phone: "+15550000002", ContactID: utils.ToPtr(uint(2))},
	}

	result, err := fx.flow.RunBatch(context.Background(), 1, items, DispatchOptions{
		Template:   "hello",
		CampaignID: utils.ToPtr(uint(7)),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, int64(2), campaign.SentCount)

	remaining, _ := fx.campaigns.ListUnattemptedContacts(context.Background(), 7, 0)
	assert.Empty(t, remaining)
}

func TestRunBatchRendersTemplatePerRecipient(t *testing.T) {
	fx := newDispatchFixture(activeAccount(), defaultDispatchConfig())

	items := []DispatchItem{
		{Phone: "+15550000001", Variables: map[string]string{"name": "Ada"}},
		{Phone: "+15550000002", Variables: map[string]string{"name": "Grace"}},
	}

	_, err := fx.flow.RunBatch(context.Background(), 1, items, DispatchOptions{Template: "Hi {{name}}"})

	require.NoError(t, err)
	require.Len(t, fx.sessions.Sent, 2)
	assert.Equal(t, "Hi Ada", fx.sessions.Sent[0].Body)
	assert.Equal(t, "Hi Grace", fx.sessions.Sent[1].Body)
}
