package businessflow

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/config"
	"wablast/models"
	"wablast/utils"
)

type campaignFixture struct {
	*dispatchFixture
	campaignFlow CampaignFlow
}

func newCampaignFixture(t *testing.T, account *models.Account) *campaignFixture {
	t.Helper()
	return newCampaignFixtureWithConfig(t, account, defaultDispatchConfig())
}

func newCampaignFixtureWithConfig(t *testing.T, account *models.Account, cfg *config.DispatchConfig) *campaignFixture {
	t.Helper()
	fx := newDispatchFixture(account, cfg)
	return &campaignFixture{
		dispatchFixture: fx,
		campaignFlow: NewCampaignFlow(
			fx.campaigns,
			fx.flow,
			fx.trigger,
			fx.notifier,
			cfg,
			log.New(io.Discard, "", 0),
		),
	}
}

func (fx *campaignFixture) seedCampaign(t *testing.T, status models.CampaignStatus, contacts int) *models.Campaign {
	t.Helper()
	campaign := &models.Campaign{
		AccountID:     1,
		Name:          "launch",
		Content:       "hello",
		Status:        status,
		TotalContacts: int64(contacts),
		MinDelayMs:    1,
		MaxDelayMs:    1,
	}
	require.NoError(t, fx.campaigns.Save(context.Background(), campaign))

	rows := make([]*models.CampaignContact, 0, contacts)
	for i := 1; i <= contacts; i++ {
		rows = append(rows, &models.CampaignContact{
			ID:         uint(i),
			CampaignID: campaign.ID,
			Phone:      "+1555000000" + string(rune('0'+i)),
		})
	}
	require.NoError(t, fx.campaigns.SaveContacts(context.Background(), rows))
	return campaign
}

func TestCreateCampaignDraftByDefault(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())

	campaign, err := fx.campaignFlow.Create(context.Background(), 1, &CreateCampaignRequest{
		Name:    "launch",
		Content: "hello {{name}}",
		Contacts: []ContactRequest{
			{Phone: "+15550000001", Variables: map[string]string{"name": "Ada"}},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraft, campaign.Status)
	assert.Equal(t, int64(1), campaign.TotalContacts)

	count, _ := fx.campaigns.CountContacts(context.Background(), campaign.ID)
	assert.Equal(t, int64(1), count)
}

func TestCreateCampaignScheduled(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	at := utils.UTCNow().Add(time.Hour)

	campaign, err := fx.campaignFlow.Create(context.Background(), 1, &CreateCampaignRequest{
		Name:        "launch",
		Content:     "hello",
		ScheduledAt: &at,
	})

	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusScheduled, campaign.Status)
	require.NotNil(t, campaign.ScheduledAt)
	assert.True(t, campaign.ScheduledAt.Equal(at))
	assert.Equal(t, time.UTC, campaign.ScheduledAt.Location())
}

func TestCreateCampaignRequiresContent(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())

	_, err := fx.campaignFlow.Create(context.Background(), 1, &CreateCampaignRequest{
		Name:    "launch",
		Content: "   ",
	})

	assert.ErrorIs(t, err, ErrCampaignHasNoContent)
}

func TestStartCampaignRunsToCompletion(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusDraft, 3)

	result, err := fx.campaignFlow.Start(context.Background(), campaign.ID)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
	assert.NotNil(t, campaign.StartedAt)
	assert.NotNil(t, campaign.CompletedAt)
	assert.Equal(t, int64(3), campaign.SentCount)

	assert.Len(t, fx.trigger.byEvent(models.WebhookEventCampaignStarted), 1)
	assert.Len(t, fx.trigger.byEvent(models.WebhookEventCampaignCompleted), 1)
}

func TestStartCampaignLargerThanBatchSizeRunsInChunks(t *testing.T) {
	cfg := defaultDispatchConfig()
	cfg.BatchSize = 2
	fx := newCampaignFixtureWithConfig(t, activeAccount(), cfg)
	campaign := fx.seedCampaign(t, models.CampaignStatusDraft, 5)

	result, err := fx.campaignFlow.Start(context.Background(), campaign.ID)

	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.Sent)
	assert.Len(t, fx.sessions.Sent, 5)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
}

func TestStartCampaignWithNoContactsCompletesImmediately(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusDraft, 0)

	result, err := fx.campaignFlow.Start(context.Background(), campaign.ID)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
	assert.Empty(t, fx.sessions.Sent)
}

func TestStartCampaignOnlyFromDraftOrScheduled(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusCompleted, 0)

	_, err := fx.campaignFlow.Start(context.Background(), campaign.ID)

	assert.ErrorIs(t, err, ErrCampaignNotStartable)
}

func TestStartUnknownCampaign(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())

	_, err := fx.campaignFlow.Start(context.Background(), 999)

	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestPauseRequiresRunningCampaign(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusDraft, 0)

	err := fx.campaignFlow.Pause(context.Background(), campaign.ID)

	assert.ErrorIs(t, err, ErrCampaignNotRunning)
}

func TestPauseMidRunStopsLoopAndKeepsRemainder(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusDraft, 4)

	// Pause the campaign after the second send; the loop polls the status
	// before each item and must stop without touching the remainder.
	fx.sessions.SendFunc = func(accountID uint, phone, body string) (string, error) {
		if len(fx.sessions.Sent) == 1 {
			campaign.Status = models.CampaignStatusPaused
		}
		return "tid-" + phone, nil
	}

	result, err := fx.campaignFlow.Start(context.Background(), campaign.ID)

	require.NoError(t, err)
	assert.True(t, result.Stopped)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, models.CampaignStatusPaused, campaign.Status)

	remaining, _ := fx.campaigns.ListUnattemptedContacts(context.Background(), campaign.ID, 0)
	assert.Len(t, remaining, 2)
}

func TestResumeContinuesWhereItStopped(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusPaused, 3)

	// Two contacts were already attempted in the paused run
	now := utils.UTCNow()
	require.NoError(t, fx.campaigns.MarkContactAttempted(context.Background(), 1, now))
	require.NoError(t, fx.campaigns.MarkContactAttempted(context.Background(), 2, now))

	result, err := fx.campaignFlow.Resume(context.Background(), campaign.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
	require.Len(t, fx.sessions.Sent, 1)
	assert.Equal(t, "+15550000003", fx.sessions.Sent[0].Phone)
}

func TestResumeRequiresPausedCampaign(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusDraft, 0)

	_, err := fx.campaignFlow.Resume(context.Background(), campaign.ID)

	assert.ErrorIs(t, err, ErrCampaignNotPaused)
}

func TestCancelRunningCampaignRejected(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusRunning, 0)

	err := fx.campaignFlow.Cancel(context.Background(), campaign.ID)

	assert.ErrorIs(t, err, ErrCampaignRunning)
}

func TestCancelPausedCampaign(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusPaused, 0)

	err := fx.campaignFlow.Cancel(context.Background(), campaign.ID)

	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCancelled, campaign.Status)
}

func TestDeleteRunningCampaignRejected(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	campaign := fx.seedCampaign(t, models.CampaignStatusRunning, 0)

	err := fx.campaignFlow.Delete(context.Background(), campaign.ID)

	assert.ErrorIs(t, err, ErrCampaignRunning)
}

func TestCampaignFailsWhenSessionDisconnected(t *testing.T) {
	fx := newCampaignFixture(t, activeAccount())
	fx.sessions.Connected = false
	campaign := fx.seedCampaign(t, models.CampaignStatusDraft, 2)

	result, err := fx.campaignFlow.Start(context.Background(), campaign.ID)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, models.CampaignStatusFailed, campaign.Status)
	require.NotNil(t, campaign.ErrorMessage)
	assert.Len(t, fx.trigger.byEvent(models.WebhookEventCampaignFailed), 1)
}

func TestCampaignFailsWhenGateDeniesEverything(t *testing.T) {
	account := activeAccount()
	account.CreditsUsed = account.Credits
	fx := newCampaignFixture(t, account)
	campaign := fx.seedCampaign(t, models.CampaignStatusDraft, 2)

	result, err := fx.campaignFlow.Start(context.Background(), campaign.ID)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, DenyNoCredits, result.DenyReason)
	assert.Equal(t, models.CampaignStatusFailed, campaign.Status)
}
