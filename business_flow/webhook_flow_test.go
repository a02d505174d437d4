package businessflow

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/models"
	"wablast/utils"
)

// fakeWebhookRepo is an in-memory WebhookRepository
type fakeWebhookRepo struct {
	webhooks map[uint]*models.Webhook
	logs     []*models.WebhookLog
	nextID   uint
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{webhooks: make(map[uint]*models.Webhook)}
}

func (r *fakeWebhookRepo) ByID(_ context.Context, id uint) (*models.Webhook, error) {
	return r.webhooks[id], nil
}

func (r *fakeWebhookRepo) ByFilter(_ context.Context, filter models.WebhookFilter, _ string, _, _ int) ([]*models.Webhook, error) {
	var out []*models.Webhook
	for _, w := range r.webhooks {
		if filter.AccountID != nil && w.AccountID != *filter.AccountID {
			continue
		}
		if filter.IsActive != nil && utils.IsTrue(w.IsActive) != *filter.IsActive {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (r *fakeWebhookRepo) Save(_ context.Context, webhook *models.Webhook) error {
	if webhook.ID == 0 {
		r.nextID++
		webhook.ID = r.nextID
	}
	r.webhooks[webhook.ID] = webhook
	return nil
}

func (r *fakeWebhookRepo) SaveBatch(ctx context.Context, webhooks []*models.Webhook) error {
	for _, w := range webhooks {
		if err := r.Save(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeWebhookRepo) Update(_ context.Context, webhook *models.Webhook) error {
	r.webhooks[webhook.ID] = webhook
	return nil
}

func (r *fakeWebhookRepo) ListActiveByEvent(_ context.Context, accountID uint, event string) ([]*models.Webhook, error) {
	var out []*models.Webhook
	for _, w := range r.webhooks {
		if w.AccountID == accountID && utils.IsTrue(w.IsActive) && w.SubscribedTo(event) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) RecordResult(_ context.Context, webhookID uint, success bool, statusCode int, errMsg *string, at time.Time) error {
	w := r.webhooks[webhookID]
	w.TotalCalls++
	if success {
		w.SuccessCalls++
	} else {
		w.FailedCalls++
	}
	w.LastCalledAt = &at
	w.LastStatus = &statusCode
	w.LastError = errMsg
	return nil
}

func (r *fakeWebhookRepo) SaveLog(_ context.Context, entry *models.WebhookLog) error {
	entry.ID = uint(len(r.logs) + 1)
	r.logs = append(r.logs, entry)
	return nil
}

func (r *fakeWebhookRepo) ListLogs(_ context.Context, webhookID uint, limit, offset int) ([]*models.WebhookLog, error) {
	var out []*models.WebhookLog
	for _, entry := range r.logs {
		if entry.WebhookID == webhookID {
			out = append(out, entry)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeWebhookRepo) CountLogs(_ context.Context, webhookID uint, success *bool) (int64, error) {
	var total int64
	for _, entry := range r.logs {
		if entry.WebhookID != webhookID {
			continue
		}
		if success != nil && entry.Success != *success {
			continue
		}
		total++
	}
	return total, nil
}

// fakeDispatcherService stubs the delivery side of WebhookFlow.Test
type fakeDispatcherService struct {
	tested []uint
}

func (s *fakeDispatcherService) Trigger(context.Context, uint, string, map[string]any) {}

func (s *fakeDispatcherService) TestWebhook(_ context.Context, webhookID uint) (*models.WebhookLog, error) {
	s.tested = append(s.tested, webhookID)
	return &models.WebhookLog{WebhookID: webhookID, Event: "webhook.test", Attempt: 1, Success: true}, nil
}

func (s *fakeDispatcherService) Wait() {}

func newWebhookFlow() (WebhookFlow, *fakeWebhookRepo, *fakeDispatcherService) {
	repo := newFakeWebhookRepo()
	dispatcher := &fakeDispatcherService{}
	return NewWebhookFlow(repo, dispatcher, log.New(io.Discard, "", 0)), repo, dispatcher
}

func TestCreateWebhookDefaults(t *testing.T) {
	flow, _, _ := newWebhookFlow()

	webhook, err := flow.Create(context.Background(), 7, &CreateWebhookRequest{
		Name: "orders",
		URL:  "https://example.com/hook",
	})
	require.NoError(t, err)

	assert.Equal(t, uint(7), webhook.AccountID)
	assert.Equal(t, []string(models.DefaultWebhookEvents()), []string(webhook.Events))
	assert.Equal(t, models.WebhookAuthNone, webhook.AuthType)
	assert.True(t, utils.IsTrue(webhook.IsActive))
	assert.True(t, webhook.RetryEnabled)
}

func TestCreateWebhookExplicitSettings(t *testing.T) {
	flow, _, _ := newWebhookFlow()

	webhook, err := flow.Create(context.Background(), 7, &CreateWebhookRequest{
		Name:          "failures only",
		URL:           "https://example.com/hook",
		Events:        []string{models.WebhookEventMessageFailed},
		Secret:        utils.ToPtr("s3cret"),
		AuthType:      "bearer",
		AuthValue:     utils.ToPtr("tok"),
		CustomHeaders: map[string]string{"X-Tenant": "acme"},
		RetryEnabled:  utils.ToPtr(false),
		MaxRetries:    5,
		RetryDelayMs:  1000,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{models.WebhookEventMessageFailed}, []string(webhook.Events))
	assert.Equal(t, models.WebhookAuthBearer, webhook.AuthType)
	assert.False(t, webhook.RetryEnabled)
	assert.Equal(t, 5, webhook.MaxRetries)

	var headers map[string]string
	require.NoError(t, json.Unmarshal(webhook.CustomHeaders, &headers))
	assert.Equal(t, "acme", headers["X-Tenant"])
}

func TestCreateWebhookUnknownAuthTypeFallsBackToNone(t *testing.T) {
	flow, _, _ := newWebhookFlow()

	webhook, err := flow.Create(context.Background(), 7, &CreateWebhookRequest{
		Name:     "hook",
		URL:      "https://example.com/hook",
		AuthType: "kerberos",
	})
	require.NoError(t, err)
	assert.Equal(t, models.WebhookAuthNone, webhook.AuthType)
}

func TestCreateWebhookRequiresURL(t *testing.T) {
	flow, repo, _ := newWebhookFlow()

	_, err := flow.Create(context.Background(), 7, &CreateWebhookRequest{Name: "hook", URL: "   "})
	require.ErrorIs(t, err, ErrWebhookURLRequired)
	assert.Empty(t, repo.webhooks)
}

func TestDisableWebhookKeepsHistory(t *testing.T) {
	flow, repo, _ := newWebhookFlow()
	ctx := context.Background()

	webhook, err := flow.Create(ctx, 7, &CreateWebhookRequest{Name: "hook", URL: "https://example.com/hook"})
	require.NoError(t, err)
	require.NoError(t, repo.SaveLog(ctx, &models.WebhookLog{WebhookID: webhook.ID, Event: "message.sent", Success: true}))

	require.NoError(t, flow.Disable(ctx, 7, webhook.ID))

	assert.False(t, utils.IsTrue(repo.webhooks[webhook.ID].IsActive))
	logs, total, err := flow.Logs(ctx, 7, webhook.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, int64(1), total)
}

func TestWebhookOwnershipEnforced(t *testing.T) {
	flow, _, dispatcher := newWebhookFlow()
	ctx := context.Background()

	webhook, err := flow.Create(ctx, 7, &CreateWebhookRequest{Name: "hook", URL: "https://example.com/hook"})
	require.NoError(t, err)

	assert.ErrorIs(t, flow.Disable(ctx, 8, webhook.ID), ErrWebhookNotFound)
	_, err = flow.Test(ctx, 8, webhook.ID)
	assert.ErrorIs(t, err, ErrWebhookNotFound)
	_, _, err = flow.Logs(ctx, 8, webhook.ID, 10, 0)
	assert.ErrorIs(t, err, ErrWebhookNotFound)
	assert.Empty(t, dispatcher.tested)
}

func TestWebhookTestDelegatesToDispatcher(t *testing.T) {
	flow, _, dispatcher := newWebhookFlow()
	ctx := context.Background()

	webhook, err := flow.Create(ctx, 7, &CreateWebhookRequest{Name: "hook", URL: "https://example.com/hook"})
	require.NoError(t, err)

	entry, err := flow.Test(ctx, 7, webhook.ID)
	require.NoError(t, err)
	assert.True(t, entry.Success)
	assert.Equal(t, []uint{webhook.ID}, dispatcher.tested)
}

func TestListWebhooksScopedToAccount(t *testing.T) {
	flow, _, _ := newWebhookFlow()
	ctx := context.Background()

	_, err := flow.Create(ctx, 7, &CreateWebhookRequest{Name: "mine", URL: "https://example.com/a"})
	require.NoError(t, err)
	_, err = flow.Create(ctx, 8, &CreateWebhookRequest{Name: "theirs", URL: "https://example.com/b"})
	require.NoError(t, err)

	webhooks, err := flow.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, webhooks, 1)
	assert.Equal(t, "mine", webhooks[0].Name)
}
