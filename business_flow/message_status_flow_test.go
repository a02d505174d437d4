package businessflow

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/models"
	"wablast/utils"
)

func newStatusFlowFixture(t *testing.T) (MessageStatusFlow, *fakeMessageRepo, *fakeWebhookTrigger) {
	t.Helper()
	messageRepo := newFakeMessageRepo()
	trigger := &fakeWebhookTrigger{}
	flow := NewMessageStatusFlow(messageRepo, trigger, log.New(io.Discard, "", 0))
	return flow, messageRepo, trigger
}

func seedSentMessage(t *testing.T, repo *fakeMessageRepo, transportID string) *models.Message {
	t.Helper()
	now := utils.UTCNow()
	msg := &models.Message{
		AccountID:          1,
		Phone:              "+15550000001",
		Body:               "hello",
		Status:             models.MessageStatusSent,
		TransportMessageID: utils.ToPtr(transportID),
		SentAt:             &now,
	}
	require.NoError(t, repo.Save(context.Background(), msg))
	return msg
}

func TestApplyStatusUpdateAdvancesToDelivered(t *testing.T) {
	flow, repo, trigger := newStatusFlowFixture(t)
	msg := seedSentMessage(t, repo, "wamid.1")

	err := flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusDelivered, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusDelivered, msg.Status)
	assert.NotNil(t, msg.DeliveredAt)
	assert.Nil(t, msg.ReadAt)
	assert.Len(t, trigger.byEvent(models.WebhookEventMessageDelivered), 1)
}

func TestApplyStatusUpdateReadStampsDeliveredToo(t *testing.T) {
	flow, repo, _ := newStatusFlowFixture(t)
	msg := seedSentMessage(t, repo, "wamid.1")

	err := flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusRead, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusRead, msg.Status)
	assert.NotNil(t, msg.DeliveredAt)
	assert.NotNil(t, msg.ReadAt)
}

func TestApplyStatusUpdateIgnoresStaleReceipt(t *testing.T) {
	flow, repo, trigger := newStatusFlowFixture(t)
	msg := seedSentMessage(t, repo, "wamid.1")

	require.NoError(t, flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusRead, time.Time{}))
	readAt := msg.ReadAt

	// A delivered receipt arriving after read must not regress the status
	require.NoError(t, flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusDelivered, time.Time{}))

	assert.Equal(t, models.MessageStatusRead, msg.Status)
	assert.Equal(t, readAt, msg.ReadAt)
	assert.Len(t, trigger.byEvent(models.WebhookEventMessageDelivered), 0)
}

func TestApplyStatusUpdateIsIdempotent(t *testing.T) {
	flow, repo, trigger := newStatusFlowFixture(t)
	seedSentMessage(t, repo, "wamid.1")

	require.NoError(t, flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusDelivered, time.Time{}))
	require.NoError(t, flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusDelivered, time.Time{}))

	assert.Len(t, trigger.byEvent(models.WebhookEventMessageDelivered), 1)
}

func TestApplyStatusUpdateFailedIsTerminal(t *testing.T) {
	flow, repo, trigger := newStatusFlowFixture(t)
	msg := seedSentMessage(t, repo, "wamid.1")
	msg.Status = models.MessageStatusFailed

	err := flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusDelivered, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	assert.Empty(t, trigger.Events)
}

func TestApplyStatusUpdateUsesReceiptTimestamp(t *testing.T) {
	flow, repo, _ := newStatusFlowFixture(t)
	msg := seedSentMessage(t, repo, "wamid.1")
	at := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)

	err := flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusDelivered, at)

	require.NoError(t, err)
	require.NotNil(t, msg.DeliveredAt)
	assert.Equal(t, at, *msg.DeliveredAt)
}

func TestApplyStatusUpdateAppliesFailedReceipt(t *testing.T) {
	flow, repo, trigger := newStatusFlowFixture(t)
	msg := seedSentMessage(t, repo, "wamid.1")

	err := flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusFailed, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	assert.Len(t, trigger.byEvent(models.WebhookEventMessageFailed), 1)

	// once failed, later receipts for the same message are dropped
	require.NoError(t, flow.ApplyStatusUpdate(context.Background(), "wamid.1", models.MessageStatusDelivered, time.Time{}))
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	assert.Len(t, trigger.byEvent(models.WebhookEventMessageDelivered), 0)
}

func TestApplyStatusUpdateUnknownMessage(t *testing.T) {
	flow, _, _ := newStatusFlowFixture(t)

	err := flow.ApplyStatusUpdate(context.Background(), "wamid.unknown", models.MessageStatusDelivered, time.Time{})

	assert.ErrorIs(t, err, ErrMessageNotFound)
}
