package testing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wablast/models"
	"wablast/utils"
)

// NewTestAccount builds an active account with generous limits and the given
// credit balance. The account is not persisted.
func NewTestAccount(id uint, credits int64) *models.Account {
	return &models.Account{
		ID:           id,
		UUID:         uuid.New(),
		Email:        fmt.Sprintf("account-%d@example.com", id),
		IsActive:     utils.ToPtr(true),
		IsBanned:     utils.ToPtr(false),
		DailyLimit:   1000,
		MonthlyLimit: 10000,
		Credits:      credits,
		CreatedAt:    utils.UTCNow(),
		UpdatedAt:    utils.UTCNow(),
	}
}

// NewTestCampaign builds a draft campaign for the account. The campaign is
// not persisted.
func NewTestCampaign(id, accountID uint, content string) *models.Campaign {
	return &models.Campaign{
		ID:         id,
		UUID:       uuid.New(),
		AccountID:  accountID,
		Name:       fmt.Sprintf("campaign-%d", id),
		Content:    content,
		Status:     models.CampaignStatusDraft,
		MinDelayMs: 1,
		MaxDelayMs: 1,
		CreatedAt:  utils.UTCNow(),
		UpdatedAt:  utils.UTCNow(),
	}
}

// NewTestContacts builds n contacts for the campaign with sequential phone
// numbers starting at +15550000001.
func NewTestContacts(campaignID uint, n int) []*models.CampaignContact {
	contacts := make([]*models.CampaignContact, 0, n)
	for i := 1; i <= n; i++ {
		contacts = append(contacts, &models.CampaignContact{
			ID:         uint(i),
			CampaignID: campaignID,
			Phone:      fmt.Sprintf("+1555%07d", i),
			Variables:  json.RawMessage(`{}`),
			CreatedAt:  utils.UTCNow(),
		})
	}
	return contacts
}

// NewTestWebhook builds an active webhook subscribed to the default events
func NewTestWebhook(id, accountID uint, url string) *models.Webhook {
	return &models.Webhook{
		ID:           id,
		UUID:         uuid.New(),
		AccountID:    accountID,
		Name:         fmt.Sprintf("webhook-%d", id),
		URL:          url,
		AuthType:     models.WebhookAuthNone,
		Events:       models.DefaultWebhookEvents(),
		IsActive:     utils.ToPtr(true),
		RetryEnabled: true,
		MaxRetries:   3,
		CreatedAt:    utils.UTCNow(),
		UpdatedAt:    utils.UTCNow(),
	}
}

// NewTestScheduledMessage builds a pending scheduled message due at the given time
func NewTestScheduledMessage(id, accountID uint, due time.Time) *models.ScheduledMessage {
	return &models.ScheduledMessage{
		ID:          id,
		UUID:        uuid.New(),
		AccountID:   accountID,
		Phone:       "+15550000001",
		Message:     "scheduled hello",
		Status:      models.ScheduledMessageStatusPending,
		ScheduledAt: due,
		CreatedAt:   utils.UTCNow(),
		UpdatedAt:   utils.UTCNow(),
	}
}
