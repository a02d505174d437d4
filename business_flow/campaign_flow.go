// Package businessflow contains the core business logic and use cases for message dispatch workflows
package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"wablast/app/services"
	"wablast/config"
	"wablast/models"
	"wablast/repository"
	"wablast/utils"
)

// CampaignFlow owns the campaign lifecycle: draft, scheduled, running,
// paused, completed, failed, cancelled.
type CampaignFlow interface {
	Create(ctx context.Context, accountID uint, req *CreateCampaignRequest) (*models.Campaign, error)
	// Start transitions the campaign to running and drives the send loop to
	// its end state. It blocks until the loop finishes or pauses.
	Start(ctx context.Context, campaignID uint) (*DispatchResult, error)
	Pause(ctx context.Context, campaignID uint) error
	// Resume continues a paused campaign from its first unattempted contact
	Resume(ctx context.Context, campaignID uint) (*DispatchResult, error)
	Cancel(ctx context.Context, campaignID uint) error
	Delete(ctx context.Context, campaignID uint) error
}

// CreateCampaignRequest carries the inputs for a new campaign
type CreateCampaignRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Content     string           `json:"content" validate:"required"`
	ScheduledAt *time.Time       `json:"scheduled_at,omitempty"`
	MinDelayMs  int              `json:"min_delay_ms"`
	MaxDelayMs  int              `json:"max_delay_ms"`
	UseSpintax  bool             `json:"use_spintax"`
	Contacts    []ContactRequest `json:"contacts" validate:"required,min=1,dive"`
}

// ContactRequest is one recipient of a new campaign
type ContactRequest struct {
	Phone     string            `json:"phone" validate:"required,max=20"`
	Variables map[string]string `json:"variables,omitempty"`
}

// CampaignFlowImpl implements CampaignFlow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	dispatch     DispatchFlow
	webhooks     WebhookTrigger
	notifier     services.RealtimeNotifier
	batchSize    int
	logger       *log.Logger
}

// NewCampaignFlow creates a new campaign flow
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	dispatch DispatchFlow,
	webhooks WebhookTrigger,
	notifier services.RealtimeNotifier,
	cfg *config.DispatchConfig,
	logger *log.Logger,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		dispatch:     dispatch,
		webhooks:     webhooks,
		notifier:     notifier,
		batchSize:    cfg.BatchSize,
		logger:       logger,
	}
}

// Create persists a campaign and its contact list. A scheduled_at in the
// request makes the campaign eligible for automatic promotion by the
// scheduler; otherwise it stays a draft until started explicitly.
func (f *CampaignFlowImpl) Create(ctx context.Context, accountID uint, req *CreateCampaignRequest) (*models.Campaign, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrCampaignHasNoContent
	}

	campaign := &models.Campaign{
		AccountID:     accountID,
		Name:          req.Name,
		Content:       req.Content,
		Status:        models.CampaignStatusDraft,
		TotalContacts: int64(len(req.Contacts)),
		MinDelayMs:    req.MinDelayMs,
		MaxDelayMs:    req.MaxDelayMs,
		UseSpintax:    req.UseSpintax,
	}
	if req.ScheduledAt != nil {
		campaign.Status = models.CampaignStatusScheduled
		campaign.ScheduledAt = utils.TimeToUTCPtr(req.ScheduledAt)
	}

	if err := f.campaignRepo.Save(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to save campaign: %w", err)
	}

	contacts := make([]*models.CampaignContact, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		variables := json.RawMessage("{}")
		if len(c.Variables) > 0 {
			if raw, err := json.Marshal(c.Variables); err == nil {
				variables = raw
			}
		}
		contacts = append(contacts, &models.CampaignContact{
			CampaignID: campaign.ID,
			Phone:      c.Phone,
			Variables:  variables,
		})
	}
	if err := f.campaignRepo.SaveContacts(ctx, contacts); err != nil {
		return nil, fmt.Errorf("failed to save campaign contacts: %w", err)
	}
	return campaign, nil
}

// Start moves a draft or scheduled campaign to running and runs the loop
func (f *CampaignFlowImpl) Start(ctx context.Context, campaignID uint) (*DispatchResult, error) {
	campaign, err := f.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	ok, err := f.campaignRepo.UpdateStatus(ctx, campaignID,
		[]models.CampaignStatus{models.CampaignStatusDraft, models.CampaignStatusScheduled},
		models.CampaignStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to transition campaign: %w", err)
	}
	if !ok {
		return nil, ErrCampaignNotStartable
	}

	now := utils.UTCNow()
	campaign.Status = models.CampaignStatusRunning
	campaign.StartedAt = &now
	if err := f.campaignRepo.Update(ctx, campaign); err != nil {
		f.logger.Printf("failed to stamp campaign %d start time: %v", campaignID, err)
	}

	f.webhooks.Trigger(ctx, campaign.AccountID, models.WebhookEventCampaignStarted, map[string]any{
		"campaign_id":    campaign.UUID.String(),
		"name":           campaign.Name,
		"total_contacts": campaign.TotalContacts,
	})
	f.publish(ctx, campaign, services.RealtimeEventCampaignStarted, map[string]any{
		"total_contacts": campaign.TotalContacts,
	})

	return f.run(ctx, campaign)
}

// Pause stops the running loop before its next item
func (f *CampaignFlowImpl) Pause(ctx context.Context, campaignID uint) error {
	if _, err := f.load(ctx, campaignID); err != nil {
		return err
	}
	ok, err := f.campaignRepo.UpdateStatus(ctx, campaignID,
		[]models.CampaignStatus{models.CampaignStatusRunning},
		models.CampaignStatusPaused)
	if err != nil {
		return fmt.Errorf("failed to pause campaign: %w", err)
	}
	if !ok {
		return ErrCampaignNotRunning
	}
	return nil
}

// Resume continues a paused campaign with its unattempted contacts
func (f *CampaignFlowImpl) Resume(ctx context.Context, campaignID uint) (*DispatchResult, error) {
	campaign, err := f.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	ok, err := f.campaignRepo.UpdateStatus(ctx, campaignID,
		[]models.CampaignStatus{models.CampaignStatusPaused},
		models.CampaignStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to transition campaign: %w", err)
	}
	if !ok {
		return nil, ErrCampaignNotPaused
	}
	campaign.Status = models.CampaignStatusRunning

	return f.run(ctx, campaign)
}

// Cancel abandons a campaign that has not finished. Running campaigns must
// be paused first.
func (f *CampaignFlowImpl) Cancel(ctx context.Context, campaignID uint) error {
	campaign, err := f.load(ctx, campaignID)
	if err != nil {
		return err
	}

	ok, err := f.campaignRepo.UpdateStatus(ctx, campaignID,
		[]models.CampaignStatus{models.CampaignStatusDraft, models.CampaignStatusScheduled, models.CampaignStatusPaused},
		models.CampaignStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel campaign: %w", err)
	}
	if !ok {
		if campaign.Status == models.CampaignStatusRunning {
			return ErrCampaignRunning
		}
		return ErrCampaignNotCancelable
	}
	return nil
}

// Delete removes the campaign and its contacts. Running campaigns cannot be
// deleted.
func (f *CampaignFlowImpl) Delete(ctx context.Context, campaignID uint) error {
	campaign, err := f.load(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status == models.CampaignStatusRunning {
		return ErrCampaignRunning
	}
	if err := f.campaignRepo.Delete(ctx, campaignID); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return nil
}

func (f *CampaignFlowImpl) load(ctx context.Context, campaignID uint) (*models.Campaign, error) {
	campaign, err := f.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

// run drives the dispatch loop over the unattempted contacts and settles the
// campaign's end state.
func (f *CampaignFlowImpl) run(ctx context.Context, campaign *models.Campaign) (*DispatchResult, error) {
	contacts, err := f.campaignRepo.ListUnattemptedContacts(ctx, campaign.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign contacts: %w", err)
	}

	// A campaign with nothing left to send completes immediately without
	// consulting the gate.
	if len(contacts) == 0 {
		f.complete(ctx, campaign, &DispatchResult{})
		return &DispatchResult{}, nil
	}

	items := make([]DispatchItem, 0, len(contacts))
	for _, contact := range contacts {
		var variables map[string]string
		if len(contact.Variables) > 0 {
			if err := json.Unmarshal(contact.Variables, &variables); err != nil {
				f.logger.Printf("campaign %d contact %d has malformed variables: %v", campaign.ID, contact.ID, err)
			}
		}
		items = append(items, DispatchItem{
			Phone:     contact.Phone,
			Variables: variables,
			ContactID: utils.ToPtr(contact.ID),
		})
	}

	opts := DispatchOptions{
		Template:   campaign.Content,
		UseSpintax: campaign.UseSpintax,
		MinDelay:   time.Duration(campaign.MinDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(campaign.MaxDelayMs) * time.Millisecond,
		CampaignID: utils.ToPtr(campaign.ID),
		Continue: func(ctx context.Context) (bool, error) {
			current, err := f.campaignRepo.ByID(ctx, campaign.ID)
			if err != nil {
				return false, fmt.Errorf("failed to poll campaign status: %w", err)
			}
			if current == nil {
				return false, ErrCampaignNotFound
			}
			return current.Status == models.CampaignStatusRunning, nil
		},
	}

	result, err := f.runChunked(ctx, campaign.AccountID, items, opts)
	switch {
	case errors.Is(err, ErrSessionNotConnected):
		f.fail(ctx, campaign, result, ErrSessionNotConnected.Error())
		return result, nil
	case err != nil:
		f.fail(ctx, campaign, result, err.Error())
		return result, err
	case result.Stopped:
		// Paused mid-loop; the remaining contacts stay untouched for resume
		return result, nil
	case result.DenyReason != "" && result.Sent == 0:
		f.fail(ctx, campaign, result, (&QuotaDeniedError{Reason: result.DenyReason}).Error())
		return result, nil
	default:
		f.complete(ctx, campaign, result)
		return result, nil
	}
}

// runChunked feeds the contact list to the dispatch flow in chunks of at most
// batchSize items and aggregates the outcomes. A denied chunk does not end the
// loop; the gate re-denies each following chunk so every contact is settled.
func (f *CampaignFlowImpl) runChunked(ctx context.Context, accountID uint, items []DispatchItem, opts DispatchOptions) (*DispatchResult, error) {
	chunk := f.batchSize
	if chunk <= 0 {
		chunk = len(items)
	}

	total := &DispatchResult{}
	for start := 0; start < len(items); start += chunk {
		end := min(start+chunk, len(items))

		result, err := f.dispatch.RunBatch(ctx, accountID, items[start:end], opts)
		if result != nil {
			total.Total += result.Total
			total.Sent += result.Sent
			total.Failed += result.Failed
			total.Stopped = result.Stopped
			if result.DenyReason != "" {
				total.DenyReason = result.DenyReason
			}
		}
		if err != nil {
			return total, err
		}
		if result.Stopped {
			break
		}
	}
	return total, nil
}

func (f *CampaignFlowImpl) complete(ctx context.Context, campaign *models.Campaign, result *DispatchResult) {
	ok, err := f.campaignRepo.UpdateStatus(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusRunning},
		models.CampaignStatusCompleted)
	if err != nil {
		f.logger.Printf("failed to complete campaign %d: %v", campaign.ID, err)
		return
	}
	if !ok {
		return
	}

	now := utils.UTCNow()
	campaign.Status = models.CampaignStatusCompleted
	campaign.CompletedAt = &now
	if err := f.campaignRepo.Update(ctx, campaign); err != nil {
		f.logger.Printf("failed to stamp campaign %d completion: %v", campaign.ID, err)
	}

	f.webhooks.Trigger(ctx, campaign.AccountID, models.WebhookEventCampaignCompleted, map[string]any{
		"campaign_id": campaign.UUID.String(),
		"sent":        result.Sent,
		"failed":      result.Failed,
	})
	f.publish(ctx, campaign, services.RealtimeEventCampaignComplete, map[string]any{
		"sent":   result.Sent,
		"failed": result.Failed,
	})
}

func (f *CampaignFlowImpl) fail(ctx context.Context, campaign *models.Campaign, result *DispatchResult, reason string) {
	ok, err := f.campaignRepo.UpdateStatus(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusRunning},
		models.CampaignStatusFailed)
	if err != nil {
		f.logger.Printf("failed to mark campaign %d failed: %v", campaign.ID, err)
		return
	}
	if !ok {
		return
	}

	now := utils.UTCNow()
	campaign.Status = models.CampaignStatusFailed
	campaign.CompletedAt = &now
	campaign.ErrorMessage = utils.ToPtr(reason)
	if err := f.campaignRepo.Update(ctx, campaign); err != nil {
		f.logger.Printf("failed to stamp campaign %d failure: %v", campaign.ID, err)
	}

	f.webhooks.Trigger(ctx, campaign.AccountID, models.WebhookEventCampaignFailed, map[string]any{
		"campaign_id": campaign.UUID.String(),
		"error":       reason,
	})
	f.publish(ctx, campaign, services.RealtimeEventCampaignFailed, map[string]any{
		"error": reason,
	})
}

func (f *CampaignFlowImpl) publish(ctx context.Context, campaign *models.Campaign, event string, data map[string]any) {
	data["campaign_id"] = campaign.UUID.String()
	if err := f.notifier.Publish(ctx, campaign.AccountID, event, data); err != nil {
		f.logger.Printf("failed to publish campaign %d event: %v", campaign.ID, err)
	}
}
