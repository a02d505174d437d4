// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"wablast/app/dto"
	businessflow "wablast/business_flow"
	"wablast/models"
	"wablast/repository"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	StartCampaign(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	ResumeCampaign(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
	DeleteCampaign(c fiber.Ctx) error
}

// CampaignHandler handles campaign lifecycle HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	campaignRepo repository.CampaignRepository
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow, campaignRepo repository.CampaignRepository) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		campaignRepo: campaignRepo,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign creates a campaign with its contact list
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors(err))
	}

	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}

	contacts := make([]businessflow.ContactRequest, 0, len(req.Contacts))
	for _, contact := range req.Contacts {
		contacts = append(contacts, businessflow.ContactRequest{
			Phone:     contact.Phone,
			Variables: contact.Variables,
		})
	}

	campaign, err := h.campaignFlow.Create(c.Context(), acct, &businessflow.CreateCampaignRequest{
		Name:        req.Name,
		Content:     req.Content,
		ScheduledAt: req.ScheduledAt,
		MinDelayMs:  req.MinDelayMs,
		MaxDelayMs:  req.MaxDelayMs,
		UseSpintax:  req.UseSpintax,
		Contacts:    contacts,
	})
	if err != nil {
		if errors.Is(err, businessflow.ErrCampaignHasNoContent) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign content is required", "CONTENT_REQUIRED", nil)
		}
		log.Println("Campaign creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign creation failed", "CAMPAIGN_CREATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created", toCampaignResponse(campaign))
}

// GetCampaign returns a campaign with its progress counters
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	campaign, errResp := h.ownedCampaign(c)
	if campaign == nil {
		return errResp
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign", toCampaignResponse(campaign))
}

// StartCampaign launches the campaign's send loop in the background
func (h *CampaignHandler) StartCampaign(c fiber.Ctx) error {
	campaign, errResp := h.ownedCampaign(c)
	if campaign == nil {
		return errResp
	}

	if campaign.Status != models.CampaignStatusDraft && campaign.Status != models.CampaignStatusScheduled {
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot be started in its current state", "CAMPAIGN_NOT_STARTABLE", nil)
	}

	// The loop runs for minutes or hours; detach it from the request
	go func(id uint) {
		if _, err := h.campaignFlow.Start(context.Background(), id); err != nil {
			log.Println("Campaign run failed", err)
		}
	}(campaign.ID)

	return h.SuccessResponse(c, fiber.StatusAccepted, "Campaign starting", toCampaignResponse(campaign))
}

// PauseCampaign stops the loop before its next message
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	campaign, errResp := h.ownedCampaign(c)
	if campaign == nil {
		return errResp
	}

	if err := h.campaignFlow.Pause(c.Context(), campaign.ID); err != nil {
		if errors.Is(err, businessflow.ErrCampaignNotRunning) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is not running", "CAMPAIGN_NOT_RUNNING", nil)
		}
		log.Println("Campaign pause failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign pause failed", "CAMPAIGN_PAUSE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign paused", nil)
}

// ResumeCampaign continues a paused campaign from its first unattempted contact
func (h *CampaignHandler) ResumeCampaign(c fiber.Ctx) error {
	campaign, errResp := h.ownedCampaign(c)
	if campaign == nil {
		return errResp
	}

	if campaign.Status != models.CampaignStatusPaused {
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is not paused", "CAMPAIGN_NOT_PAUSED", nil)
	}

	go func(id uint) {
		if _, err := h.campaignFlow.Resume(context.Background(), id); err != nil {
			log.Println("Campaign resume failed", err)
		}
	}(campaign.ID)

	return h.SuccessResponse(c, fiber.StatusAccepted, "Campaign resuming", toCampaignResponse(campaign))
}

// CancelCampaign abandons a campaign that has not finished
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	campaign, errResp := h.ownedCampaign(c)
	if campaign == nil {
		return errResp
	}

	if err := h.campaignFlow.Cancel(c.Context(), campaign.ID); err != nil {
		if errors.Is(err, businessflow.ErrCampaignRunning) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Pause the campaign before cancelling", "CAMPAIGN_RUNNING", nil)
		}
		if errors.Is(err, businessflow.ErrCampaignNotCancelable) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign cannot be cancelled in its current state", "CAMPAIGN_NOT_CANCELABLE", nil)
		}
		log.Println("Campaign cancel failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign cancel failed", "CAMPAIGN_CANCEL_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign cancelled", nil)
}

// DeleteCampaign removes the campaign and its contacts
func (h *CampaignHandler) DeleteCampaign(c fiber.Ctx) error {
	campaign, errResp := h.ownedCampaign(c)
	if campaign == nil {
		return errResp
	}

	if err := h.campaignFlow.Delete(c.Context(), campaign.ID); err != nil {
		if errors.Is(err, businessflow.ErrCampaignRunning) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Running campaigns cannot be deleted", "CAMPAIGN_RUNNING", nil)
		}
		log.Println("Campaign delete failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign delete failed", "CAMPAIGN_DELETE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign deleted", nil)
}

// ownedCampaign loads the campaign addressed by the path and verifies the
// caller owns it. On failure it returns nil plus the response already
// written.
func (h *CampaignHandler) ownedCampaign(c fiber.Ctx) (*models.Campaign, error) {
	acct, ok := accountID(c)
	if !ok {
		return nil, h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}

	campaign, err := h.campaignRepo.ByUUID(c.Context(), c.Params("uuid"))
	if err != nil {
		log.Println("Campaign lookup failed", err)
		return nil, h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign lookup failed", "CAMPAIGN_LOOKUP_FAILED", nil)
	}
	if campaign == nil || campaign.AccountID != acct {
		return nil, h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	}
	return campaign, nil
}

func toCampaignResponse(campaign *models.Campaign) dto.CampaignResponse {
	return dto.CampaignResponse{
		UUID:          campaign.UUID.String(),
		Name:          campaign.Name,
		Status:        campaign.Status.String(),
		TotalContacts: campaign.TotalContacts,
		SentCount:     campaign.SentCount,
		FailedCount:   campaign.FailedCount,
		ScheduledAt:   campaign.ScheduledAt,
		StartedAt:     campaign.StartedAt,
		CompletedAt:   campaign.CompletedAt,
		ErrorMessage:  campaign.ErrorMessage,
		CreatedAt:     campaign.CreatedAt,
	}
}
