// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"wablast/app/dto"
	"wablast/app/services"
	"wablast/models"
	"wablast/repository"
	"wablast/utils"
)

// ProxyHandlerInterface defines the contract for proxy handlers
type ProxyHandlerInterface interface {
	CreateProxy(c fiber.Ctx) error
	ListProxies(c fiber.Ctx) error
	CheckProxy(c fiber.Ctx) error
}

// ProxyHandler handles outbound proxy configuration HTTP requests
type ProxyHandler struct {
	proxyRepo    repository.ProxyConfigRepository
	proxyService services.ProxyService
	validator    *validator.Validate
}

// CreateProxyRequest registers an outbound proxy for the account
type CreateProxyRequest struct {
	Type     string  `json:"type" validate:"required,oneof=http https socks4 socks5"`
	Host     string  `json:"host" validate:"required,max=255"`
	Port     int     `json:"port" validate:"required,min=1,max=65535"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Priority int     `json:"priority" validate:"omitempty,min=0"`
}

// NewProxyHandler creates a new proxy handler
func NewProxyHandler(proxyRepo repository.ProxyConfigRepository, proxyService services.ProxyService) *ProxyHandler {
	return &ProxyHandler{
		proxyRepo:    proxyRepo,
		proxyService: proxyService,
		validator:    validator.New(),
	}
}

func (h *ProxyHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ProxyHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateProxy registers an outbound proxy for the account
func (h *ProxyHandler) CreateProxy(c fiber.Ctx) error {
	var req CreateProxyRequest
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

	proxy := &models.ProxyConfig{
		AccountID: &acct,
		Type:      models.ProxyType(req.Type),
		Host:      req.Host,
		Port:      req.Port,
		Username:  req.Username,
		Password:  req.Password,
		Priority:   req.Priority,
		IsActive:   utils.ToPtr(true),
		LastStatus: models.ProxyStatusUnknown,
	}
	if err := h.proxyRepo.Save(c.Context(), proxy); err != nil {
		log.Println("Proxy creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Proxy creation failed", "PROXY_CREATE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Proxy created", proxy)
}

// ListProxies returns the proxies usable by the account, best candidate first
func (h *ProxyHandler) ListProxies(c fiber.Ctx) error {
	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}

	proxies, err := h.proxyRepo.ListCandidates(c.Context(), &acct)
	if err != nil {
		log.Println("Proxy listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list proxies", "PROXY_LIST_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Proxies", proxies)
}

// CheckProxy probes the proxy and records the outcome
func (h *ProxyHandler) CheckProxy(c fiber.Ctx) error {
	acct, ok := accountID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Account ID not found in context", "MISSING_ACCOUNT_ID", nil)
	}
	proxyID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid proxy ID", "INVALID_PROXY_ID", nil)
	}

	proxy, err := h.proxyRepo.ByID(c.Context(), proxyID)
	if err != nil {
		log.Println("Proxy lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Proxy lookup failed", "PROXY_LOOKUP_FAILED", nil)
	}
	if proxy == nil || (proxy.AccountID != nil && *proxy.AccountID != acct) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Proxy not found", "PROXY_NOT_FOUND", nil)
	}

	ip, err := h.proxyService.HealthCheck(c.Context(), proxyID)
	if err != nil {
		return h.SuccessResponse(c, fiber.StatusOK, "Proxy check finished", fiber.Map{
			"healthy": false,
			"error":   err.Error(),
		})
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Proxy check finished", fiber.Map{
		"healthy":     true,
		"external_ip": ip,
	})
}
