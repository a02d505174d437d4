// Package services provides external service integrations and technical concerns like transport sessions and webhooks
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"

	xproxy "golang.org/x/net/proxy"
	"h12.io/socks"

	"wablast/config"
	"wablast/models"
	"wablast/repository"
	"wablast/utils"
)

// ProxyService selects and probes outbound proxies for accounts
type ProxyService interface {
	// Select returns the best candidate proxy for the account, or nil when
	// none is configured. Selection counts as a use.
	Select(ctx context.Context, accountID uint) (*models.ProxyConfig, error)
	// ClientFor builds an HTTP client routed through the account's proxy,
	// or nil when the account has no proxy.
	ClientFor(ctx context.Context, accountID uint) (*http.Client, error)
	// HealthCheck probes the proxy and records the outcome. Returns the
	// external IP reported by the probe endpoint.
	HealthCheck(ctx context.Context, proxyID uint) (string, error)
}

// ProxyServiceImpl implements ProxyService
type ProxyServiceImpl struct {
	repo   repository.ProxyConfigRepository
	config *config.ProxyConfig
	logger *log.Logger
}

// NewProxyService creates a new proxy service
func NewProxyService(repo repository.ProxyConfigRepository, cfg *config.ProxyConfig, logger *log.Logger) ProxyService {
	return &ProxyServiceImpl{
		repo:   repo,
		config: cfg,
		logger: logger,
	}
}

// Select picks the account's proxy with the lowest priority, fail count and
// usage count, in that order, and increments its usage counter.
func (s *ProxyServiceImpl) Select(ctx context.Context, accountID uint) (*models.ProxyConfig, error) {
	if !s.config.Enabled {
		return nil, nil
	}

	candidates, err := s.repo.ListCandidates(ctx, &accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proxy candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	selected := candidates[0]
	if err := s.repo.IncrementUsage(ctx, selected.ID); err != nil {
		return nil, fmt.Errorf("failed to record proxy usage: %w", err)
	}
	return selected, nil
}

// ClientFor builds an HTTP client for the account's selected proxy
func (s *ProxyServiceImpl) ClientFor(ctx context.Context, accountID uint) (*http.Client, error) {
	selected, err := s.Select(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if selected == nil {
		return nil, nil
	}

	transport, err := transportFor(selected)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport}, nil
}

// HealthCheck probes the proxy against the configured probe endpoint
func (s *ProxyServiceImpl) HealthCheck(ctx context.Context, proxyID uint) (string, error) {
	proxyConfig, err := s.repo.ByID(ctx, proxyID)
	if err != nil {
		return "", fmt.Errorf("failed to load proxy: %w", err)
	}
	if proxyConfig == nil {
		return "", fmt.Errorf("proxy %d not found", proxyID)
	}

	ip, probeErr := s.probe(ctx, proxyConfig)
	if recordErr := s.repo.RecordHealth(ctx, proxyID, probeErr == nil, utils.UTCNow()); recordErr != nil {
		s.logger.Printf("failed to record proxy %d health: %v", proxyID, recordErr)
	}
	if probeErr != nil {
		return "", probeErr
	}
	return ip, nil
}

func (s *ProxyServiceImpl) probe(ctx context.Context, proxyConfig *models.ProxyConfig) (string, error) {
	transport, err := transportFor(proxyConfig)
	if err != nil {
		return "", err
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   s.config.ProbeTimeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.ProbeURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("proxy probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy probe returned status %d", resp.StatusCode)
	}

	var result struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode probe response: %w", err)
	}
	return result.IP, nil
}

// transportFor builds an http.RoundTripper routed through the proxy
func transportFor(proxyConfig *models.ProxyConfig) (http.RoundTripper, error) {
	switch proxyConfig.Type {
	case models.ProxyTypeHTTP, models.ProxyTypeHTTPS:
		proxyURL, err := url.Parse(proxyConfig.URL())
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		return &http.Transport{Proxy: http.ProxyURL(proxyURL)}, nil

	case models.ProxyTypeSOCKS4:
		// SOCKS4 carries a user id but no password
		uri := "socks4://"
		if proxyConfig.Username != nil && *proxyConfig.Username != "" {
			uri += url.User(*proxyConfig.Username).String() + "@"
		}
		uri += proxyConfig.Address()
		dial := socks.Dial(uri)
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dial(network, addr)
			},
		}, nil

	case models.ProxyTypeSOCKS5:
		var auth *xproxy.Auth
		if proxyConfig.Username != nil {
			auth = &xproxy.Auth{User: *proxyConfig.Username}
			if proxyConfig.Password != nil {
				auth.Password = *proxyConfig.Password
			}
		}
		dialer, err := xproxy.SOCKS5("tcp", proxyConfig.Address(), auth, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
		}
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if contextDialer, ok := dialer.(xproxy.ContextDialer); ok {
					return contextDialer.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported proxy type: %s", proxyConfig.Type)
	}
}
