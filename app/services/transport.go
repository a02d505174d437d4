// Package services provides external service integrations and technical concerns like transport sessions and webhooks
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wablast/config"
)

// MediaOptions carries optional media attributes for an outbound message
type MediaOptions struct {
	MediaType *string
	MediaURL  *string
}

// TransportSession is a live connection to the messaging gateway for one account
type TransportSession interface {
	AccountID() uint
	IsConnected(ctx context.Context) bool
	SendMessage(ctx context.Context, phone, body string, opts MediaOptions) (string, error)
}

// SessionManager hands out transport sessions and serializes access per account.
// Acquire blocks until the account's session is free; the returned release
// function must be called exactly once.
type SessionManager interface {
	Acquire(ctx context.Context, accountID uint) (TransportSession, func(), error)
	IsConnected(ctx context.Context, accountID uint) bool
	Disconnect(accountID uint)
}

// GatewaySessionManager implements SessionManager against an HTTP messaging gateway
type GatewaySessionManager struct {
	config  *config.TransportConfig
	client  *http.Client
	proxies ProxyService

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewGatewaySessionManager creates a session manager backed by the configured gateway
func NewGatewaySessionManager(cfg *config.TransportConfig, proxies ProxyService) SessionManager {
	return &GatewaySessionManager{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		proxies: proxies,
		locks:   make(map[uint]*sync.Mutex),
	}
}

func (m *GatewaySessionManager) lockFor(accountID uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

// Acquire returns the account's session after taking its per-account lock.
// Concurrent callers for the same account queue here, so at most one send
// loop runs per session.
func (m *GatewaySessionManager) Acquire(ctx context.Context, accountID uint) (TransportSession, func(), error) {
	lock := m.lockFor(accountID)

	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// The goroutine still holds or will hold the lock; release it once taken.
		go func() {
			<-acquired
			lock.Unlock()
		}()
		return nil, nil, ctx.Err()
	}

	session := &gatewaySession{
		accountID: accountID,
		manager:   m,
	}
	release := func() { lock.Unlock() }
	return session, release, nil
}

// IsConnected checks the gateway session status without taking the lock
func (m *GatewaySessionManager) IsConnected(ctx context.Context, accountID uint) bool {
	session := &gatewaySession{accountID: accountID, manager: m}
	return session.IsConnected(ctx)
}

// Disconnect tells the gateway to tear down the account's session
func (m *GatewaySessionManager) Disconnect(accountID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.RequestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/sessions/%d", m.config.GatewayURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	m.authorize(req)
	resp, err := m.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (m *GatewaySessionManager) authorize(req *http.Request) {
	if m.config.APIKey != "" {
		req.Header.Set("X-API-Key", m.config.APIKey)
	}
}

// clientFor returns an HTTP client routed through the account's proxy when
// one is configured. The shared direct client is used only when the account
// has no proxy; a broken proxy fails the call rather than bypassing it.
func (m *GatewaySessionManager) clientFor(ctx context.Context, accountID uint) (*http.Client, error) {
	if m.proxies == nil {
		return m.client, nil
	}
	client, err := m.proxies.ClientFor(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy client: %w", err)
	}
	if client == nil {
		return m.client, nil
	}
	client.Timeout = m.config.RequestTimeout
	return client, nil
}

// gatewaySession talks to the gateway's per-account session endpoints
type gatewaySession struct {
	accountID uint
	manager   *GatewaySessionManager
}

type sessionStatusResponse struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
}

type sendMessageRequest struct {
	Phone     string  `json:"phone"`
	Message   string  `json:"message"`
	MediaType *string `json:"mediaType,omitempty"`
	MediaURL  *string `json:"mediaUrl,omitempty"`
}

type sendMessageResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

func (s *gatewaySession) AccountID() uint {
	return s.accountID
}

func (s *gatewaySession) IsConnected(ctx context.Context) bool {
	url := fmt.Sprintf("%s/sessions/%d/status", s.manager.config.GatewayURL, s.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	s.manager.authorize(req)

	resp, err := s.manager.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var status sessionStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Connected
}

func (s *gatewaySession) SendMessage(ctx context.Context, phone, body string, opts MediaOptions) (string, error) {
	payload := sendMessageRequest{
		Phone:     phone,
		Message:   body,
		MediaType: opts.MediaType,
		MediaURL:  opts.MediaURL,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/sessions/%d/messages", s.manager.config.GatewayURL, s.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.manager.authorize(req)

	client, err := s.manager.clientFor(ctx, s.accountID)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if result.MessageID == "" {
		return "", fmt.Errorf("gateway returned empty message id")
	}
	return result.MessageID, nil
}

// MockSessionManager is a mock implementation for testing
type MockSessionManager struct {
	mu        sync.Mutex
	locks     map[uint]*sync.Mutex
	Connected bool
	SendFunc  func(accountID uint, phone, body string) (string, error)
	Sent      []MockSentMessage
	nextID    int
}

// MockSentMessage records one SendMessage call
type MockSentMessage struct {
	AccountID uint
	Phone     string
	Body      string
	SentAt    time.Time
}

// NewMockSessionManager creates a connected mock session manager
func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		locks:     make(map[uint]*sync.Mutex),
		Connected: true,
	}
}

func (m *MockSessionManager) lockFor(accountID uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

func (m *MockSessionManager) Acquire(ctx context.Context, accountID uint) (TransportSession, func(), error) {
	lock := m.lockFor(accountID)
	lock.Lock()
	return &mockSession{accountID: accountID, manager: m}, lock.Unlock, nil
}

func (m *MockSessionManager) IsConnected(ctx context.Context, accountID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Connected
}

func (m *MockSessionManager) Disconnect(accountID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connected = false
}

type mockSession struct {
	accountID uint
	manager   *MockSessionManager
}

func (s *mockSession) AccountID() uint {
	return s.accountID
}

func (s *mockSession) IsConnected(ctx context.Context) bool {
	return s.manager.IsConnected(ctx, s.accountID)
}

func (s *mockSession) SendMessage(ctx context.Context, phone, body string, opts MediaOptions) (string, error) {
	m := s.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendFunc != nil {
		id, err := m.SendFunc(s.accountID, phone, body)
		if err != nil {
			return "", err
		}
		m.Sent = append(m.Sent, MockSentMessage{AccountID: s.accountID, Phone: phone, Body: body, SentAt: time.Now().UTC()})
		return id, nil
	}

	m.nextID++
	m.Sent = append(m.Sent, MockSentMessage{AccountID: s.accountID, Phone: phone, Body: body, SentAt: time.Now().UTC()})
	return fmt.Sprintf("mock-%d", m.nextID), nil
}
