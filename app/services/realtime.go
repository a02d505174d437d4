// Package services provides external service integrations and technical concerns like transport sessions and webhooks
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"wablast/config"
)

// RealtimeNotifier publishes live dispatch events to account-scoped channels
type RealtimeNotifier interface {
	Publish(ctx context.Context, accountID uint, event string, data map[string]any) error
}

// Realtime event names pushed over the account channels
const (
	RealtimeEventDispatchProgress = "dispatch:progress"
	RealtimeEventBatchComplete    = "dispatch:batch-complete"
	RealtimeEventCampaignStarted  = "campaign:started"
	RealtimeEventCampaignProgress = "campaign:progress"
	RealtimeEventCampaignComplete = "campaign:complete"
	RealtimeEventCampaignFailed   = "campaign:failed"
)

// RedisNotifier implements RealtimeNotifier over Redis pub/sub
type RedisNotifier struct {
	client *redis.Client
	prefix string
	logger *log.Logger
}

type realtimeEnvelope struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// NewRedisNotifier creates a notifier publishing to {prefix}realtime:account:{id}
func NewRedisNotifier(cfg *config.CacheConfig, logger *log.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DB = cfg.RedisDB
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	return &RedisNotifier{
		client: redis.NewClient(opts),
		prefix: cfg.RedisPrefix,
		logger: logger,
	}, nil
}

// Publish pushes an event to the account's realtime channel. Delivery is
// best effort; subscribers that are offline simply miss the event.
func (n *RedisNotifier) Publish(ctx context.Context, accountID uint, event string, data map[string]any) error {
	envelope := realtimeEnvelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime event: %w", err)
	}

	channel := fmt.Sprintf("%srealtime:account:%d", n.prefix, accountID)
	if err := n.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish realtime event: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection is alive
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// NoopNotifier drops all events; used when the cache is disabled
type NoopNotifier struct{}

func (NoopNotifier) Publish(ctx context.Context, accountID uint, event string, data map[string]any) error {
	return nil
}

// MockNotifier records published events for testing
type MockNotifier struct {
	mu     sync.Mutex
	Events []MockRealtimeEvent
}

// MockRealtimeEvent is one recorded Publish call
type MockRealtimeEvent struct {
	AccountID uint
	Event     string
	Data      map[string]any
}

// NewMockNotifier creates an empty mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Publish(ctx context.Context, accountID uint, event string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, MockRealtimeEvent{AccountID: accountID, Event: event, Data: data})
	return nil
}

// ByEvent returns recorded events matching the given name
func (m *MockNotifier) ByEvent(event string) []MockRealtimeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockRealtimeEvent
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
