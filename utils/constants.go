package utils

import (
	"time"
)

// Dispatch pacing constants
const (
	// DefaultMinDelay is the default lower bound for the inter-message pacing delay
	DefaultMinDelay = 5 * time.Second

	// DefaultMaxDelay is the default upper bound for the inter-message pacing delay
	DefaultMaxDelay = 15 * time.Second

	// DefaultBatchSize is the maximum number of items processed per dispatch invocation
	DefaultBatchSize = 100
)

// Scheduler constants
const (
	// SchedulerInterval is the fixed tick interval for the periodic promoter
	SchedulerInterval = time.Minute

	// SchedulerBatchLimit caps how many due scheduled messages one tick promotes
	SchedulerBatchLimit = 100
)

// Webhook delivery constants
const (
	// WebhookTimeout bounds a single webhook POST so a slow endpoint cannot
	// stall the dispatcher
	WebhookTimeout = 30 * time.Second

	// WebhookDefaultMaxRetries is the default retry budget per delivery
	WebhookDefaultMaxRetries = 3

	// WebhookDefaultRetryDelay is the base delay for linear retry backoff
	WebhookDefaultRetryDelay = 5 * time.Second
)

// CORS constants
const (
	// CORSMaxAge is how long (in seconds) browsers may cache preflight responses
	CORSMaxAge = 300
)

// Proxy health check constants
const (
	// ProxyProbeURL is the endpoint used for out-of-band reachability probes
	ProxyProbeURL = "https://api.ipify.org?format=json"

	// ProxyProbeTimeout bounds a single reachability probe
	ProxyProbeTimeout = 10 * time.Second
)
