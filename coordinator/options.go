package coordinator

import (
	"time"

	"github.com/arloliu/crawlsource/types"
)

// DefaultLeaseDuration is the acquisition lease when WithLeaseDuration is not set.
const DefaultLeaseDuration = 30 * time.Second

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	ownerID       string
	leaseDuration time.Duration
	now           func() time.Time
	logger        types.Logger
	metrics       types.MetricsCollector
}

// WithOwnerID sets the identity written into leases.
//
// Owner IDs must be unique per coordinator across every process sharing the
// store. The default is "<hostname>-<uuid>".
func WithOwnerID(id string) Option {
	return func(o *options) {
		o.ownerID = id
	}
}

// WithLeaseDuration sets the lease granted by AcquireAvailablePartition.
//
// Parameters:
//   - d: Lease duration (ignored if not positive)
//
// Returns:
//   - Option: Functional option for New
func WithLeaseDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.leaseDuration = d
		}
	}
}

// WithClock replaces time.Now, typically with a controllable test clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger types.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}
