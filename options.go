package crawlsource

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/crawlsource/internal/metrics"
)

// Option configures a Source with optional dependencies.
type Option func(*sourceOptions)

// sourceOptions holds optional Source configuration.
type sourceOptions struct {
	hooks   *Hooks
	metrics MetricsCollector
	logger  Logger
}

// WithHooks sets lifecycle event hooks.
//
// Hooks run asynchronously. A failing hook is logged and never affects the
// partition it reports on.
//
// Parameters:
//   - hooks: Hooks structure with callback functions, nil members are skipped
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	hooks := &crawlsource.Hooks{
//	    OnPartitionFailed: func(ctx context.Context, p crawlsource.Partition, err error) error {
//	        return alert(p.Key, err)
//	    },
//	}
//	src, err := crawlsource.New(&cfg, crawler, crawlsource.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *sourceOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	m := crawlsource.NewPrometheusMetrics(prometheus.DefaultRegisterer, "")
//	src, err := crawlsource.New(&cfg, crawler, crawlsource.WithMetrics(m))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *sourceOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for New
func WithLogger(logger Logger) Option {
	return func(o *sourceOptions) {
		o.logger = logger
	}
}

// NewPrometheusMetrics returns a MetricsCollector exporting Prometheus metrics.
//
// Pass the same collector to the coordinator (coordinator.WithMetrics) to get
// store and lease metrics next to the scheduler ones.
//
// Parameters:
//   - reg: Registerer to register on (prometheus.DefaultRegisterer if nil)
//   - namespace: Metric namespace ("crawlsource" if empty)
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}
