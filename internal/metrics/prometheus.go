package metrics

import (
	"strconv"
	"sync"

	"github.com/arloliu/crawlsource/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing a
// PrometheusCollector never panics on duplicate registration until it records.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Coordinator metrics
	storeOps       *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	acquires       *prometheus.CounterVec
	leaseConflicts *prometheus.CounterVec
	corrupt        *prometheus.CounterVec

	// Leader metrics
	isLeader          prometheus.Gauge
	leadershipChanges *prometheus.CounterVec
	discoveryCycles   *prometheus.CounterVec
	discoveryLatency  prometheus.Histogram
	partitionsCreated prometheus.Counter

	// Worker metrics
	outcomes       *prometheus.CounterVec
	recordsWritten prometheus.Counter
	bufferTimeouts prometheus.Counter
	fetchLatency   *prometheus.HistogramVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "crawlsource" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "crawlsource"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.storeOps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "store_operations_total",
			Help:      "Total partition store operations by operation and result.",
		}, []string{"operation", "result"})

		p.storeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "store_operation_seconds",
			Help:      "Latency of partition store operations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"operation"})

		p.acquires = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "acquire_attempts_total",
			Help:      "Total acquire attempts by partition type and whether a partition was claimed.",
		}, []string{"partition_type", "acquired"})

		p.leaseConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "lease_conflicts_total",
			Help:      "Total lost compare-and-swap writes by operation.",
		}, []string{"operation"})

		p.corrupt = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "corrupt_partitions_total",
			Help:      "Total acquire candidates skipped because their record could not be decoded.",
		}, []string{"partition_type"})

		p.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "is_leader",
			Help:      "Whether this source currently holds the leader partition (1=leader).",
		})

		p.leadershipChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "leadership_changes_total",
			Help:      "Total leadership transitions by direction (acquired, lost).",
		}, []string{"direction"})

		p.discoveryCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "discovery_cycles_total",
			Help:      "Total discovery cycles by result.",
		}, []string{"result"})

		p.discoveryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "discovery_duration_seconds",
			Help:      "Duration of discovery cycles in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		})

		p.partitionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "leader",
			Name:      "partitions_created_total",
			Help:      "Total work item partitions created by discovery.",
		})

		p.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "partition_outcomes_total",
			Help:      "Total partition outcomes (completed, closed, abandoned, exhausted, lease_lost, given_up).",
		}, []string{"outcome"})

		p.recordsWritten = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "records_written_total",
			Help:      "Total records accepted by the downstream buffer.",
		})

		p.bufferTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "buffer_timeouts_total",
			Help:      "Total buffer writes that timed out.",
		})

		p.fetchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of crawler fetch calls in seconds by result.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}, []string{"result"})

		p.reg.MustRegister(p.storeOps)
		p.reg.MustRegister(p.storeLatency)
		p.reg.MustRegister(p.acquires)
		p.reg.MustRegister(p.leaseConflicts)
		p.reg.MustRegister(p.corrupt)
		p.reg.MustRegister(p.isLeader)
		p.reg.MustRegister(p.leadershipChanges)
		p.reg.MustRegister(p.discoveryCycles)
		p.reg.MustRegister(p.discoveryLatency)
		p.reg.MustRegister(p.partitionsCreated)
		p.reg.MustRegister(p.outcomes)
		p.reg.MustRegister(p.recordsWritten)
		p.reg.MustRegister(p.bufferTimeouts)
		p.reg.MustRegister(p.fetchLatency)
	})
}

func result(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

// RecordStoreOperation records a store call and its latency.
func (p *PrometheusCollector) RecordStoreOperation(operation string, duration float64, success bool) {
	p.ensureRegistered()
	p.storeOps.WithLabelValues(operation, result(success)).Inc()
	p.storeLatency.WithLabelValues(operation).Observe(duration)
}

// RecordAcquireAttempt records one acquire attempt.
func (p *PrometheusCollector) RecordAcquireAttempt(partitionType string, acquired bool) {
	p.ensureRegistered()
	p.acquires.WithLabelValues(partitionType, strconv.FormatBool(acquired)).Inc()
}

// RecordLeaseConflict records a lost compare-and-swap.
func (p *PrometheusCollector) RecordLeaseConflict(operation string) {
	p.ensureRegistered()
	p.leaseConflicts.WithLabelValues(operation).Inc()
}

// RecordCorruptPartition records a skipped undecodable candidate.
func (p *PrometheusCollector) RecordCorruptPartition(partitionType string) {
	p.ensureRegistered()
	p.corrupt.WithLabelValues(partitionType).Inc()
}

// RecordLeadershipChange updates the leader gauge and transition counter.
func (p *PrometheusCollector) RecordLeadershipChange(isLeader bool) {
	p.ensureRegistered()
	if isLeader {
		p.isLeader.Set(1)
		p.leadershipChanges.WithLabelValues("acquired").Inc()
	} else {
		p.isLeader.Set(0)
		p.leadershipChanges.WithLabelValues("lost").Inc()
	}
}

// RecordDiscoveryCycle records one discovery cycle.
func (p *PrometheusCollector) RecordDiscoveryCycle(duration float64, created int, success bool) {
	p.ensureRegistered()
	p.discoveryCycles.WithLabelValues(result(success)).Inc()
	p.discoveryLatency.Observe(duration)
	p.partitionsCreated.Add(float64(created))
}

// RecordPartitionOutcome increments the outcome counter.
func (p *PrometheusCollector) RecordPartitionOutcome(outcome string) {
	p.ensureRegistered()
	p.outcomes.WithLabelValues(outcome).Inc()
}

// RecordRecordsWritten adds count to the records written counter.
func (p *PrometheusCollector) RecordRecordsWritten(count int) {
	p.ensureRegistered()
	p.recordsWritten.Add(float64(count))
}

// RecordBufferTimeout increments the buffer timeout counter.
func (p *PrometheusCollector) RecordBufferTimeout() {
	p.ensureRegistered()
	p.bufferTimeouts.Inc()
}

// RecordFetchDuration observes fetch latency.
func (p *PrometheusCollector) RecordFetchDuration(duration float64, success bool) {
	p.ensureRegistered()
	p.fetchLatency.WithLabelValues(result(success)).Observe(duration)
}
