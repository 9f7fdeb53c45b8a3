// Package metrics provides MetricsCollector implementations.
package metrics

import "github.com/arloliu/crawlsource/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	src, err := crawlsource.New(cfg, crawler, crawlsource.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// CoordinatorMetrics implementation

// RecordStoreOperation discards the store operation metric.
func (n *NopMetrics) RecordStoreOperation(_ /* operation */ string, _ /* duration */ float64, _ /* success */ bool) {
	// No-op
}

// RecordAcquireAttempt discards the acquire attempt metric.
func (n *NopMetrics) RecordAcquireAttempt(_ /* partitionType */ string, _ /* acquired */ bool) {
	// No-op
}

// RecordLeaseConflict discards the lease conflict metric.
func (n *NopMetrics) RecordLeaseConflict(_ /* operation */ string) {
	// No-op
}

// RecordCorruptPartition discards the corrupt partition metric.
func (n *NopMetrics) RecordCorruptPartition(_ /* partitionType */ string) {
	// No-op
}

// LeaderMetrics implementation

// RecordLeadershipChange discards the leadership change metric.
func (n *NopMetrics) RecordLeadershipChange(_ /* isLeader */ bool) {
	// No-op
}

// RecordDiscoveryCycle discards the discovery cycle metric.
func (n *NopMetrics) RecordDiscoveryCycle(_ /* duration */ float64, _ /* created */ int, _ /* success */ bool) {
	// No-op
}

// WorkerMetrics implementation

// RecordPartitionOutcome discards the partition outcome metric.
func (n *NopMetrics) RecordPartitionOutcome(_ /* outcome */ string) {
	// No-op
}

// RecordRecordsWritten discards the records written metric.
func (n *NopMetrics) RecordRecordsWritten(_ /* count */ int) {
	// No-op
}

// RecordBufferTimeout discards the buffer timeout metric.
func (n *NopMetrics) RecordBufferTimeout() {
	// No-op
}

// RecordFetchDuration discards the fetch duration metric.
func (n *NopMetrics) RecordFetchDuration(_ /* duration */ float64, _ /* success */ bool) {
	// No-op
}
