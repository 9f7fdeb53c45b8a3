package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	metrics := NewNop()

	require.NotNil(t, metrics)
	require.IsType(t, &NopMetrics{}, metrics)
}

func TestNopMetrics_AllMethods(t *testing.T) {
	metrics := NewNop()

	require.NotPanics(t, func() {
		metrics.RecordStoreOperation("insert", 0.01, true)
		metrics.RecordAcquireAttempt("WORK_ITEM", false)
		metrics.RecordLeaseConflict("acquire")
		metrics.RecordCorruptPartition("WORK_ITEM")
		metrics.RecordLeadershipChange(true)
		metrics.RecordDiscoveryCycle(1.5, 3, true)
		metrics.RecordPartitionOutcome("completed")
		metrics.RecordRecordsWritten(10)
		metrics.RecordBufferTimeout()
		metrics.RecordFetchDuration(-1, false)
	})
}

func BenchmarkNopMetrics_RecordStoreOperation(b *testing.B) {
	metrics := NewNop()
	for b.Loop() {
		metrics.RecordStoreOperation("update", 0.001, true)
	}
}
