package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
type MetricsCollector interface {
	CoordinatorMetrics
	LeaderMetrics
	WorkerMetrics
}

// CoordinatorMetrics defines metrics for partition coordinator operations.
type CoordinatorMetrics interface {
	// RecordStoreOperation records a store call.
	//
	// Parameters:
	//   - operation: Operation type ("insert", "update", "scan", "get")
	//   - duration: Time taken in seconds
	//   - success: false for unexpected errors; contention counts as success
	RecordStoreOperation(operation string, duration float64, success bool)

	// RecordAcquireAttempt records one AcquireAvailablePartition call.
	//
	// Parameters:
	//   - partitionType: Requested partition type
	//   - acquired: true if a partition was claimed
	RecordAcquireAttempt(partitionType string, acquired bool)

	// RecordLeaseConflict records a lost compare-and-swap.
	RecordLeaseConflict(operation string)

	// RecordCorruptPartition records a candidate skipped because its record
	// could not be decoded.
	RecordCorruptPartition(partitionType string)
}

// LeaderMetrics defines metrics for the discovery leader.
type LeaderMetrics interface {
	// RecordLeadershipChange records gaining (true) or losing (false) leadership.
	RecordLeadershipChange(isLeader bool)

	// RecordDiscoveryCycle records one discovery cycle.
	//
	// Parameters:
	//   - duration: Time taken in seconds
	//   - created: Number of new partitions created
	//   - success: false if discovery or any create failed
	RecordDiscoveryCycle(duration float64, created int, success bool)
}

// WorkerMetrics defines metrics for worker loops.
type WorkerMetrics interface {
	// RecordPartitionOutcome records how a worker finished with a partition.
	//
	// Parameters:
	//   - outcome: "completed", "closed", "abandoned", "exhausted", "lease_lost", "given_up"
	RecordPartitionOutcome(outcome string)

	// RecordRecordsWritten records records accepted by the buffer.
	RecordRecordsWritten(count int)

	// RecordBufferTimeout records a buffer write that timed out.
	RecordBufferTimeout()

	// RecordFetchDuration records the latency of one Crawler.Fetch call.
	RecordFetchDuration(duration float64, success bool)
}
