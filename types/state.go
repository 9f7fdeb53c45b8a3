package types

// WorkerState represents the lifecycle state of a worker loop.
//
// Workers follow a fixed cycle:
//
//	WorkerIdle → WorkerAcquiring → WorkerProcessing → WorkerCompleting/WorkerClosing/WorkerAbandoning → WorkerIdle
//
// WorkerStopped is terminal.
type WorkerState int

const (
	// WorkerIdle indicates the worker holds no partition and is backing off.
	WorkerIdle WorkerState = iota

	// WorkerAcquiring indicates the worker is trying to claim a partition.
	WorkerAcquiring

	// WorkerProcessing indicates the worker is fetching and writing records.
	WorkerProcessing

	// WorkerCompleting indicates the worker is marking its partition completed.
	WorkerCompleting

	// WorkerClosing indicates the worker is closing its partition after a recoverable failure.
	WorkerClosing

	// WorkerAbandoning indicates the worker is releasing its partition after a fatal attempt failure.
	WorkerAbandoning

	// WorkerStopped indicates the worker loop has exited.
	WorkerStopped
)

// String returns the string representation of the state.
func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "Idle"
	case WorkerAcquiring:
		return "Acquiring"
	case WorkerProcessing:
		return "Processing"
	case WorkerCompleting:
		return "Completing"
	case WorkerClosing:
		return "Closing"
	case WorkerAbandoning:
		return "Abandoning"
	case WorkerStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
