package types

import "context"

// Hooks defines callbacks for source lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// so they never block the leader or worker loops. Hooks receive the source's
// lifecycle context, which is cancelled during shutdown.
//
// Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - Hook errors are logged but don't fail source operations
//
// Example:
//
//	hooks := &crawlsource.Hooks{
//	    OnPartitionFailed: func(ctx context.Context, p crawlsource.Partition, err error) error {
//	        alerts <- p.Key
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnLeadershipChanged is called when this source gains or loses the leader partition.
	OnLeadershipChanged func(ctx context.Context, isLeader bool) error

	// OnPartitionCompleted is called after a work item partition is marked COMPLETED.
	OnPartitionCompleted func(ctx context.Context, p Partition) error

	// OnPartitionFailed is called when a work item partition exceeds the
	// closed-count cap and is permanently failed.
	OnPartitionFailed func(ctx context.Context, p Partition, err error) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
