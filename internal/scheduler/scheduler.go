// Package scheduler runs the discovery leader and the worker loops.
//
// Both loops drive a types.Coordinator and hold no in-process ownership state:
// the leader is whoever holds the LEADER partition lease, and a worker owns a
// work item only while its lease is valid. Every wait selects on the loop
// context so cancellation is observed promptly.
package scheduler

import (
	"context"
	"time"

	"github.com/arloliu/crawlsource/types"
)

// Config holds the timing parameters shared by the leader and the workers.
type Config struct {
	LeaseDuration        time.Duration
	LeaderAcquireBackoff time.Duration
	DiscoveryInterval    time.Duration
	WorkerIdleBackoff    time.Duration
	WorkerMaxIdleBackoff time.Duration
	BufferWriteTimeout   time.Duration
	ReopenDelay          time.Duration
	MaxClosedCount       int
	OperationTimeout     time.Duration
}

// Deps holds the collaborators of the loops.
type Deps struct {
	Coordinator types.Coordinator
	Crawler     types.Crawler
	Buffer      types.Buffer
	Logger      types.Logger
	Metrics     types.MetricsCollector
	Hooks       types.Hooks
}

// detached returns a bounded context that survives cancellation of ctx.
//
// Releases at shutdown must still reach the store, so they run on a context
// derived from ctx values only.
func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// notifier runs hooks asynchronously and logs their failures.
type notifier struct {
	hooks  types.Hooks
	logger types.Logger
}

func (n notifier) run(ctx context.Context, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	go func() {
		if err := fn(ctx); err != nil {
			n.logger.Warn("hook failed", "hook", name, "error", err)
		}
	}()
}

func (n notifier) onError(ctx context.Context, err error) {
	if n.hooks.OnError == nil {
		return
	}
	n.run(ctx, "OnError", func(ctx context.Context) error { return n.hooks.OnError(ctx, err) })
}

func (n notifier) onLeadershipChanged(ctx context.Context, isLeader bool) {
	if n.hooks.OnLeadershipChanged == nil {
		return
	}
	n.run(ctx, "OnLeadershipChanged", func(ctx context.Context) error {
		return n.hooks.OnLeadershipChanged(ctx, isLeader)
	})
}

func (n notifier) onPartitionCompleted(ctx context.Context, p types.Partition) {
	if n.hooks.OnPartitionCompleted == nil {
		return
	}
	n.run(ctx, "OnPartitionCompleted", func(ctx context.Context) error {
		return n.hooks.OnPartitionCompleted(ctx, p)
	})
}

func (n notifier) onPartitionFailed(ctx context.Context, p types.Partition, err error) {
	if n.hooks.OnPartitionFailed == nil {
		return
	}
	n.run(ctx, "OnPartitionFailed", func(ctx context.Context) error {
		return n.hooks.OnPartitionFailed(ctx, p, err)
	})
}
