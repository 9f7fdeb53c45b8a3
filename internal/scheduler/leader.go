package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/arloliu/crawlsource/internal/natsutil"
	"github.com/arloliu/crawlsource/types"
)

// Leader runs discovery while holding the LEADER partition.
type Leader struct {
	cfg      Config
	coord    types.Coordinator
	crawler  types.Crawler
	logger   types.Logger
	metrics  types.MetricsCollector
	notify   notifier
	isLeader atomic.Bool
}

// NewLeader creates the leader loop.
func NewLeader(cfg Config, deps Deps) *Leader {
	return &Leader{
		cfg:     cfg,
		coord:   deps.Coordinator,
		crawler: deps.Crawler,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		notify:  notifier{hooks: deps.Hooks, logger: deps.Logger},
	}
}

// IsLeader reports whether the loop currently holds the leader partition.
func (l *Leader) IsLeader() bool {
	return l.isLeader.Load()
}

// Run competes for leadership until ctx is cancelled.
//
// Returns:
//   - error: nil on cancellation, or a fatal error such as ErrUnknownPartitionType
func (l *Leader) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		p, err := l.coord.AcquireAvailablePartition(ctx, types.PartitionTypeLeader)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, types.ErrUnknownPartitionType) {
				l.logger.Error("leader partition has unknown type", "error", err)
				l.notify.onError(ctx, err)

				return err
			}

			logFailure(l.logger, "failed to acquire leader partition", err)
			l.notify.onError(ctx, err)
		}

		if p == nil {
			if !sleep(ctx, l.cfg.LeaderAcquireBackoff) {
				return nil
			}

			continue
		}

		l.lead(ctx, p)
	}
}

// lead runs discovery cycles until the lease is lost or ctx is cancelled.
func (l *Leader) lead(ctx context.Context, p *types.Partition) {
	l.setLeader(ctx, true)
	defer l.setLeader(ctx, false)

	l.logger.Info("leadership acquired", "owner_id", l.coord.OwnerID(), "lease_expiry", p.OwnerExpiry)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.giveUp(ctx, p)
			return
		case <-timer.C:
		}

		l.discover(ctx, p)
		if ctx.Err() != nil {
			l.giveUp(ctx, p)
			return
		}

		if err := l.coord.SaveProgressState(ctx, p, l.cfg.LeaseDuration); err != nil {
			if errors.Is(err, types.ErrLeaseLost) {
				l.logger.Warn("leadership lost", "owner_id", l.coord.OwnerID())
				return
			}
			if ctx.Err() != nil {
				l.giveUp(ctx, p)
				return
			}

			// The lease may still be ours; the next cycle retries the renewal
			logFailure(l.logger, "failed to renew leader lease", err)
			l.notify.onError(ctx, err)
		}

		timer.Reset(l.cfg.DiscoveryInterval)
	}
}

// discover runs one discovery pass and creates partitions for new items.
//
// The discovery state on p advances only when discovery and every create
// succeeded, so a failed pass is retried from the same state.
func (l *Leader) discover(ctx context.Context, p *types.Partition) {
	start := time.Now()
	progress := p.Leader
	if progress == nil {
		progress = &types.LeaderProgress{}
		p.Leader = progress
	}

	res, err := l.crawler.Discover(ctx, progress.DiscoveryState)
	if err != nil {
		l.metrics.RecordDiscoveryCycle(time.Since(start).Seconds(), 0, false)
		if ctx.Err() == nil {
			l.logger.Error("discovery failed", "error", err)
			l.notify.onError(ctx, err)
		}

		return
	}

	created := 0
	for _, item := range res.Items {
		ok, err := l.coord.CreatePartition(ctx, types.NewWorkItemPartition(item.Key, item.InitialState))
		if err != nil {
			l.metrics.RecordDiscoveryCycle(time.Since(start).Seconds(), created, false)
			if ctx.Err() == nil {
				logFailure(l.logger, "failed to create work item partition", err, "partition_key", item.Key)
				l.notify.onError(ctx, err)
			}

			return
		}
		if ok {
			created++
		}
	}

	progress.DiscoveryState = res.State
	progress.LastDiscoveryAt = time.Now()
	progress.DiscoveredTotal += int64(created)

	l.metrics.RecordDiscoveryCycle(time.Since(start).Seconds(), created, true)
	l.logger.Debug("discovery cycle finished",
		"items", len(res.Items),
		"created", created,
		"discovered_total", progress.DiscoveredTotal,
	)
}

func (l *Leader) giveUp(ctx context.Context, p *types.Partition) {
	gctx, cancel := detached(ctx, l.cfg.OperationTimeout)
	defer cancel()

	if err := l.coord.GiveUpPartition(gctx, p); err != nil {
		if errors.Is(err, types.ErrLeaseLost) {
			l.logger.Debug("leader partition already taken over", "owner_id", l.coord.OwnerID())
			return
		}
		// The lease expires on its own if the release could not be written
		logFailure(l.logger, "failed to give up leader partition", err)

		return
	}

	l.logger.Info("leadership released", "owner_id", l.coord.OwnerID())
}

func (l *Leader) setLeader(ctx context.Context, isLeader bool) {
	if l.isLeader.Swap(isLeader) == isLeader {
		return
	}

	l.metrics.RecordLeadershipChange(isLeader)
	l.notify.onLeadershipChanged(ctx, isLeader)
}

// logFailure logs connectivity problems at warn level and everything else at error level.
func logFailure(logger types.Logger, msg string, err error, keysAndValues ...any) {
	kv := append([]any{"error", err}, keysAndValues...)
	if natsutil.IsConnectivityError(err) {
		logger.Warn(msg, kv...)
		return
	}

	logger.Error(msg, kv...)
}
