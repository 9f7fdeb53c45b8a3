package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/arloliu/crawlsource/types"
)

// Partition outcome labels reported to WorkerMetrics.
const (
	outcomeCompleted = "completed"
	outcomeClosed    = "closed"
	outcomeAbandoned = "abandoned"
	outcomeExhausted = "exhausted"
	outcomeLeaseLost = "lease_lost"
	outcomeGivenUp   = "given_up"
)

// Worker acquires work item partitions and streams their records to the buffer.
type Worker struct {
	id      int
	cfg     Config
	coord   types.Coordinator
	crawler types.Crawler
	buffer  types.Buffer
	logger  types.Logger
	metrics types.MetricsCollector
	notify  notifier
	limiter *rate.Limiter
	state   atomic.Int32
}

// NewWorker creates a worker loop.
//
// Parameters:
//   - id: Worker index, used in logs
//   - cfg: Timing configuration
//   - deps: Collaborators; Buffer is required
//   - limiter: Fetch pacing shared by the pool, nil to disable
//
// Returns:
//   - *Worker: Worker in Idle state
func NewWorker(id int, cfg Config, deps Deps, limiter *rate.Limiter) *Worker {
	return &Worker{
		id:      id,
		cfg:     cfg,
		coord:   deps.Coordinator,
		crawler: deps.Crawler,
		buffer:  deps.Buffer,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		notify:  notifier{hooks: deps.Hooks, logger: deps.Logger},
		limiter: limiter,
	}
}

// State returns the current worker state.
func (w *Worker) State() types.WorkerState {
	return types.WorkerState(w.state.Load())
}

func (w *Worker) setState(s types.WorkerState) {
	w.state.Store(int32(s)) //nolint:gosec // WorkerState values are small
}

// Run processes partitions until ctx is cancelled.
//
// Returns:
//   - error: nil on cancellation, or a fatal error such as ErrUnknownPartitionType
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(types.WorkerStopped)

	// Unseeded; every worker draws from the package PRNG
	idle := newBackoff(w.cfg.WorkerIdleBackoff, w.cfg.WorkerMaxIdleBackoff, 0)

	for {
		if ctx.Err() != nil {
			return nil
		}

		w.setState(types.WorkerAcquiring)
		p, err := w.coord.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, types.ErrUnknownPartitionType) {
				w.logger.Error("work item partition has unknown type", "worker", w.id, "error", err)
				w.notify.onError(ctx, err)

				return err
			}

			logFailure(w.logger, "failed to acquire work item", err, "worker", w.id)
			w.notify.onError(ctx, err)
		}

		if p == nil {
			w.setState(types.WorkerIdle)
			if !sleep(ctx, idle.Next()) {
				return nil
			}

			continue
		}

		idle.Reset()
		w.process(ctx, p)
		w.setState(types.WorkerIdle)
	}
}

// process fetches pages for p until it completes, fails or the lease is lost.
func (w *Worker) process(ctx context.Context, p *types.Partition) {
	w.setState(types.WorkerProcessing)
	if p.WorkItem == nil {
		p.WorkItem = &types.WorkItemProgress{}
	}

	item := types.WorkItem{Key: p.Key, InitialState: p.WorkItem.FetchState}
	w.logger.Debug("processing work item",
		"worker", w.id,
		"partition_key", p.Key,
		"pages_fetched", p.WorkItem.PagesFetched,
		"closed_count", p.ClosedCount,
	)

	for {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				w.giveUp(ctx, p)
				return
			}
		}

		start := time.Now()
		res, err := w.crawler.Fetch(ctx, item, p.WorkItem.FetchState)
		w.metrics.RecordFetchDuration(time.Since(start).Seconds(), err == nil)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				w.giveUp(ctx, p)
			case errors.Is(err, types.ErrUnrecoverable):
				w.abandon(ctx, p, err)
			default:
				w.closeRecoverable(ctx, p, err)
			}

			return
		}

		written, err := w.write(ctx, res.Records)
		w.metrics.RecordRecordsWritten(written)
		if err != nil {
			if ctx.Err() != nil {
				w.giveUp(ctx, p)
			} else {
				w.abandon(ctx, p, err)
			}

			return
		}

		p.WorkItem.FetchState = res.State
		p.WorkItem.RecordsWritten += int64(written)
		p.WorkItem.PagesFetched++
		p.WorkItem.LastError = ""

		if res.Complete {
			w.complete(ctx, p)
			return
		}

		if err := w.coord.SaveProgressState(ctx, p, w.cfg.LeaseDuration); err != nil {
			switch {
			case errors.Is(err, types.ErrLeaseLost):
				w.leaseLost(p)
			case ctx.Err() != nil:
				w.giveUp(ctx, p)
			default:
				w.closeRecoverable(ctx, p, err)
			}

			return
		}
	}
}

// write hands records to the buffer in order.
//
// Returns:
//   - int: Number of records accepted
//   - error: First write failure
func (w *Worker) write(ctx context.Context, records []types.Record) (int, error) {
	for i, rec := range records {
		if err := w.buffer.Write(ctx, rec, w.cfg.BufferWriteTimeout); err != nil {
			if errors.Is(err, types.ErrBufferTimeout) {
				w.metrics.RecordBufferTimeout()
			}

			return i, err
		}
	}

	return len(records), nil
}

func (w *Worker) complete(ctx context.Context, p *types.Partition) {
	w.setState(types.WorkerCompleting)

	opCtx, cancel := detached(ctx, w.cfg.OperationTimeout)
	defer cancel()

	if err := w.coord.CompletePartition(opCtx, p); err != nil {
		if errors.Is(err, types.ErrLeaseLost) {
			w.leaseLost(p)
			return
		}
		logFailure(w.logger, "failed to complete work item", err, "worker", w.id, "partition_key", p.Key)
		w.notify.onError(ctx, err)

		return
	}

	w.metrics.RecordPartitionOutcome(outcomeCompleted)
	w.logger.Info("work item completed",
		"worker", w.id,
		"partition_key", p.Key,
		"records_written", p.WorkItem.RecordsWritten,
		"pages_fetched", p.WorkItem.PagesFetched,
	)
	w.notify.onPartitionCompleted(ctx, p.Clone())
}

// closeRecoverable closes p so it is retried after the reopen delay.
func (w *Worker) closeRecoverable(ctx context.Context, p *types.Partition, cause error) {
	w.setState(types.WorkerClosing)
	w.logger.Warn("work item failed, closing for retry",
		"worker", w.id,
		"partition_key", p.Key,
		"reopen_delay", w.cfg.ReopenDelay,
		"error", cause,
	)
	w.notify.onError(ctx, cause)

	w.close(ctx, p, cause, outcomeClosed, func(ctx context.Context) error {
		return w.coord.ClosePartition(ctx, p, w.cfg.ReopenDelay, w.cfg.MaxClosedCount)
	})
}

// abandon releases p after a fatal attempt failure.
//
// The partition becomes acquirable when its current lease would have expired,
// so retry follows lease-expiry timing. The release still counts toward the
// closed-count cap.
func (w *Worker) abandon(ctx context.Context, p *types.Partition, cause error) {
	w.setState(types.WorkerAbandoning)

	w.logger.Error("work item attempt abandoned",
		"worker", w.id,
		"partition_key", p.Key,
		"lease_expiry", p.OwnerExpiry,
		"error", cause,
	)
	w.notify.onError(ctx, cause)

	w.close(ctx, p, cause, outcomeAbandoned, func(ctx context.Context) error {
		return w.coord.AbandonPartition(ctx, p, w.cfg.MaxClosedCount)
	})
}

// close records cause on p and runs release, a CLOSED transition, with a
// detached context.
func (w *Worker) close(ctx context.Context, p *types.Partition, cause error, outcome string, release func(context.Context) error) {
	p.WorkItem.LastError = cause.Error()

	opCtx, cancel := detached(ctx, w.cfg.OperationTimeout)
	defer cancel()

	err := release(opCtx)
	switch {
	case err == nil:
		w.metrics.RecordPartitionOutcome(outcome)
	case errors.Is(err, types.ErrPartitionExhausted):
		w.metrics.RecordPartitionOutcome(outcomeExhausted)
		w.logger.Error("work item permanently failed",
			"worker", w.id,
			"partition_key", p.Key,
			"closed_count", p.ClosedCount,
			"last_error", cause,
		)
		w.notify.onPartitionFailed(ctx, p.Clone(), err)
	case errors.Is(err, types.ErrLeaseLost):
		w.leaseLost(p)
	default:
		logFailure(w.logger, "failed to close work item", err, "worker", w.id, "partition_key", p.Key)
		w.notify.onError(ctx, err)
	}
}

func (w *Worker) giveUp(ctx context.Context, p *types.Partition) {
	opCtx, cancel := detached(ctx, w.cfg.OperationTimeout)
	defer cancel()

	if err := w.coord.GiveUpPartition(opCtx, p); err != nil {
		if errors.Is(err, types.ErrLeaseLost) {
			w.leaseLost(p)
			return
		}
		// The lease expires on its own if the release could not be written
		logFailure(w.logger, "failed to give up work item", err, "worker", w.id, "partition_key", p.Key)

		return
	}

	w.metrics.RecordPartitionOutcome(outcomeGivenUp)
	w.logger.Debug("work item given up", "worker", w.id, "partition_key", p.Key)
}

func (w *Worker) leaseLost(p *types.Partition) {
	w.metrics.RecordPartitionOutcome(outcomeLeaseLost)
	w.logger.Warn("work item lease lost", "worker", w.id, "partition_key", p.Key)
}
