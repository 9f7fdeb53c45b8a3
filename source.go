package crawlsource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/arloliu/crawlsource/internal/hooks"
	"github.com/arloliu/crawlsource/internal/logger"
	"github.com/arloliu/crawlsource/internal/metrics"
	"github.com/arloliu/crawlsource/internal/partition"
	"github.com/arloliu/crawlsource/internal/scheduler"
	"github.com/arloliu/crawlsource/types"
)

// Source drives a Crawler under lease-based partition coordination.
//
// One leader loop discovers work items while holding the LEADER partition and
// a fixed pool of worker loops processes them. Ownership lives entirely in the
// partition store, so any number of Source instances may share a store.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//
// Lifecycle:
//   - Create with New()
//   - Inject a coordinator with SetCoordinator()
//   - Call Start() with the downstream buffer
//   - Call Stop() for graceful shutdown; held partitions are given up
type Source struct {
	cfg     Config
	crawler Crawler
	factory PartitionFactory
	limiter *rate.Limiter

	hooks   Hooks
	metrics MetricsCollector
	logger  Logger

	mu      sync.Mutex
	coord   Coordinator
	cancel  context.CancelFunc
	done    chan struct{}
	leader  *scheduler.Leader
	workers []*scheduler.Worker
	errs    []error
}

// New creates a Source with the provided configuration.
//
// Parameters:
//   - cfg: Configuration, defaults are applied to a copy
//   - crawler: Per-source Discover/Fetch plugin
//   - opts: Optional configuration (hooks, metrics, logger)
//
// Returns:
//   - *Source: Initialized source, not started
//   - error: ErrInvalidConfig or ErrCrawlerRequired
//
// Example:
//
//	cfg := crawlsource.DefaultConfig()
//	cfg.WorkerCount = 4
//	src, err := crawlsource.New(&cfg, myCrawler, crawlsource.WithLogger(logger))
func New(cfg *Config, crawler Crawler, opts ...Option) (*Source, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if crawler == nil {
		return nil, ErrCrawlerRequired
	}

	options := &sourceOptions{}
	for _, opt := range opts {
		opt(options)
	}

	s := &Source{
		cfg:     *cfg,
		crawler: crawler,
		factory: partition.NewFactory(),
		hooks:   hooks.Fill(options.hooks),
		metrics: options.metrics,
		logger:  options.logger,
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}

	SetDefaults(&s.cfg)
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.cfg.ValidateWithWarnings(s.logger)

	if s.cfg.FetchRateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.FetchRateLimit), 1)
	}

	return s, nil
}

// PartitionFactory returns the factory a coordinator for this source must use.
func (s *Source) PartitionFactory() PartitionFactory {
	return s.factory
}

// SetCoordinator injects the partition coordinator and initializes it.
//
// Parameters:
//   - ctx: Context for the initialization call
//   - c: Coordinator built over the shared store with PartitionFactory()
//
// Returns:
//   - error: ErrCoordinatorRequired, ErrAlreadyStarted, or an initialization failure
func (s *Source) SetCoordinator(ctx context.Context, c Coordinator) error {
	if c == nil {
		return ErrCoordinatorRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	if err := c.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}
	s.coord = c

	return nil
}

// Start creates the leader partition and launches the leader and worker loops.
//
// The leader partition is loaded back through the coordinator before any loop
// starts, so an unreachable store or a factory that cannot decode the stored
// partitions fails Start without leaving goroutines behind.
//
// Parameters:
//   - ctx: Context for startup calls; loops keep its values but not its cancellation
//   - buf: Downstream buffer records are written to
//
// Returns:
//   - error: ErrAlreadyStarted, ErrCoordinatorRequired, ErrBufferRequired, or a startup failure
func (s *Source) Start(ctx context.Context, buf Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	if s.coord == nil {
		return ErrCoordinatorRequired
	}
	if buf == nil {
		return ErrBufferRequired
	}

	startupCtx, cancelStartup := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancelStartup()

	if _, err := s.coord.CreatePartition(startupCtx, types.NewLeaderPartition()); err != nil {
		return fmt.Errorf("failed to create leader partition: %w", err)
	}
	if _, err := s.coord.GetPartition(startupCtx, PartitionTypeLeader, LeaderPartitionKey); err != nil {
		return fmt.Errorf("failed to load leader partition: %w", err)
	}

	schedCfg := scheduler.Config{
		LeaseDuration:        s.cfg.LeaseDuration,
		LeaderAcquireBackoff: s.cfg.LeaderAcquireBackoff,
		DiscoveryInterval:    s.cfg.DiscoveryInterval,
		WorkerIdleBackoff:    s.cfg.WorkerIdleBackoff,
		WorkerMaxIdleBackoff: s.cfg.WorkerMaxIdleBackoff,
		BufferWriteTimeout:   s.cfg.BufferWriteTimeout,
		ReopenDelay:          s.cfg.ReopenDelay,
		MaxClosedCount:       s.cfg.MaxClosedCount,
		OperationTimeout:     s.cfg.OperationTimeout,
	}
	deps := scheduler.Deps{
		Coordinator: s.coord,
		Crawler:     s.crawler,
		Buffer:      buf,
		Logger:      s.logger,
		Metrics:     s.metrics,
		Hooks:       s.hooks,
	}

	s.leader = scheduler.NewLeader(schedCfg, deps)
	s.workers = make([]*scheduler.Worker, s.cfg.WorkerCount)
	for i := range s.workers {
		s.workers[i] = scheduler.NewWorker(i, schedCfg, deps, s.limiter)
	}
	s.errs = nil

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Go(func() { s.runLoop(runCtx, "leader", s.leader.Run) })
	for i, w := range s.workers {
		wg.Go(func() { s.runLoop(runCtx, fmt.Sprintf("worker-%d", i), w.Run) })
	}

	done := s.done
	go func() {
		wg.Wait()
		close(done)
	}()

	s.logger.Info("source started",
		"owner_id", s.coord.OwnerID(),
		"worker_count", s.cfg.WorkerCount,
		"lease_duration", s.cfg.LeaseDuration,
	)

	return nil
}

func (s *Source) runLoop(ctx context.Context, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		s.logger.Error("loop stopped with fatal error", "loop", name, "error", err)

		s.mu.Lock()
		s.errs = append(s.errs, fmt.Errorf("%s: %w", name, err))
		s.mu.Unlock()
	}
}

// Stop cancels all loops and waits for them to give up their partitions.
//
// The wait is bounded by ShutdownTimeout and by ctx, whichever ends first.
// A source stopped cleanly may be started again.
//
// Parameters:
//   - ctx: Context for shutdown timeout
//
// Returns:
//   - error: ErrNotStarted, a timeout error if loops are still running, or
//     the fatal errors loops stopped with
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	waitCtx, cancelWait := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancelWait()

	select {
	case <-done:
	case <-waitCtx.Done():
		s.logger.Error("shutdown timeout exceeded, some loops may still be running")
		return fmt.Errorf("shutdown timeout: %w", waitCtx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel = nil
	s.logger.Info("source stopped", "owner_id", s.coord.OwnerID())

	return errors.Join(s.errs...)
}

// IsLeader reports whether this source currently holds the leader partition.
func (s *Source) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.leader != nil && s.leader.IsLeader()
}

// WorkerStates returns the current state of every worker loop.
//
// Returns:
//   - []WorkerState: One entry per worker, empty before the first Start
func (s *Source) WorkerStates() []WorkerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]WorkerState, len(s.workers))
	for i, w := range s.workers {
		states[i] = w.State()
	}

	return states
}
