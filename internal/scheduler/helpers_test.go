package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/crawlsource/coordinator"
	"github.com/arloliu/crawlsource/internal/hooks"
	"github.com/arloliu/crawlsource/internal/logger"
	"github.com/arloliu/crawlsource/internal/metrics"
	"github.com/arloliu/crawlsource/internal/partition"
	"github.com/arloliu/crawlsource/types"
)

func testConfig() Config {
	return Config{
		LeaseDuration:        2 * time.Second,
		LeaderAcquireBackoff: 20 * time.Millisecond,
		DiscoveryInterval:    30 * time.Millisecond,
		WorkerIdleBackoff:    5 * time.Millisecond,
		WorkerMaxIdleBackoff: 20 * time.Millisecond,
		BufferWriteTimeout:   50 * time.Millisecond,
		ReopenDelay:          time.Hour,
		MaxClosedCount:       3,
		OperationTimeout:     time.Second,
	}
}

func newTestCoordinator(t *testing.T, store types.PartitionStore, owner string, lease time.Duration) *coordinator.Coordinator {
	t.Helper()

	c, err := coordinator.New(store, partition.NewFactory(),
		coordinator.WithOwnerID(owner),
		coordinator.WithLeaseDuration(lease),
	)
	require.NoError(t, err)

	return c
}

func testDeps(t *testing.T, c types.Coordinator, crawler types.Crawler, buf types.Buffer, h *types.Hooks) Deps {
	t.Helper()

	return Deps{
		Coordinator: c,
		Crawler:     crawler,
		Buffer:      buf,
		Logger:      logger.NewNop(),
		Metrics:     metrics.NewNop(),
		Hooks:       hooks.Fill(h),
	}
}

// stubCrawler delegates to optional funcs.
type stubCrawler struct {
	discover func(ctx context.Context, lastState json.RawMessage) (types.DiscoveryResult, error)
	fetch    func(ctx context.Context, item types.WorkItem, state json.RawMessage) (types.FetchResult, error)
}

func (s *stubCrawler) Discover(ctx context.Context, lastState json.RawMessage) (types.DiscoveryResult, error) {
	if s.discover == nil {
		return types.DiscoveryResult{State: lastState}, nil
	}

	return s.discover(ctx, lastState)
}

func (s *stubCrawler) Fetch(ctx context.Context, item types.WorkItem, state json.RawMessage) (types.FetchResult, error) {
	if s.fetch == nil {
		return types.FetchResult{Complete: true}, nil
	}

	return s.fetch(ctx, item, state)
}

// collectBuffer records every write, or fails each one with err.
type collectBuffer struct {
	mu      sync.Mutex
	records []types.Record
	err     error
}

func (b *collectBuffer) Write(ctx context.Context, rec types.Record, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.records = append(b.records, rec)

	return nil
}

func (b *collectBuffer) Records() []types.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]types.Record(nil), b.records...)
}

func getPartition(t *testing.T, c types.Coordinator, pt types.PartitionType, key string) *types.Partition {
	t.Helper()

	p, err := c.GetPartition(context.Background(), pt, key)
	require.NoError(t, err)

	return p
}
