package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/arloliu/crawlsource/coordinator"
	"github.com/arloliu/crawlsource/internal/partition"
	"github.com/arloliu/crawlsource/store/memory"
	"github.com/arloliu/crawlsource/types"
)

// pagedFetch serves pages numbered by the fetch state until total pages were returned.
func pagedFetch(total int) func(context.Context, types.WorkItem, json.RawMessage) (types.FetchResult, error) {
	return func(ctx context.Context, item types.WorkItem, state json.RawMessage) (types.FetchResult, error) {
		page := 0
		if len(state) > 0 {
			n, err := strconv.Atoi(string(state))
			if err != nil {
				return types.FetchResult{}, err
			}
			page = n
		}

		next := page + 1
		return types.FetchResult{
			Records:  []types.Record{{Key: fmt.Sprintf("%s-%d", item.Key, page), Data: []byte(item.Key)}},
			State:    json.RawMessage(strconv.Itoa(next)),
			Complete: next >= total,
		}, nil
	}
}

func runWorker(t *testing.T, w *Worker) (context.CancelFunc, *sync.WaitGroup) {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	var wg sync.WaitGroup
	wg.Go(func() {
		assert.NoError(t, w.Run(ctx))
	})

	return cancel, &wg
}

func TestWorker_CompletesPartition(t *testing.T) {
	store := memory.New()
	coord := newTestCoordinator(t, store, "worker-a", 2*time.Second)
	_, err := coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	buf := &collectBuffer{}
	var completed atomic.Int32
	h := &types.Hooks{OnPartitionCompleted: func(ctx context.Context, p types.Partition) error {
		completed.Add(1)
		return nil
	}}

	w := NewWorker(0, testConfig(), testDeps(t, coord, &stubCrawler{fetch: pagedFetch(3)}, buf, h), nil)
	require.Equal(t, types.WorkerIdle, w.State())

	cancel, wg := runWorker(t, w)

	require.Eventually(t, func() bool {
		return getPartition(t, coord, types.PartitionTypeWorkItem, "item").Status == types.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	require.Equal(t, types.WorkerStopped, w.State())

	p := getPartition(t, coord, types.PartitionTypeWorkItem, "item")
	require.Empty(t, p.OwnerID)
	require.Equal(t, int64(3), p.WorkItem.RecordsWritten)
	require.Equal(t, int64(3), p.WorkItem.PagesFetched)

	records := buf.Records()
	require.Len(t, records, 3)
	for i, rec := range records {
		require.Equal(t, fmt.Sprintf("item-%d", i), rec.Key)
	}

	require.Eventually(t, func() bool { return completed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorker_ResumesFromSavedState(t *testing.T) {
	store := memory.New()
	coord := newTestCoordinator(t, store, "worker-a", 2*time.Second)
	_, err := coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	// A previous owner fetched two pages and then crashed
	crashed := newTestCoordinator(t, store, "crashed", 2*time.Second)
	p, err := crashed.AcquireAvailablePartition(t.Context(), types.PartitionTypeWorkItem)
	require.NoError(t, err)
	p.WorkItem.FetchState = json.RawMessage("2")
	p.WorkItem.PagesFetched = 2
	require.NoError(t, crashed.SaveProgressState(t.Context(), p, 0))

	buf := &collectBuffer{}
	w := NewWorker(0, testConfig(), testDeps(t, coord, &stubCrawler{fetch: pagedFetch(4)}, buf, nil), nil)
	cancel, wg := runWorker(t, w)

	require.Eventually(t, func() bool {
		return getPartition(t, coord, types.PartitionTypeWorkItem, "item").Status == types.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	records := buf.Records()
	require.Len(t, records, 2)
	require.Equal(t, "item-2", records[0].Key)
	require.Equal(t, "item-3", records[1].Key)
	require.Equal(t, int64(4), getPartition(t, coord, types.PartitionTypeWorkItem, "item").WorkItem.PagesFetched)
}

func TestWorker_RecoverableErrorCloses(t *testing.T) {
	store := memory.New()
	coord := newTestCoordinator(t, store, "worker-a", 2*time.Second)
	_, err := coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	crawler := &stubCrawler{fetch: func(ctx context.Context, item types.WorkItem, state json.RawMessage) (types.FetchResult, error) {
		return types.FetchResult{}, errors.New("rate limited")
	}}

	w := NewWorker(0, testConfig(), testDeps(t, coord, crawler, &collectBuffer{}, nil), nil)
	cancel, wg := runWorker(t, w)

	require.Eventually(t, func() bool {
		return getPartition(t, coord, types.PartitionTypeWorkItem, "item").Status == types.StatusClosed
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	p := getPartition(t, coord, types.PartitionTypeWorkItem, "item")
	require.Equal(t, 1, p.ClosedCount)
	require.Empty(t, p.OwnerID)
	require.False(t, p.ReopenAt.IsZero())
	require.WithinDuration(t, time.Now().Add(time.Hour), p.ReopenAt, time.Minute)
	require.Equal(t, "rate limited", p.WorkItem.LastError)
}

func TestWorker_BufferTimeoutAbandons(t *testing.T) {
	store := memory.New()
	coord := newTestCoordinator(t, store, "worker-a", 2*time.Second)
	_, err := coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	buf := &collectBuffer{err: types.ErrBufferTimeout}
	w := NewWorker(0, testConfig(), testDeps(t, coord, &stubCrawler{fetch: pagedFetch(2)}, buf, nil), nil)
	cancel, wg := runWorker(t, w)

	require.Eventually(t, func() bool {
		return getPartition(t, coord, types.PartitionTypeWorkItem, "item").Status == types.StatusClosed
	}, 2*time.Second, 5*time.Millisecond)

	p := getPartition(t, coord, types.PartitionTypeWorkItem, "item")
	require.Equal(t, 1, p.ClosedCount)
	require.Empty(t, p.OwnerID)
	// Retry follows the lease expiry, not the reopen delay
	require.WithinDuration(t, time.Now(), p.ReopenAt, 3*time.Second)

	// The partition becomes acquirable again once the old lease would have expired
	require.Eventually(t, func() bool {
		return getPartition(t, coord, types.PartitionTypeWorkItem, "item").ClosedCount >= 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}

func TestWorker_AbandonUsesCoordinatorClock(t *testing.T) {
	store := memory.New()
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	coord, err := coordinator.New(store, partition.NewFactory(),
		coordinator.WithOwnerID("worker-a"),
		coordinator.WithLeaseDuration(2*time.Second),
		coordinator.WithClock(func() time.Time { return fixed }),
	)
	require.NoError(t, err)
	_, err = coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	buf := &collectBuffer{err: types.ErrBufferTimeout}
	w := NewWorker(0, testConfig(), testDeps(t, coord, &stubCrawler{fetch: pagedFetch(2)}, buf, nil), nil)
	cancel, wg := runWorker(t, w)

	require.Eventually(t, func() bool {
		return getPartition(t, coord, types.PartitionTypeWorkItem, "item").Status == types.StatusClosed
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	// The frozen clock never reaches the reopen time, so there is no second attempt
	p := getPartition(t, coord, types.PartitionTypeWorkItem, "item")
	require.Equal(t, 1, p.ClosedCount)
	require.True(t, fixed.Add(2*time.Second).Equal(p.ReopenAt), "reopen at %s", p.ReopenAt)
}

func TestWorker_ExhaustedReportsFailure(t *testing.T) {
	store := memory.New()
	coord := newTestCoordinator(t, store, "worker-a", 2*time.Second)
	_, err := coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	crawler := &stubCrawler{fetch: func(ctx context.Context, item types.WorkItem, state json.RawMessage) (types.FetchResult, error) {
		return types.FetchResult{}, fmt.Errorf("bad credentials: %w", types.ErrUnrecoverable)
	}}

	failed := make(chan error, 1)
	h := &types.Hooks{OnPartitionFailed: func(ctx context.Context, p types.Partition, err error) error {
		failed <- err
		return nil
	}}

	cfg := testConfig()
	cfg.MaxClosedCount = 0
	w := NewWorker(0, cfg, testDeps(t, coord, crawler, &collectBuffer{}, h), nil)
	cancel, wg := runWorker(t, w)

	select {
	case err := <-failed:
		require.ErrorIs(t, err, types.ErrPartitionExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("OnPartitionFailed not called")
	}

	cancel()
	wg.Wait()

	p := getPartition(t, coord, types.PartitionTypeWorkItem, "item")
	require.Equal(t, types.StatusClosed, p.Status)
	require.True(t, p.ReopenAt.IsZero())
	require.True(t, p.Exhausted())

	// Never acquired again
	again, err := coord.AcquireAvailablePartition(t.Context(), types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestWorker_GivesUpOnCancel(t *testing.T) {
	store := memory.New()
	coord := newTestCoordinator(t, store, "worker-a", 2*time.Second)
	_, err := coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	started := make(chan struct{})
	var once sync.Once
	crawler := &stubCrawler{fetch: func(ctx context.Context, item types.WorkItem, state json.RawMessage) (types.FetchResult, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()

		return types.FetchResult{}, ctx.Err()
	}}

	w := NewWorker(0, testConfig(), testDeps(t, coord, crawler, &collectBuffer{}, nil), nil)
	cancel, wg := runWorker(t, w)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch not started")
	}
	require.Equal(t, types.WorkerProcessing, w.State())

	cancel()
	wg.Wait()

	p := getPartition(t, coord, types.PartitionTypeWorkItem, "item")
	require.Equal(t, types.StatusUnassigned, p.Status)
	require.Empty(t, p.OwnerID)
	require.Equal(t, 0, p.ClosedCount)
}

func TestWorker_LeaseLostStopsProcessing(t *testing.T) {
	store := memory.New()
	coord := newTestCoordinator(t, store, "worker-a", 2*time.Second)
	_, err := coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	var fetches atomic.Int32
	steal := make(chan struct{})
	resume := make(chan struct{})
	crawler := &stubCrawler{fetch: func(ctx context.Context, item types.WorkItem, state json.RawMessage) (types.FetchResult, error) {
		if fetches.Add(1) == 1 {
			close(steal)
			<-resume
		}

		return types.FetchResult{Records: []types.Record{{Key: "r"}}, State: json.RawMessage(`"next"`)}, nil
	}}

	w := NewWorker(0, testConfig(), testDeps(t, coord, crawler, &collectBuffer{}, nil), nil)
	cancel, wg := runWorker(t, w)

	<-steal
	rec, err := store.Get(t.Context(), types.PartitionTypeWorkItem, "item")
	require.NoError(t, err)
	rec.OwnerID = "thief"
	rec.OwnerExpiry = time.Now().Add(time.Hour)
	_, err = store.ConditionalUpdate(t.Context(), rec, rec.Version)
	require.NoError(t, err)
	close(resume)

	require.Eventually(t, func() bool { return w.State() == types.WorkerIdle }, time.Second, time.Millisecond)

	cancel()
	wg.Wait()

	require.Equal(t, int32(1), fetches.Load())
	p := getPartition(t, coord, types.PartitionTypeWorkItem, "item")
	require.Equal(t, "thief", p.OwnerID)
	require.Equal(t, types.StatusAssigned, p.Status)
}

func TestWorker_RateLimiterPacesFetches(t *testing.T) {
	store := memory.New()
	coord := newTestCoordinator(t, store, "worker-a", 2*time.Second)
	_, err := coord.CreatePartition(t.Context(), types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	limiter := rate.NewLimiter(rate.Limit(20), 1)
	w := NewWorker(0, testConfig(), testDeps(t, coord, &stubCrawler{fetch: pagedFetch(5)}, &collectBuffer{}, nil), limiter)

	start := time.Now()
	cancel, wg := runWorker(t, w)

	require.Eventually(t, func() bool {
		return getPartition(t, coord, types.PartitionTypeWorkItem, "item").Status == types.StatusCompleted
	}, 3*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	// Five pages at 20/s with burst 1 take at least four intervals
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
