package coordinator

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/crawlsource/internal/metrics"
	"github.com/arloliu/crawlsource/internal/partition"
	"github.com/arloliu/crawlsource/store/memory"
	"github.com/arloliu/crawlsource/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
}

func newCoordinator(t *testing.T, store types.PartitionStore, clock *fakeClock, owner string) *Coordinator {
	t.Helper()

	c, err := New(store, partition.NewFactory(),
		WithOwnerID(owner),
		WithLeaseDuration(10*time.Second),
		WithClock(clock.Now),
	)
	require.NoError(t, err)

	return c
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil)
	require.ErrorIs(t, err, types.ErrStoreRequired)

	c, err := New(memory.New(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, c.OwnerID())
	require.Equal(t, DefaultLeaseDuration, c.LeaseDuration())
	require.NoError(t, c.Initialize(t.Context()))

	other, err := New(memory.New(), nil)
	require.NoError(t, err)
	require.NotEqual(t, c.OwnerID(), other.OwnerID())
}

func TestCreatePartition_Idempotent(t *testing.T) {
	ctx := t.Context()
	store := memory.New()
	c := newCoordinator(t, store, newFakeClock(), "a")

	created, err := c.CreatePartition(ctx, types.NewLeaderPartition())
	require.NoError(t, err)
	require.True(t, created)

	created, err = c.CreatePartition(ctx, types.NewLeaderPartition())
	require.NoError(t, err)
	require.False(t, created)

	leaders, err := store.ScanCandidates(ctx, types.PartitionTypeLeader, nil)
	require.NoError(t, err)
	require.Len(t, leaders, 1)
}

func TestAcquire_AtMostOneOwner(t *testing.T) {
	ctx := t.Context()
	store := memory.New()
	clock := newFakeClock()

	seed := newCoordinator(t, store, clock, "seed")
	_, err := seed.CreatePartition(ctx, types.NewWorkItemPartition("only", nil))
	require.NoError(t, err)

	const contenders = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners []string
	)
	for i := range contenders {
		c := newCoordinator(t, store, clock, fmt.Sprintf("owner-%d", i))
		wg.Go(func() {
			p, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
			if err != nil || p == nil {
				return
			}
			mu.Lock()
			owners = append(owners, p.OwnerID)
			mu.Unlock()
		})
	}
	wg.Wait()

	require.Len(t, owners, 1)

	got, err := seed.GetPartition(ctx, types.PartitionTypeWorkItem, "only")
	require.NoError(t, err)
	require.Equal(t, owners[0], got.OwnerID)
	require.Equal(t, types.StatusAssigned, got.Status)
}

func TestAcquire_NoneEligible(t *testing.T) {
	c := newCoordinator(t, memory.New(), newFakeClock(), "a")

	p, err := c.AcquireAvailablePartition(t.Context(), types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestLeaseExpiry_Reassignment(t *testing.T) {
	ctx := t.Context()
	store := memory.New()
	clock := newFakeClock()
	a := newCoordinator(t, store, clock, "a")
	b := newCoordinator(t, store, clock, "b")

	_, err := a.CreatePartition(ctx, types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)

	pa, err := a.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NotNil(t, pa)
	require.Equal(t, clock.Now().Add(10*time.Second), pa.OwnerExpiry)

	// Live lease blocks other owners
	pb, err := b.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.Nil(t, pb)

	clock.Advance(11 * time.Second)

	pb, err = b.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NotNil(t, pb)
	require.Equal(t, "b", pb.OwnerID)

	// The old owner is rejected on every write
	require.ErrorIs(t, a.SaveProgressState(ctx, pa, 10*time.Second), types.ErrLeaseLost)
	require.ErrorIs(t, a.CompletePartition(ctx, pa), types.ErrLeaseLost)
	require.ErrorIs(t, a.GiveUpPartition(ctx, pa), types.ErrLeaseLost)

	require.NoError(t, b.SaveProgressState(ctx, pb, 10*time.Second))
}

func TestSaveProgressState_RenewsLease(t *testing.T) {
	ctx := t.Context()
	store := memory.New()
	clock := newFakeClock()
	a := newCoordinator(t, store, clock, "a")
	b := newCoordinator(t, store, clock, "b")

	_, err := a.CreatePartition(ctx, types.NewWorkItemPartition("item", nil))
	require.NoError(t, err)
	p, err := a.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)

	// Renew before expiry, then move past the original expiry
	clock.Advance(8 * time.Second)
	prevVersion := p.Version
	require.NoError(t, a.SaveProgressState(ctx, p, 10*time.Second))
	require.Greater(t, p.Version, prevVersion)
	clock.Advance(8 * time.Second)

	taken, err := b.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.Nil(t, taken)
}

func TestProgressResumption(t *testing.T) {
	ctx := t.Context()
	store := memory.New()
	clock := newFakeClock()
	a := newCoordinator(t, store, clock, "a")
	b := newCoordinator(t, store, clock, "b")

	_, err := a.CreatePartition(ctx, types.NewWorkItemPartition("item", json.RawMessage(`{"page":0}`)))
	require.NoError(t, err)

	p, err := a.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	p.WorkItem.FetchState = json.RawMessage(`{"page":2}`)
	p.WorkItem.PagesFetched = 2
	require.NoError(t, a.SaveProgressState(ctx, p, 10*time.Second))

	// a crashes without releasing
	clock.Advance(time.Minute)

	resumed, err := b.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	require.JSONEq(t, `{"page":2}`, string(resumed.WorkItem.FetchState))
	require.EqualValues(t, 2, resumed.WorkItem.PagesFetched)
}

func TestClosePartition_Cap(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock()
	c := newCoordinator(t, memory.New(), clock, "a")

	_, err := c.CreatePartition(ctx, types.NewWorkItemPartition("flaky", nil))
	require.NoError(t, err)

	const maxClosed = 2
	for i := 1; i <= maxClosed; i++ {
		p, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
		require.NoError(t, err)
		require.NotNil(t, p, "attempt %d", i)

		require.NoError(t, c.ClosePartition(ctx, p, time.Minute, maxClosed))
		require.Equal(t, types.StatusClosed, p.Status)
		require.Equal(t, i, p.ClosedCount)
		require.Equal(t, clock.Now().Add(time.Minute), p.ReopenAt)

		// Not eligible before the reopen time
		none, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
		require.NoError(t, err)
		require.Nil(t, none)

		clock.Advance(time.Minute)
	}

	p, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NotNil(t, p)

	err = c.ClosePartition(ctx, p, time.Minute, maxClosed)
	require.ErrorIs(t, err, types.ErrPartitionExhausted)
	require.True(t, p.Exhausted())

	clock.Advance(24 * time.Hour)
	none, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.Nil(t, none)

	stored, err := c.GetPartition(ctx, types.PartitionTypeWorkItem, "flaky")
	require.NoError(t, err)
	require.Equal(t, maxClosed+1, stored.ClosedCount)
	require.True(t, stored.Exhausted())
}

func TestCompleteAndGiveUp(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock()
	c := newCoordinator(t, memory.New(), clock, "a")

	_, err := c.CreatePartition(ctx, types.NewWorkItemPartition("x", nil))
	require.NoError(t, err)

	p, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NoError(t, c.GiveUpPartition(ctx, p))
	require.Equal(t, types.StatusUnassigned, p.Status)
	require.Empty(t, p.OwnerID)

	// Given up partitions are acquirable at once
	p, err = c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NotNil(t, p)

	p.WorkItem.RecordsWritten = 7
	require.NoError(t, c.CompletePartition(ctx, p))
	require.Equal(t, types.StatusCompleted, p.Status)

	// Completed is terminal
	clock.Advance(time.Hour)
	none, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.Nil(t, none)

	stored, err := c.GetPartition(ctx, types.PartitionTypeWorkItem, "x")
	require.NoError(t, err)
	require.EqualValues(t, 7, stored.WorkItem.RecordsWritten)

	// Releasing a partition that is no longer held is a lease error
	require.ErrorIs(t, c.CompletePartition(ctx, p), types.ErrLeaseLost)
}

func TestOwnerChecks(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock()
	store := memory.New()
	a := newCoordinator(t, store, clock, "a")
	b := newCoordinator(t, store, clock, "b")

	_, err := a.CreatePartition(ctx, types.NewWorkItemPartition("x", nil))
	require.NoError(t, err)
	p, err := a.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)

	require.ErrorIs(t, b.SaveProgressState(ctx, p, time.Second), types.ErrLeaseLost)
	require.ErrorIs(t, b.ClosePartition(ctx, p, time.Second, 3), types.ErrLeaseLost)
	require.ErrorIs(t, a.SaveProgressState(ctx, nil, time.Second), types.ErrLeaseLost)
}

func TestAcquire_CandidateOrder(t *testing.T) {
	ctx := t.Context()
	store := memory.New()
	clock := newFakeClock()
	base := clock.Now()

	insert := func(key string, status types.PartitionStatus, expiry, reopen time.Time) {
		_, err := store.InsertIfAbsent(ctx, types.StoreRecord{
			Type:        types.PartitionTypeWorkItem,
			Key:         key,
			Status:      status,
			OwnerID:     "gone",
			OwnerExpiry: expiry,
			ReopenAt:    reopen,
		})
		require.NoError(t, err)
	}
	insert("expired-recent", types.StatusAssigned, base.Add(-time.Second), time.Time{})
	insert("closed-old", types.StatusClosed, time.Time{}, base.Add(-time.Hour))
	insert("b-fresh", types.StatusUnassigned, time.Time{}, time.Time{})
	insert("a-fresh", types.StatusUnassigned, time.Time{}, time.Time{})
	insert("expired-old", types.StatusAssigned, base.Add(-time.Minute), time.Time{})

	c := newCoordinator(t, store, clock, "a")

	var order []string
	for {
		p, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
		require.NoError(t, err)
		if p == nil {
			break
		}
		order = append(order, p.Key)
	}

	require.Equal(t, []string{"a-fresh", "b-fresh", "closed-old", "expired-old", "expired-recent"}, order)
}

func TestAcquire_UnknownType(t *testing.T) {
	ctx := t.Context()
	store := memory.New()

	_, err := store.InsertIfAbsent(ctx, types.StoreRecord{Type: "SHARD", Key: "x", Status: types.StatusUnassigned})
	require.NoError(t, err)

	c := newCoordinator(t, store, newFakeClock(), "a")
	_, err = c.AcquireAvailablePartition(ctx, "SHARD")
	require.ErrorIs(t, err, types.ErrUnknownPartitionType)
}

func TestGetPartition_NotFound(t *testing.T) {
	c := newCoordinator(t, memory.New(), newFakeClock(), "a")

	_, err := c.GetPartition(t.Context(), types.PartitionTypeLeader, types.LeaderPartitionKey)
	require.ErrorIs(t, err, types.ErrPartitionNotFound)
}

// corruptCounter counts skipped undecodable candidates.
type corruptCounter struct {
	*metrics.NopMetrics
	skipped atomic.Int64
}

func (c *corruptCounter) RecordCorruptPartition(_ string) {
	c.skipped.Add(1)
}

func TestAcquire_SkipsUndecodableRecord(t *testing.T) {
	ctx := t.Context()
	store := memory.New()

	// Sorts first by key, so a failing decode must not hide the valid item
	_, err := store.InsertIfAbsent(ctx, types.StoreRecord{
		Type:          types.PartitionTypeWorkItem,
		Key:           "a-bad",
		Status:        types.StatusUnassigned,
		ProgressState: []byte("{not json"),
	})
	require.NoError(t, err)

	counter := &corruptCounter{NopMetrics: metrics.NewNop()}
	c, err := New(store, partition.NewFactory(),
		WithOwnerID("a"),
		WithClock(newFakeClock().Now),
		WithMetrics(counter),
	)
	require.NoError(t, err)

	_, err = c.CreatePartition(ctx, types.NewWorkItemPartition("b-good", nil))
	require.NoError(t, err)

	p, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "b-good", p.Key)

	none, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.Nil(t, none)
	require.EqualValues(t, 2, counter.skipped.Load())

	// The bad record is left untouched
	stored, err := store.Get(ctx, types.PartitionTypeWorkItem, "a-bad")
	require.NoError(t, err)
	require.Equal(t, types.StatusUnassigned, stored.Status)
	require.Empty(t, stored.OwnerID)
}

func TestAbandonPartition_ReopensAtLeaseExpiry(t *testing.T) {
	ctx := t.Context()
	clock := newFakeClock()
	c := newCoordinator(t, memory.New(), clock, "a")

	_, err := c.CreatePartition(ctx, types.NewWorkItemPartition("x", nil))
	require.NoError(t, err)

	p, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	expiry := p.OwnerExpiry
	require.Equal(t, clock.Now().Add(10*time.Second), expiry)

	clock.Advance(3 * time.Second)
	require.NoError(t, c.AbandonPartition(ctx, p, 3))
	require.Equal(t, types.StatusClosed, p.Status)
	require.Equal(t, 1, p.ClosedCount)
	require.Equal(t, expiry, p.ReopenAt)
	require.Empty(t, p.OwnerID)

	clock.Advance(6 * time.Second)
	none, err := c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.Nil(t, none)

	clock.Advance(time.Second)
	p, err = c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NotNil(t, p)

	// An already expired lease reopens at once
	clock.Advance(time.Minute)
	require.NoError(t, c.AbandonPartition(ctx, p, 3))
	require.Equal(t, clock.Now(), p.ReopenAt)
	require.Equal(t, 2, p.ClosedCount)

	p, err = c.AcquireAvailablePartition(ctx, types.PartitionTypeWorkItem)
	require.NoError(t, err)
	require.NotNil(t, p)

	err = c.AbandonPartition(ctx, p, 2)
	require.ErrorIs(t, err, types.ErrPartitionExhausted)
	require.True(t, p.Exhausted())
}
