// Package storetest provides a conformance suite for PartitionStore implementations.
package storetest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/crawlsource/types"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) types.PartitionStore

// Run exercises the PartitionStore contract against stores built by newStore.
//
// Example:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) types.PartitionStore { return memory.New() })
//	}
func Run(t *testing.T, newStore Factory) {
	t.Run("insert if absent", func(t *testing.T) { testInsertIfAbsent(t, newStore(t)) })
	t.Run("conditional update", func(t *testing.T) { testConditionalUpdate(t, newStore(t)) })
	t.Run("get", func(t *testing.T) { testGet(t, newStore(t)) })
	t.Run("scan candidates", func(t *testing.T) { testScanCandidates(t, newStore(t)) })
	t.Run("types are separate keyspaces", func(t *testing.T) { testTypeKeyspaces(t, newStore(t)) })
	t.Run("concurrent conditional update", func(t *testing.T) { testConcurrentUpdate(t, newStore(t)) })
}

func workItem(key string, status types.PartitionStatus) types.StoreRecord {
	return types.StoreRecord{
		Type:          types.PartitionTypeWorkItem,
		Key:           key,
		Status:        status,
		ProgressState: []byte(`{"pagesFetched":0}`),
	}
}

func testInsertIfAbsent(t *testing.T, s types.PartitionStore) {
	ctx := t.Context()

	v1, err := s.InsertIfAbsent(ctx, workItem("a", types.StatusUnassigned))
	require.NoError(t, err)
	require.Positive(t, v1)

	_, err = s.InsertIfAbsent(ctx, workItem("a", types.StatusAssigned))
	require.ErrorIs(t, err, types.ErrPartitionExists)

	// The losing insert must not overwrite the record
	rec, err := s.Get(ctx, types.PartitionTypeWorkItem, "a")
	require.NoError(t, err)
	require.Equal(t, types.StatusUnassigned, rec.Status)
	require.Equal(t, v1, rec.Version)
}

func testConditionalUpdate(t *testing.T, s types.PartitionStore) {
	ctx := t.Context()

	v1, err := s.InsertIfAbsent(ctx, workItem("a", types.StatusUnassigned))
	require.NoError(t, err)

	expiry := time.Now().Add(time.Minute).UTC().Truncate(time.Millisecond)
	upd := workItem("a", types.StatusAssigned)
	upd.OwnerID = "owner-1"
	upd.OwnerExpiry = expiry
	upd.ProgressState = []byte(`{"pagesFetched":1}`)

	v2, err := s.ConditionalUpdate(ctx, upd, v1)
	require.NoError(t, err)
	require.Greater(t, v2, v1)

	rec, err := s.Get(ctx, types.PartitionTypeWorkItem, "a")
	require.NoError(t, err)
	require.Equal(t, v2, rec.Version)
	require.Equal(t, types.StatusAssigned, rec.Status)
	require.Equal(t, "owner-1", rec.OwnerID)
	require.True(t, expiry.Equal(rec.OwnerExpiry), "expiry %v != %v", rec.OwnerExpiry, expiry)
	require.JSONEq(t, `{"pagesFetched":1}`, string(rec.ProgressState))

	// Stale version
	_, err = s.ConditionalUpdate(ctx, upd, v1)
	require.ErrorIs(t, err, types.ErrVersionConflict)

	// Absent key
	_, err = s.ConditionalUpdate(ctx, workItem("missing", types.StatusAssigned), 1)
	require.ErrorIs(t, err, types.ErrPartitionNotFound)
}

func testGet(t *testing.T, s types.PartitionStore) {
	ctx := t.Context()

	_, err := s.Get(ctx, types.PartitionTypeWorkItem, "nope")
	require.ErrorIs(t, err, types.ErrPartitionNotFound)

	rec := workItem("with spaces/and:symbols", types.StatusUnassigned)
	rec.ClosedCount = 2
	rec.ReopenAt = time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	_, err = s.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)

	got, err := s.Get(ctx, types.PartitionTypeWorkItem, "with spaces/and:symbols")
	require.NoError(t, err)
	require.Equal(t, rec.Key, got.Key)
	require.Equal(t, 2, got.ClosedCount)
	require.True(t, rec.ReopenAt.Equal(got.ReopenAt))
	require.True(t, got.OwnerExpiry.IsZero())
}

func testScanCandidates(t *testing.T, s types.PartitionStore) {
	ctx := t.Context()

	statuses := []types.PartitionStatus{
		types.StatusUnassigned, types.StatusAssigned, types.StatusCompleted, types.StatusClosed,
	}
	for i, st := range statuses {
		_, err := s.InsertIfAbsent(ctx, workItem(fmt.Sprintf("k%d", i), st))
		require.NoError(t, err)
	}

	all, err := s.ScanCandidates(ctx, types.PartitionTypeWorkItem, func(types.StoreRecord) bool { return true })
	require.NoError(t, err)
	// Stores may prefilter terminal records; everything else must be returned
	require.GreaterOrEqual(t, len(all), 3)

	unassigned, err := s.ScanCandidates(ctx, types.PartitionTypeWorkItem, func(r types.StoreRecord) bool {
		return r.Status == types.StatusUnassigned
	})
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	require.Equal(t, "k0", unassigned[0].Key)
	require.Positive(t, unassigned[0].Version)

	none, err := s.ScanCandidates(ctx, types.PartitionTypeLeader, func(types.StoreRecord) bool { return true })
	require.NoError(t, err)
	require.Empty(t, none)
}

func testTypeKeyspaces(t *testing.T, s types.PartitionStore) {
	ctx := t.Context()

	_, err := s.InsertIfAbsent(ctx, types.StoreRecord{Type: types.PartitionTypeLeader, Key: "GLOBAL", Status: types.StatusUnassigned})
	require.NoError(t, err)
	_, err = s.InsertIfAbsent(ctx, workItem("GLOBAL", types.StatusUnassigned))
	require.NoError(t, err)

	leaders, err := s.ScanCandidates(ctx, types.PartitionTypeLeader, func(types.StoreRecord) bool { return true })
	require.NoError(t, err)
	require.Len(t, leaders, 1)
	require.Equal(t, types.PartitionTypeLeader, leaders[0].Type)
}

// testConcurrentUpdate checks that exactly one of many writers holding the
// same version wins.
func testConcurrentUpdate(t *testing.T, s types.PartitionStore) {
	ctx := t.Context()

	v1, err := s.InsertIfAbsent(ctx, workItem("race", types.StatusUnassigned))
	require.NoError(t, err)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range writers {
		wg.Go(func() {
			upd := workItem("race", types.StatusAssigned)
			upd.OwnerID = fmt.Sprintf("owner-%d", i)
			if _, err := s.ConditionalUpdate(ctx, upd, v1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, types.ErrVersionConflict)
			}
		})
	}
	wg.Wait()

	require.Equal(t, 1, wins)
}
