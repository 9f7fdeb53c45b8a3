// Package memory provides an in-process PartitionStore.
//
// The store is linearizable per key through xsync.Map.Compute and is intended
// for tests, examples and single-process deployments.
package memory

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/crawlsource/types"
)

// Store is an in-memory PartitionStore.
type Store struct {
	records *xsync.Map[string, types.StoreRecord]
}

// Compile-time assertion that Store implements PartitionStore.
var _ types.PartitionStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: xsync.NewMap[string, types.StoreRecord]()}
}

func mapKey(t types.PartitionType, key string) string {
	return string(t) + "/" + key
}

// InsertIfAbsent stores rec with version 1 if the key is absent.
func (s *Store) InsertIfAbsent(ctx context.Context, rec types.StoreRecord) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rec = cloneRecord(rec)
	rec.Version = 1
	if _, loaded := s.records.LoadOrStore(mapKey(rec.Type, rec.Key), rec); loaded {
		return 0, fmt.Errorf("%s/%s: %w", rec.Type, rec.Key, types.ErrPartitionExists)
	}

	return rec.Version, nil
}

// ConditionalUpdate replaces the record if its version equals expectedVersion.
func (s *Store) ConditionalUpdate(ctx context.Context, rec types.StoreRecord, expectedVersion uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var opErr error
	next := cloneRecord(rec)
	s.records.Compute(mapKey(rec.Type, rec.Key), func(old types.StoreRecord, loaded bool) (types.StoreRecord, xsync.ComputeOp) {
		if !loaded {
			opErr = types.ErrPartitionNotFound
			return old, xsync.CancelOp
		}
		if old.Version != expectedVersion {
			opErr = types.ErrVersionConflict
			return old, xsync.CancelOp
		}
		next.Version = old.Version + 1

		return next, xsync.UpdateOp
	})
	if opErr != nil {
		return 0, fmt.Errorf("%s/%s: %w", rec.Type, rec.Key, opErr)
	}

	return next.Version, nil
}

// ScanCandidates returns a snapshot of matching records of type t.
func (s *Store) ScanCandidates(ctx context.Context, t types.PartitionType, pred func(types.StoreRecord) bool) ([]types.StoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []types.StoreRecord
	s.records.Range(func(_ string, rec types.StoreRecord) bool {
		if rec.Type == t && (pred == nil || pred(rec)) {
			out = append(out, cloneRecord(rec))
		}
		return true
	})

	return out, nil
}

// Get loads a single record.
func (s *Store) Get(ctx context.Context, t types.PartitionType, key string) (types.StoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.StoreRecord{}, err
	}

	rec, ok := s.records.Load(mapKey(t, key))
	if !ok {
		return types.StoreRecord{}, fmt.Errorf("%s/%s: %w", t, key, types.ErrPartitionNotFound)
	}

	return cloneRecord(rec), nil
}

// Len returns the number of stored partitions of every type.
func (s *Store) Len() int {
	return s.records.Size()
}

func cloneRecord(rec types.StoreRecord) types.StoreRecord {
	if rec.ProgressState != nil {
		state := make([]byte, len(rec.ProgressState))
		copy(state, rec.ProgressState)
		rec.ProgressState = state
	}

	return rec
}
