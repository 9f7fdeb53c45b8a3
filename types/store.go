package types

import "context"

// PartitionStore is the persistence contract the coordinator builds on.
//
// The store must be linearizable per key and offer conditional writes. Every
// successful write assigns a strictly larger Version to the record; the value
// the caller put in StoreRecord.Version is ignored on write.
//
// Implementations must be safe for concurrent use, including from multiple
// processes sharing the same backend.
type PartitionStore interface {
	// InsertIfAbsent stores rec if no record with the same (Type, Key) exists.
	//
	// Returns:
	//   - uint64: Version assigned to the new record
	//   - error: ErrPartitionExists if the key is present
	InsertIfAbsent(ctx context.Context, rec StoreRecord) (uint64, error)

	// ConditionalUpdate replaces the record only if its current version equals
	// expectedVersion.
	//
	// Returns:
	//   - uint64: New version of the record
	//   - error: ErrVersionConflict on mismatch, ErrPartitionNotFound if absent
	ConditionalUpdate(ctx context.Context, rec StoreRecord, expectedVersion uint64) (uint64, error)

	// ScanCandidates returns the records of type t for which pred returns true.
	//
	// The result is a snapshot; records may change before the caller writes.
	// Order is unspecified.
	ScanCandidates(ctx context.Context, t PartitionType, pred func(StoreRecord) bool) ([]StoreRecord, error)

	// Get loads a single record.
	//
	// Returns:
	//   - StoreRecord: The stored record with its current version
	//   - error: ErrPartitionNotFound if absent
	Get(ctx context.Context, t PartitionType, key string) (StoreRecord, error)
}
