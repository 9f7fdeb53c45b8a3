package types

import (
	"context"
	"time"
)

// Coordinator mediates all partition ownership over a PartitionStore.
//
// Ownership is a time-bounded lease kept in the store. The coordinator holds no
// in-process locks; two coordinators sharing a store never hold a non-expired
// lease on the same partition at once.
type Coordinator interface {
	// Initialize verifies the backing store is reachable.
	Initialize(ctx context.Context) error

	// OwnerID returns the identity written into leases taken by this coordinator.
	OwnerID() string

	// CreatePartition inserts p if absent.
	//
	// Returns:
	//   - bool: true if created, false if the partition already existed
	//   - error: Store failure
	CreatePartition(ctx context.Context, p Partition) (bool, error)

	// AcquireAvailablePartition claims one eligible partition of type t.
	//
	// Returns:
	//   - *Partition: The claimed partition, or nil if none is eligible
	//   - error: Store or factory failure; losing a claim race is not an error
	AcquireAvailablePartition(ctx context.Context, t PartitionType) (*Partition, error)

	// SaveProgressState persists p's progress and extends the lease to now+extendBy.
	// On success p carries the new version and expiry.
	//
	// Returns:
	//   - error: ErrLeaseLost if the caller no longer owns p
	SaveProgressState(ctx context.Context, p *Partition, extendBy time.Duration) error

	// CompletePartition marks p COMPLETED and releases it.
	CompletePartition(ctx context.Context, p *Partition) error

	// ClosePartition marks p CLOSED, reopening after reopenDelay.
	//
	// Returns:
	//   - error: ErrPartitionExhausted (after persisting) once the closed count exceeds maxClosedCount
	ClosePartition(ctx context.Context, p *Partition, reopenDelay time.Duration, maxClosedCount int) error

	// AbandonPartition marks p CLOSED, reopening at its current lease expiry.
	// The release counts toward maxClosedCount like ClosePartition.
	//
	// Returns:
	//   - error: ErrPartitionExhausted (after persisting) once the closed count exceeds maxClosedCount
	AbandonPartition(ctx context.Context, p *Partition, maxClosedCount int) error

	// GiveUpPartition releases p back to UNASSIGNED.
	GiveUpPartition(ctx context.Context, p *Partition) error

	// GetPartition loads a partition without claiming it.
	//
	// Returns:
	//   - error: ErrPartitionNotFound if absent
	GetPartition(ctx context.Context, t PartitionType, key string) (*Partition, error)
}
