package types

import (
	"encoding/json"
	"time"
)

// PartitionType discriminates the partition variants.
type PartitionType string

const (
	// PartitionTypeLeader is the singleton partition whose lease elects the leader.
	PartitionTypeLeader PartitionType = "LEADER"

	// PartitionTypeWorkItem is a unit of discovered work.
	PartitionTypeWorkItem PartitionType = "WORK_ITEM"
)

// LeaderPartitionKey is the fixed key of the leader partition.
const LeaderPartitionKey = "GLOBAL"

// String returns the discriminator value.
func (t PartitionType) String() string {
	return string(t)
}

// PartitionStatus is the lifecycle status of a partition.
type PartitionStatus string

const (
	// StatusUnassigned means no actor holds the partition.
	StatusUnassigned PartitionStatus = "UNASSIGNED"

	// StatusAssigned means an actor holds a lease on the partition.
	StatusAssigned PartitionStatus = "ASSIGNED"

	// StatusCompleted is terminal. Completed partitions are never acquired again.
	StatusCompleted PartitionStatus = "COMPLETED"

	// StatusClosed means the partition failed and waits for ReopenAt.
	// A closed partition with a zero ReopenAt is permanently failed.
	StatusClosed PartitionStatus = "CLOSED"
)

// String returns the status value.
func (s PartitionStatus) String() string {
	return string(s)
}

// LeaderProgress is the progress payload of the leader partition.
//
// DiscoveryState is owned by the Crawler and passed back to Discover on the
// next cycle, so a new leader resumes discovery where the previous one stopped.
type LeaderProgress struct {
	DiscoveryState  json.RawMessage `json:"discoveryState,omitempty"`
	LastDiscoveryAt time.Time       `json:"lastDiscoveryAt,omitzero"`
	DiscoveredTotal int64           `json:"discoveredTotal"`
}

// WorkItemProgress is the progress payload of a work item partition.
//
// FetchState is owned by the Crawler (pagination cursor, page number, ...).
type WorkItemProgress struct {
	FetchState     json.RawMessage `json:"fetchState,omitempty"`
	RecordsWritten int64           `json:"recordsWritten"`
	PagesFetched   int64           `json:"pagesFetched"`
	LastError      string          `json:"lastError,omitempty"`
}

// Partition is a typed unit of ownable work.
//
// Partition is a tagged variant: Type selects which of the payload pointers
// (Leader or WorkItem) is set. Ownership metadata (OwnerID, OwnerExpiry, Version)
// is only meaningful for the copy returned by the coordinator that claimed it.
type Partition struct {
	Type        PartitionType
	Key         string
	Status      PartitionStatus
	OwnerID     string
	OwnerExpiry time.Time
	ReopenAt    time.Time
	ClosedCount int
	Version     uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Leader   *LeaderProgress
	WorkItem *WorkItemProgress
}

// NewLeaderPartition returns the unassigned leader partition.
//
// Returns:
//   - Partition: Leader partition with an empty discovery state
func NewLeaderPartition() Partition {
	return Partition{
		Type:   PartitionTypeLeader,
		Key:    LeaderPartitionKey,
		Status: StatusUnassigned,
		Leader: &LeaderProgress{},
	}
}

// NewWorkItemPartition returns an unassigned work item partition.
//
// Parameters:
//   - key: Source-specific identifier (page token, entity ID, ...)
//   - initialState: Crawler-owned initial fetch state (may be nil)
//
// Returns:
//   - Partition: Work item partition in UNASSIGNED status
func NewWorkItemPartition(key string, initialState json.RawMessage) Partition {
	return Partition{
		Type:     PartitionTypeWorkItem,
		Key:      key,
		Status:   StatusUnassigned,
		WorkItem: &WorkItemProgress{FetchState: initialState},
	}
}

// Exhausted reports whether the partition is permanently failed.
func (p Partition) Exhausted() bool {
	return p.Status == StatusClosed && p.ReopenAt.IsZero()
}

// Eligible reports whether the partition can be acquired at now.
//
// Eligible partitions are UNASSIGNED ones, ASSIGNED ones whose lease expired,
// and CLOSED ones whose reopen time has passed.
func (p Partition) Eligible(now time.Time) bool {
	return StoreRecord{
		Status:      p.Status,
		OwnerExpiry: p.OwnerExpiry,
		ReopenAt:    p.ReopenAt,
	}.Eligible(now)
}

// Clone returns a deep copy of the partition.
func (p Partition) Clone() Partition {
	c := p
	if p.Leader != nil {
		l := *p.Leader
		l.DiscoveryState = cloneRaw(p.Leader.DiscoveryState)
		c.Leader = &l
	}
	if p.WorkItem != nil {
		w := *p.WorkItem
		w.FetchState = cloneRaw(p.WorkItem.FetchState)
		c.WorkItem = &w
	}

	return c
}

// StoreRecord is the generic persisted form of a partition.
//
// ProgressState holds the JSON encoding of the variant payload. Stores treat
// it as opaque bytes; the PartitionFactory turns a record into a Partition.
type StoreRecord struct {
	Type          PartitionType   `json:"partitionType"`
	Key           string          `json:"partitionKey"`
	Status        PartitionStatus `json:"status"`
	OwnerID       string          `json:"ownerId,omitempty"`
	OwnerExpiry   time.Time       `json:"ownerExpiry,omitzero"`
	ReopenAt      time.Time       `json:"reopenAt,omitzero"`
	ClosedCount   int             `json:"closedCount"`
	ProgressState []byte          `json:"progressState,omitempty"`
	Version       uint64          `json:"version"`
	CreatedAt     time.Time       `json:"createdAt,omitzero"`
	UpdatedAt     time.Time       `json:"updatedAt,omitzero"`
}

// Eligible reports whether the record can be acquired at now.
func (r StoreRecord) Eligible(now time.Time) bool {
	switch r.Status {
	case StatusUnassigned:
		return true
	case StatusAssigned:
		return !r.OwnerExpiry.After(now)
	case StatusClosed:
		return !r.ReopenAt.IsZero() && !r.ReopenAt.After(now)
	default:
		return false
	}
}

// PartitionFactory maps a persisted record to its typed partition.
//
// Implementations must be pure. An unknown discriminator is reported as
// ErrUnknownPartitionType.
type PartitionFactory func(rec StoreRecord) (Partition, error)

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)

	return out
}
