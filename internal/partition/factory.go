// Package partition maps between typed partitions and their persisted records.
package partition

import (
	"encoding/json"
	"fmt"

	"github.com/arloliu/crawlsource/types"
)

// Compile-time assertion that Decode is a PartitionFactory.
var _ types.PartitionFactory = Decode

// NewFactory returns the factory for the LEADER and WORK_ITEM partition types.
//
// Returns:
//   - types.PartitionFactory: Pure record-to-partition mapping
func NewFactory() types.PartitionFactory {
	return Decode
}

// Decode turns a store record into a typed partition.
//
// An empty progress state decodes to a zero-valued payload, so records
// written by InsertIfAbsent before any progress was saved are valid.
//
// Returns:
//   - types.Partition: The typed partition carrying the record's version
//   - error: ErrUnknownPartitionType or ErrInvalidProgressState
func Decode(rec types.StoreRecord) (types.Partition, error) {
	p := types.Partition{
		Type:        rec.Type,
		Key:         rec.Key,
		Status:      rec.Status,
		OwnerID:     rec.OwnerID,
		OwnerExpiry: rec.OwnerExpiry,
		ReopenAt:    rec.ReopenAt,
		ClosedCount: rec.ClosedCount,
		Version:     rec.Version,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}

	switch rec.Type {
	case types.PartitionTypeLeader:
		p.Leader = &types.LeaderProgress{}
		if err := unmarshal(rec, p.Leader); err != nil {
			return types.Partition{}, err
		}
	case types.PartitionTypeWorkItem:
		p.WorkItem = &types.WorkItemProgress{}
		if err := unmarshal(rec, p.WorkItem); err != nil {
			return types.Partition{}, err
		}
	default:
		return types.Partition{}, fmt.Errorf("%w: %q (key %q)", types.ErrUnknownPartitionType, rec.Type, rec.Key)
	}

	return p, nil
}

// ToRecord turns a typed partition into its persisted form.
//
// The payload matching p.Type is encoded as ProgressState. A missing payload is
// encoded as its zero value.
//
// Returns:
//   - types.StoreRecord: Record carrying p's version
//   - error: ErrUnknownPartitionType, or an encoding failure
func ToRecord(p types.Partition) (types.StoreRecord, error) {
	rec := types.StoreRecord{
		Type:        p.Type,
		Key:         p.Key,
		Status:      p.Status,
		OwnerID:     p.OwnerID,
		OwnerExpiry: p.OwnerExpiry,
		ReopenAt:    p.ReopenAt,
		ClosedCount: p.ClosedCount,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}

	var payload any
	switch p.Type {
	case types.PartitionTypeLeader:
		if p.Leader == nil {
			payload = types.LeaderProgress{}
		} else {
			payload = p.Leader
		}
	case types.PartitionTypeWorkItem:
		if p.WorkItem == nil {
			payload = types.WorkItemProgress{}
		} else {
			payload = p.WorkItem
		}
	default:
		return types.StoreRecord{}, fmt.Errorf("%w: %q (key %q)", types.ErrUnknownPartitionType, p.Type, p.Key)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return types.StoreRecord{}, fmt.Errorf("encode progress for %s/%s: %w", p.Type, p.Key, err)
	}
	rec.ProgressState = data

	return rec, nil
}

func unmarshal(rec types.StoreRecord, dst any) error {
	if len(rec.ProgressState) == 0 {
		return nil
	}
	if err := json.Unmarshal(rec.ProgressState, dst); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", types.ErrInvalidProgressState, rec.Type, rec.Key, err)
	}

	return nil
}
