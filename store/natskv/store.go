// Package natskv provides a PartitionStore backed by a NATS JetStream KV bucket.
//
// Each partition is one KV entry. The KV revision is the partition version:
// InsertIfAbsent maps to kv.Create and ConditionalUpdate to kv.Update with the
// expected revision, so the bucket's per-key ordering gives compare-and-swap
// across every process connected to the same NATS deployment.
//
// KV keys allow only a restricted character set, so entries are keyed by
// "<TYPE>.<xxh3-128 digest of the partition key>". The original key is kept in
// the stored record.
package natskv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/crawlsource/internal/kvutil"
	"github.com/arloliu/crawlsource/internal/natsutil"
	"github.com/arloliu/crawlsource/types"
)

// DefaultBucket is the bucket name used when Config.Bucket is empty.
const DefaultBucket = "crawlsource-partitions"

// Config configures the partition bucket.
type Config struct {
	// Bucket is the KV bucket name.
	Bucket string `yaml:"bucket"`

	// Replicas is the bucket replication factor (default 1).
	Replicas int `yaml:"replicas"`

	// MemoryStorage keeps the bucket in memory instead of on disk.
	MemoryStorage bool `yaml:"memoryStorage"`
}

// Store is a JetStream KV PartitionStore.
type Store struct {
	kv jetstream.KeyValue
}

// Compile-time assertion that Store implements PartitionStore.
var _ types.PartitionStore = (*Store)(nil)

// New creates or opens the partition bucket and returns a store over it.
//
// Parameters:
//   - ctx: Context bounding bucket creation
//   - js: JetStream context
//   - cfg: Bucket configuration
//
// Returns:
//   - *Store: Store over the bucket
//   - error: Bucket creation failure
func New(ctx context.Context, js jetstream.JetStream, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}

	storage := jetstream.FileStorage
	if cfg.MemoryStorage {
		storage = jetstream.MemoryStorage
	}

	// History 1 and no TTL: lease expiry lives in the record, not the bucket
	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "crawlsource partition leases",
		History:     1,
		Storage:     storage,
		Replicas:    cfg.Replicas,
	}, 3)
	if err != nil {
		return nil, err
	}

	return NewFromKV(kv), nil
}

// NewFromKV returns a store over an existing bucket.
func NewFromKV(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// EntryKey returns the KV key for a partition.
func EntryKey(t types.PartitionType, key string) string {
	return string(t) + "." + KeyDigest(key)
}

// KeyDigest returns the hex xxh3-128 digest of key.
func KeyDigest(key string) string {
	h := xxh3.HashString128(key)
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// InsertIfAbsent creates the entry for rec.
func (s *Store) InsertIfAbsent(ctx context.Context, rec types.StoreRecord) (uint64, error) {
	data, err := encode(rec)
	if err != nil {
		return 0, err
	}

	rev, err := s.kv.Create(ctx, EntryKey(rec.Type, rec.Key), data)
	if err != nil {
		if natsutil.IsWrongRevision(err) {
			return 0, fmt.Errorf("%s/%s: %w", rec.Type, rec.Key, types.ErrPartitionExists)
		}

		return 0, fmt.Errorf("insert %s/%s: %w", rec.Type, rec.Key, err)
	}

	return rev, nil
}

// ConditionalUpdate updates the entry if its revision equals expectedVersion.
func (s *Store) ConditionalUpdate(ctx context.Context, rec types.StoreRecord, expectedVersion uint64) (uint64, error) {
	data, err := encode(rec)
	if err != nil {
		return 0, err
	}

	entryKey := EntryKey(rec.Type, rec.Key)
	rev, err := s.kv.Update(ctx, entryKey, data, expectedVersion)
	if err == nil {
		return rev, nil
	}
	if !natsutil.IsWrongRevision(err) {
		return 0, fmt.Errorf("update %s/%s: %w", rec.Type, rec.Key, err)
	}

	// Distinguish a missing entry from a stale revision
	if _, getErr := s.kv.Get(ctx, entryKey); natsutil.IsNotFound(getErr) {
		return 0, fmt.Errorf("%s/%s: %w", rec.Type, rec.Key, types.ErrPartitionNotFound)
	}

	return 0, fmt.Errorf("%s/%s: %w", rec.Type, rec.Key, types.ErrVersionConflict)
}

// ScanCandidates replays the current entries of type t and filters them with pred.
func (s *Store) ScanCandidates(ctx context.Context, t types.PartitionType, pred func(types.StoreRecord) bool) ([]types.StoreRecord, error) {
	w, err := s.kv.Watch(ctx, string(t)+".*", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t, err)
	}
	defer func() { _ = w.Stop() }()

	var out []types.StoreRecord
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-w.Updates():
			if !ok {
				return nil, fmt.Errorf("scan %s: watcher closed", t)
			}
			// A nil entry marks the end of the initial values
			if entry == nil {
				return out, nil
			}

			rec, err := decode(entry)
			if err != nil {
				return nil, err
			}
			if pred == nil || pred(rec) {
				out = append(out, rec)
			}
		}
	}
}

// Get loads the entry for (t, key).
func (s *Store) Get(ctx context.Context, t types.PartitionType, key string) (types.StoreRecord, error) {
	entry, err := s.kv.Get(ctx, EntryKey(t, key))
	if err != nil {
		if natsutil.IsNotFound(err) {
			return types.StoreRecord{}, fmt.Errorf("%s/%s: %w", t, key, types.ErrPartitionNotFound)
		}

		return types.StoreRecord{}, fmt.Errorf("get %s/%s: %w", t, key, err)
	}

	return decode(entry)
}

func encode(rec types.StoreRecord) ([]byte, error) {
	rec.Version = 0
	rec.OwnerExpiry = utc(rec.OwnerExpiry)
	rec.ReopenAt = utc(rec.ReopenAt)

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", rec.Type, rec.Key, err)
	}

	return data, nil
}

func decode(entry jetstream.KeyValueEntry) (types.StoreRecord, error) {
	var rec types.StoreRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return types.StoreRecord{}, fmt.Errorf("decode entry %s: %w", entry.Key(), err)
	}
	rec.Version = entry.Revision()

	return rec, nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}

	return t.UTC()
}
