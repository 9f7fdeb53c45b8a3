// Package coordinator implements lease-based partition ownership over a PartitionStore.
//
// A Coordinator never holds in-process locks. Every ownership transition is a
// compare-and-swap on the record version, so coordinators in different
// processes sharing one store agree on a single owner per partition:
//
//	UNASSIGNED --acquire--> ASSIGNED --complete--> COMPLETED
//	                           |  \--close----> CLOSED --reopen time--> (acquirable)
//	                           |---give up----> UNASSIGNED
//	                           \---lease expiry (acquirable by anyone)
//
// Lease renewal happens only through SaveProgressState. An owner whose lease
// expired and was taken over learns about it from ErrLeaseLost on its next write.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/crawlsource/internal/logger"
	"github.com/arloliu/crawlsource/internal/metrics"
	"github.com/arloliu/crawlsource/internal/partition"
	"github.com/arloliu/crawlsource/types"
)

// Coordinator mediates partition ownership.
type Coordinator struct {
	store         types.PartitionStore
	factory       types.PartitionFactory
	ownerID       string
	leaseDuration time.Duration
	now           func() time.Time
	logger        types.Logger
	metrics       types.MetricsCollector
}

// Compile-time assertion that Coordinator implements types.Coordinator.
var _ types.Coordinator = (*Coordinator)(nil)

// New creates a coordinator over store.
//
// Parameters:
//   - store: Conditional-write partition store
//   - factory: Record-to-partition mapping (partition.NewFactory() if nil)
//   - opts: Optional configuration
//
// Returns:
//   - *Coordinator: Ready-to-use coordinator
//   - error: ErrStoreRequired if store is nil
//
// Example:
//
//	c, err := coordinator.New(memory.New(), src.PartitionFactory(),
//	    coordinator.WithLeaseDuration(time.Minute))
func New(store types.PartitionStore, factory types.PartitionFactory, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, types.ErrStoreRequired
	}
	if factory == nil {
		factory = partition.NewFactory()
	}

	o := options{
		leaseDuration: DefaultLeaseDuration,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ownerID == "" {
		o.ownerID = defaultOwnerID()
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNop()
	}

	return &Coordinator{
		store:         store,
		factory:       factory,
		ownerID:       o.ownerID,
		leaseDuration: o.leaseDuration,
		now:           o.now,
		logger:        o.logger,
		metrics:       o.metrics,
	}, nil
}

func defaultOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "crawlsource"
	}

	return host + "-" + uuid.NewString()
}

// OwnerID returns the identity written into leases.
func (c *Coordinator) OwnerID() string {
	return c.ownerID
}

// LeaseDuration returns the lease granted on acquisition.
func (c *Coordinator) LeaseDuration() time.Duration {
	return c.leaseDuration
}

// Initialize verifies that the store is reachable.
func (c *Coordinator) Initialize(ctx context.Context) error {
	_, err := c.get(ctx, types.PartitionTypeLeader, types.LeaderPartitionKey)
	if err != nil && !errors.Is(err, types.ErrPartitionNotFound) {
		return fmt.Errorf("initialize coordinator: %w", err)
	}

	c.logger.Debug("coordinator initialized", "owner_id", c.ownerID, "lease_duration", c.leaseDuration)

	return nil
}

// CreatePartition inserts p as UNASSIGNED if absent.
//
// Ownership fields on p are ignored. Creating an existing partition is not an
// error and returns false.
func (c *Coordinator) CreatePartition(ctx context.Context, p types.Partition) (bool, error) {
	now := c.now()

	p = p.Clone()
	p.Status = types.StatusUnassigned
	p.OwnerID = ""
	p.OwnerExpiry = time.Time{}
	p.ReopenAt = time.Time{}
	p.ClosedCount = 0
	p.CreatedAt = now
	p.UpdatedAt = now

	rec, err := partition.ToRecord(p)
	if err != nil {
		return false, err
	}

	start := time.Now()
	_, err = c.store.InsertIfAbsent(ctx, rec)
	c.observe("insert", start, err)

	if errors.Is(err, types.ErrPartitionExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create partition %s/%s: %w", p.Type, p.Key, err)
	}

	c.logger.Debug("partition created", "partition_type", p.Type, "partition_key", p.Key)

	return true, nil
}

// AcquireAvailablePartition claims one eligible partition of type t.
//
// Candidates are tried in order: UNASSIGNED first, then reclaimable partitions
// whose lease or reopen time passed longest ago, ties broken by key. A lost
// compare-and-swap moves on to the next candidate.
//
// Returns:
//   - *types.Partition: The claimed partition, or nil when nothing is eligible
//   - error: Store or factory failure
func (c *Coordinator) AcquireAvailablePartition(ctx context.Context, t types.PartitionType) (*types.Partition, error) {
	now := c.now()

	start := time.Now()
	candidates, err := c.store.ScanCandidates(ctx, t, func(rec types.StoreRecord) bool {
		return rec.Eligible(now)
	})
	c.observe("scan", start, err)
	if err != nil {
		return nil, fmt.Errorf("scan %s candidates: %w", t, err)
	}

	sortCandidates(candidates)

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := c.factory(cand)
		if errors.Is(err, types.ErrUnknownPartitionType) {
			return nil, err
		}
		if err != nil {
			// An undecodable record stays put; the other candidates remain claimable
			c.metrics.RecordCorruptPartition(string(t))
			c.logger.Error("skipping undecodable partition",
				"partition_type", cand.Type,
				"partition_key", cand.Key,
				"version", cand.Version,
				"error", err,
			)

			continue
		}

		prevOwner := p.OwnerID
		p.Status = types.StatusAssigned
		p.OwnerID = c.ownerID
		p.OwnerExpiry = now.Add(c.leaseDuration)
		p.ReopenAt = time.Time{}
		p.UpdatedAt = now

		version, err := c.update(ctx, p, cand.Version)
		if types.IsContention(err) || errors.Is(err, types.ErrPartitionNotFound) {
			c.metrics.RecordLeaseConflict("acquire")
			continue
		}
		if err != nil {
			c.metrics.RecordAcquireAttempt(string(t), false)
			return nil, fmt.Errorf("acquire %s/%s: %w", p.Type, p.Key, err)
		}

		p.Version = version
		c.metrics.RecordAcquireAttempt(string(t), true)
		c.logger.Debug("partition acquired",
			"partition_type", p.Type,
			"partition_key", p.Key,
			"previous_status", cand.Status,
			"previous_owner", prevOwner,
			"closed_count", p.ClosedCount,
		)

		return &p, nil
	}

	c.metrics.RecordAcquireAttempt(string(t), false)

	return nil, nil //nolint:nilnil // nil partition means none eligible
}

// sortCandidates orders candidates UNASSIGNED first, then by how long ago
// they became eligible, then by key.
func sortCandidates(recs []types.StoreRecord) {
	eligibleSince := func(r types.StoreRecord) time.Time {
		switch r.Status {
		case types.StatusAssigned:
			return r.OwnerExpiry
		case types.StatusClosed:
			return r.ReopenAt
		default:
			return time.Time{}
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		aFresh, bFresh := a.Status == types.StatusUnassigned, b.Status == types.StatusUnassigned
		if aFresh != bFresh {
			return aFresh
		}
		if !aFresh {
			as, bs := eligibleSince(a), eligibleSince(b)
			if !as.Equal(bs) {
				return as.Before(bs)
			}
		}

		return a.Key < b.Key
	})
}

// SaveProgressState persists p's progress and renews the lease to now+extendBy.
//
// On success p carries the new version and expiry.
//
// Returns:
//   - error: ErrLeaseLost if p is not owned by this coordinator or was taken over
func (c *Coordinator) SaveProgressState(ctx context.Context, p *types.Partition, extendBy time.Duration) error {
	if err := c.checkOwned(p); err != nil {
		return err
	}

	now := c.now()
	next := p.Clone()
	next.OwnerExpiry = now.Add(extendBy)
	next.UpdatedAt = now

	version, err := c.update(ctx, next, p.Version)
	if err != nil {
		return c.leaseError("save progress", p, err)
	}

	p.OwnerExpiry = next.OwnerExpiry
	p.UpdatedAt = now
	p.Version = version

	return nil
}

// CompletePartition marks p COMPLETED, persisting its final progress.
func (c *Coordinator) CompletePartition(ctx context.Context, p *types.Partition) error {
	return c.release(ctx, "complete", p, func(next *types.Partition, _ time.Time) {
		next.Status = types.StatusCompleted
		next.ReopenAt = time.Time{}
	})
}

// ClosePartition marks p CLOSED, reopening after reopenDelay.
//
// The closed count is incremented. Once it exceeds maxClosedCount the partition
// is persisted with a zero reopen time, which excludes it from acquisition for
// good, and ErrPartitionExhausted is returned.
func (c *Coordinator) ClosePartition(ctx context.Context, p *types.Partition, reopenDelay time.Duration, maxClosedCount int) error {
	return c.closeAt(ctx, "close", p, maxClosedCount, func(now time.Time) time.Time {
		return now.Add(reopenDelay)
	})
}

// AbandonPartition marks p CLOSED, reopening when its current lease would have
// expired (or at once if it already has).
//
// The closed count and the cap behave as in ClosePartition.
func (c *Coordinator) AbandonPartition(ctx context.Context, p *types.Partition, maxClosedCount int) error {
	var expiry time.Time
	if p != nil {
		expiry = p.OwnerExpiry
	}

	return c.closeAt(ctx, "abandon", p, maxClosedCount, func(now time.Time) time.Time {
		if expiry.Before(now) {
			return now
		}

		return expiry
	})
}

func (c *Coordinator) closeAt(ctx context.Context, op string, p *types.Partition, maxClosedCount int, reopenAt func(now time.Time) time.Time) error {
	exhausted := false
	err := c.release(ctx, op, p, func(next *types.Partition, now time.Time) {
		next.Status = types.StatusClosed
		next.ClosedCount = p.ClosedCount + 1
		if next.ClosedCount > maxClosedCount {
			exhausted = true
			next.ReopenAt = time.Time{}
		} else {
			next.ReopenAt = reopenAt(now)
		}
	})
	if err != nil {
		return err
	}

	if exhausted {
		c.logger.Warn("partition exhausted",
			"partition_type", p.Type,
			"partition_key", p.Key,
			"closed_count", p.ClosedCount,
			"max_closed_count", maxClosedCount,
		)

		return fmt.Errorf("%s/%s closed %d times: %w", p.Type, p.Key, p.ClosedCount, types.ErrPartitionExhausted)
	}

	return nil
}

// GiveUpPartition returns p to UNASSIGNED, persisting its progress.
func (c *Coordinator) GiveUpPartition(ctx context.Context, p *types.Partition) error {
	return c.release(ctx, "give up", p, func(next *types.Partition, _ time.Time) {
		next.Status = types.StatusUnassigned
		next.ReopenAt = time.Time{}
	})
}

// GetPartition loads a partition without claiming it.
func (c *Coordinator) GetPartition(ctx context.Context, t types.PartitionType, key string) (*types.Partition, error) {
	rec, err := c.get(ctx, t, key)
	if err != nil {
		return nil, err
	}

	p, err := c.factory(rec)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// release clears ownership after applying mutate, in one compare-and-swap.
func (c *Coordinator) release(ctx context.Context, op string, p *types.Partition, mutate func(*types.Partition, time.Time)) error {
	if err := c.checkOwned(p); err != nil {
		return err
	}

	now := c.now()
	next := p.Clone()
	mutate(&next, now)
	next.OwnerID = ""
	next.OwnerExpiry = time.Time{}
	next.UpdatedAt = now

	version, err := c.update(ctx, next, p.Version)
	if err != nil {
		return c.leaseError(op, p, err)
	}

	next.Version = version
	*p = next

	c.logger.Debug("partition released",
		"operation", op,
		"partition_type", p.Type,
		"partition_key", p.Key,
		"status", p.Status,
	)

	return nil
}

func (c *Coordinator) checkOwned(p *types.Partition) error {
	if p == nil || p.Status != types.StatusAssigned || p.OwnerID != c.ownerID {
		return types.ErrLeaseLost
	}

	return nil
}

// leaseError maps a failed owner write to ErrLeaseLost where ownership is gone.
func (c *Coordinator) leaseError(op string, p *types.Partition, err error) error {
	if types.IsContention(err) || errors.Is(err, types.ErrPartitionNotFound) {
		c.metrics.RecordLeaseConflict(op)
		c.logger.Info("partition lease lost",
			"operation", op,
			"partition_type", p.Type,
			"partition_key", p.Key,
			"version", p.Version,
		)

		return fmt.Errorf("%s %s/%s: %w", op, p.Type, p.Key, types.ErrLeaseLost)
	}

	return fmt.Errorf("%s %s/%s: %w", op, p.Type, p.Key, err)
}

func (c *Coordinator) update(ctx context.Context, p types.Partition, expectedVersion uint64) (uint64, error) {
	rec, err := partition.ToRecord(p)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	version, err := c.store.ConditionalUpdate(ctx, rec, expectedVersion)
	c.observe("update", start, err)

	return version, err
}

func (c *Coordinator) get(ctx context.Context, t types.PartitionType, key string) (types.StoreRecord, error) {
	start := time.Now()
	rec, err := c.store.Get(ctx, t, key)
	c.observe("get", start, err)

	return rec, err
}

// observe records a store call; contention and absence are expected outcomes.
func (c *Coordinator) observe(op string, start time.Time, err error) {
	ok := err == nil || types.IsContention(err) || errors.Is(err, types.ErrPartitionNotFound)
	c.metrics.RecordStoreOperation(op, time.Since(start).Seconds(), ok)
}
