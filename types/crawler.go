package types

import (
	"context"
	"encoding/json"
)

// WorkItem is a discovered unit of work.
type WorkItem struct {
	// Key identifies the item within the WORK_ITEM partition type.
	Key string

	// InitialState is the fetch state a work item starts from. Workers hand
	// the partition's persisted fetch state here when resuming.
	InitialState json.RawMessage
}

// DiscoveryResult is the outcome of one discovery pass.
type DiscoveryResult struct {
	// Items are the work items found in this pass. Items that already exist
	// as partitions are skipped by the leader.
	Items []WorkItem

	// State is the discovery cursor to persist for the next pass.
	State json.RawMessage
}

// FetchResult is one page of records for a work item.
type FetchResult struct {
	// Records are written to the buffer in order.
	Records []Record

	// State is the fetch cursor to persist after the page is written.
	State json.RawMessage

	// Complete reports that the work item has no more pages.
	Complete bool
}

// Crawler is the per-source plugin driven by the leader and the workers.
//
// Implementations must be safe for concurrent use: Discover runs on the
// leader while Fetch runs on every worker.
//
// Errors wrapping ErrUnrecoverable abandon the attempt. Any other Fetch error is
// treated as recoverable and the partition is closed with a reopen delay.
type Crawler interface {
	// Discover enumerates work items starting from lastState.
	//
	// Parameters:
	//   - ctx: Cancelled when leadership ends or the source stops
	//   - lastState: Discovery state persisted by the previous successful pass (nil on first run)
	//
	// Returns:
	//   - DiscoveryResult: New items and the next discovery state
	//   - error: Discovery failure, retried on the next cycle from the same state
	Discover(ctx context.Context, lastState json.RawMessage) (DiscoveryResult, error)

	// Fetch retrieves the next page for item.
	//
	// Parameters:
	//   - ctx: Cancelled when the source stops
	//   - item: Work item being processed
	//   - state: Fetch state persisted after the previous page (InitialState on the first call)
	//
	// Returns:
	//   - FetchResult: Records, next state and completion flag
	//   - error: Fetch failure
	Fetch(ctx context.Context, item WorkItem, state json.RawMessage) (FetchResult, error)
}
