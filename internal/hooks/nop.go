// Package hooks provides the default no-op lifecycle hooks.
package hooks

import (
	"context"

	"github.com/arloliu/crawlsource/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, bool) error                   = (*NopHooks)(nil).OnLeadershipChanged
	_ func(context.Context, types.Partition) error        = (*NopHooks)(nil).OnPartitionCompleted
	_ func(context.Context, types.Partition, error) error = (*NopHooks)(nil).OnPartitionFailed
	_ func(context.Context, error) error                  = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnLeadershipChanged:  h.OnLeadershipChanged,
		OnPartitionCompleted: h.OnPartitionCompleted,
		OnPartitionFailed:    h.OnPartitionFailed,
		OnError:              h.OnError,
	}
}

// Fill returns h with every nil callback replaced by its no-op version.
func Fill(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnLeadershipChanged != nil {
		out.OnLeadershipChanged = h.OnLeadershipChanged
	}
	if h.OnPartitionCompleted != nil {
		out.OnPartitionCompleted = h.OnPartitionCompleted
	}
	if h.OnPartitionFailed != nil {
		out.OnPartitionFailed = h.OnPartitionFailed
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}

// OnLeadershipChanged is a no-op implementation.
func (h *NopHooks) OnLeadershipChanged(ctx context.Context, isLeader bool) error {
	return nil
}

// OnPartitionCompleted is a no-op implementation.
func (h *NopHooks) OnPartitionCompleted(ctx context.Context, p types.Partition) error {
	return nil
}

// OnPartitionFailed is a no-op implementation.
func (h *NopHooks) OnPartitionFailed(ctx context.Context, p types.Partition, err error) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}
