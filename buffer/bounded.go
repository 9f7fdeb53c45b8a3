package buffer

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/crawlsource/types"
)

// ErrInvalidCapacity is returned for a non-positive buffer capacity.
var ErrInvalidCapacity = errors.New("buffer capacity must be positive")

// Bounded is a fixed-capacity in-memory buffer.
//
// Writers block while the buffer is full, for at most the write timeout.
type Bounded struct {
	ch chan types.Record
}

var _ types.Buffer = (*Bounded)(nil)

// NewBounded creates a buffer holding up to capacity records.
//
// Parameters:
//   - capacity: Maximum number of unread records
//
// Returns:
//   - *Bounded: Empty buffer
//   - error: ErrInvalidCapacity if capacity <= 0
func NewBounded(capacity int) (*Bounded, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	return &Bounded{ch: make(chan types.Record, capacity)}, nil
}

// Write enqueues rec, waiting up to timeout for free capacity.
//
// A non-positive timeout only succeeds if capacity is free right away.
func (b *Bounded) Write(ctx context.Context, rec types.Record, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case b.ch <- rec:
		return nil
	default:
	}

	if timeout <= 0 {
		return types.ErrBufferTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return types.ErrBufferTimeout
	}
}

// Read dequeues the oldest record, blocking until one is available.
//
// Buffered records are returned even after ctx is done.
func (b *Bounded) Read(ctx context.Context) (types.Record, error) {
	select {
	case rec := <-b.ch:
		return rec, nil
	default:
	}

	select {
	case rec := <-b.ch:
		return rec, nil
	case <-ctx.Done():
		return types.Record{}, ctx.Err()
	}
}

// Drain dequeues every record currently buffered without blocking.
func (b *Bounded) Drain() []types.Record {
	var out []types.Record
	for {
		select {
		case rec := <-b.ch:
			out = append(out, rec)
		default:
			return out
		}
	}
}

// Len returns the number of unread records.
func (b *Bounded) Len() int {
	return len(b.ch)
}

// Cap returns the buffer capacity.
func (b *Bounded) Cap() int {
	return cap(b.ch)
}
