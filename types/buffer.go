package types

import (
	"context"
	"time"
)

// Record is a single downstream record.
type Record struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Buffer is the downstream sink for fetched records.
type Buffer interface {
	// Write hands rec to the buffer, waiting at most timeout for capacity.
	//
	// Returns:
	//   - error: ErrBufferTimeout if the record was not accepted in time,
	//     ctx.Err() if ctx was cancelled first
	Write(ctx context.Context, rec Record, timeout time.Duration) error
}
