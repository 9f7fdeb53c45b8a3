package crawlsource

import "github.com/arloliu/crawlsource/types"

// Sentinel errors re-exported from the types package.
//
// Check them with errors.Is; every component wraps them with context.
var (
	ErrInvalidConfig       = types.ErrInvalidConfig
	ErrCoordinatorRequired = types.ErrCoordinatorRequired
	ErrBufferRequired      = types.ErrBufferRequired
	ErrCrawlerRequired     = types.ErrCrawlerRequired
	ErrAlreadyStarted      = types.ErrAlreadyStarted
	ErrNotStarted          = types.ErrNotStarted

	ErrPartitionExists      = types.ErrPartitionExists
	ErrVersionConflict      = types.ErrVersionConflict
	ErrPartitionNotFound    = types.ErrPartitionNotFound
	ErrStoreRequired        = types.ErrStoreRequired
	ErrLeaseLost            = types.ErrLeaseLost
	ErrPartitionExhausted   = types.ErrPartitionExhausted
	ErrUnknownPartitionType = types.ErrUnknownPartitionType
	ErrInvalidProgressState = types.ErrInvalidProgressState

	ErrBufferTimeout = types.ErrBufferTimeout
	ErrUnrecoverable = types.ErrUnrecoverable
)
