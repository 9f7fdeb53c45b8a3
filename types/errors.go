package types

import "errors"

// Sentinel errors for the crawlsource library.
//
// These errors provide type-safe error checking using errors.Is().
// Components wrap them with context using fmt.Errorf("...: %w", err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Store, Coordinator, Source, etc.)

// Store errors - Returned by PartitionStore implementations.
var (
	// ErrPartitionExists is returned by InsertIfAbsent when the key is already present.
	ErrPartitionExists = errors.New("partition already exists")

	// ErrVersionConflict is returned by ConditionalUpdate when the stored version differs.
	ErrVersionConflict = errors.New("partition version conflict")

	// ErrPartitionNotFound is returned when a partition does not exist in the store.
	ErrPartitionNotFound = errors.New("partition not found")
)

// Coordinator errors - Returned by the partition coordinator.
var (
	// ErrLeaseLost is returned when the caller no longer holds the partition lease.
	// The caller must stop working on the partition.
	ErrLeaseLost = errors.New("partition lease lost")

	// ErrPartitionExhausted is returned by ClosePartition when the closed-count cap
	// was exceeded. The partition is persisted as permanently failed.
	ErrPartitionExhausted = errors.New("partition exceeded maximum closed count")

	// ErrUnknownPartitionType is returned by the partition factory for an
	// unrecognized discriminator. It is a fatal configuration error.
	ErrUnknownPartitionType = errors.New("unknown partition type")

	// ErrInvalidProgressState is returned when a progress payload cannot be decoded.
	ErrInvalidProgressState = errors.New("invalid partition progress state")

	// ErrStoreRequired is returned when a coordinator is built without a store.
	ErrStoreRequired = errors.New("partition store is required")
)

// Crawler and buffer errors.
var (
	// ErrBufferTimeout is returned by Buffer.Write when the record could not be
	// accepted before the timeout.
	ErrBufferTimeout = errors.New("buffer write timed out")

	// ErrUnrecoverable marks a crawler failure that must not be retried through
	// the reopen schedule. Crawlers wrap it: fmt.Errorf("...: %w", ErrUnrecoverable).
	ErrUnrecoverable = errors.New("unrecoverable crawler error")
)

// Source errors - Public API errors returned by the Source.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCoordinatorRequired is returned by Start when no coordinator was set.
	ErrCoordinatorRequired = errors.New("partition coordinator is required")

	// ErrBufferRequired is returned by Start when the buffer is nil.
	ErrBufferRequired = errors.New("buffer is required")

	// ErrCrawlerRequired is returned by New when the crawler is nil.
	ErrCrawlerRequired = errors.New("crawler is required")

	// ErrAlreadyStarted is returned when Start is called on a running source.
	ErrAlreadyStarted = errors.New("source already started")

	// ErrNotStarted is returned when Stop is called on a source that is not running.
	ErrNotStarted = errors.New("source not started")
)

// IsContention reports whether err is an expected optimistic concurrency outcome.
//
// Contention is never an error condition for callers: a lost insert means the
// partition already exists, a lost update means another actor got there first.
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true for ErrPartitionExists or ErrVersionConflict
func IsContention(err error) bool {
	return errors.Is(err, ErrPartitionExists) || errors.Is(err, ErrVersionConflict)
}
