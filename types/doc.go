// Package types provides core type definitions and interfaces for the crawlsource library.
//
// This package contains shared types that are used across multiple packages in the
// crawlsource library. By keeping these types in a separate package, we avoid import
// cycles between the root package, the coordinator, the stores and the schedulers.
//
// Key types:
//   - Partition: Typed unit of ownable work (LEADER or WORK_ITEM)
//   - StoreRecord: Generic persisted form of a partition
//   - PartitionStore: Conditional-write persistence contract
//   - Coordinator: Lease-based partition ownership
//   - Crawler: Per-source discovery and fetch plugin
//   - Buffer: Downstream record sink
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
