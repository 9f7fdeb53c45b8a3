package crawlsource

import "github.com/arloliu/crawlsource/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package, which
// keeps the import graph acyclic while users can write crawlsource.Partition,
// crawlsource.Crawler and so on.
type (
	PartitionType    = types.PartitionType
	PartitionStatus  = types.PartitionStatus
	Partition        = types.Partition
	LeaderProgress   = types.LeaderProgress
	WorkItemProgress = types.WorkItemProgress
	StoreRecord      = types.StoreRecord
	PartitionFactory = types.PartitionFactory
	WorkItem         = types.WorkItem
	DiscoveryResult  = types.DiscoveryResult
	FetchResult      = types.FetchResult
	Record           = types.Record
	WorkerState      = types.WorkerState
)

// Re-export interfaces from the types package for convenience.
type (
	PartitionStore   = types.PartitionStore
	Coordinator      = types.Coordinator
	Crawler          = types.Crawler
	Buffer           = types.Buffer
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export constants from the types package.
const (
	PartitionTypeLeader   = types.PartitionTypeLeader
	PartitionTypeWorkItem = types.PartitionTypeWorkItem
	LeaderPartitionKey    = types.LeaderPartitionKey

	StatusUnassigned = types.StatusUnassigned
	StatusAssigned   = types.StatusAssigned
	StatusCompleted  = types.StatusCompleted
	StatusClosed     = types.StatusClosed

	WorkerIdle       = types.WorkerIdle
	WorkerAcquiring  = types.WorkerAcquiring
	WorkerProcessing = types.WorkerProcessing
	WorkerCompleting = types.WorkerCompleting
	WorkerClosing    = types.WorkerClosing
	WorkerAbandoning = types.WorkerAbandoning
	WorkerStopped    = types.WorkerStopped
)
