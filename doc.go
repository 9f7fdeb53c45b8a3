// Package crawlsource ingests paginated, crawlable sources into a downstream
// buffer under lease-based partition coordination.
//
// Any number of Source instances can share one partition store. Among them,
// exactly one performs discovery at a time, each discovered work item is
// processed by exactly one worker at a time, ownership survives crashes
// through lease expiry and progress is resumed from the last saved state.
//
// # Quick Start
//
//	import (
//	    "github.com/arloliu/crawlsource"
//	    "github.com/arloliu/crawlsource/buffer"
//	    "github.com/arloliu/crawlsource/coordinator"
//	    "github.com/arloliu/crawlsource/store/natskv"
//	)
//
//	cfg := crawlsource.DefaultConfig()
//	cfg.WorkerCount = 4
//
//	src, err := crawlsource.New(&cfg, myCrawler)
//	if err != nil { /* handle */ }
//
//	store, err := natskv.New(ctx, js, natskv.Config{})
//	if err != nil { /* handle */ }
//
//	coord, err := coordinator.New(store, src.PartitionFactory(),
//	    coordinator.WithLeaseDuration(cfg.LeaseDuration))
//	if err != nil { /* handle */ }
//
//	if err := src.SetCoordinator(ctx, coord); err != nil { /* handle */ }
//
//	buf, err := buffer.NewBounded(1024)
//	if err != nil { /* handle */ }
//	if err := src.Start(ctx, buf); err != nil { /* handle */ }
//	defer src.Stop(context.Background())
//
// # Architecture
//
// Partitions come in two types. The LEADER partition (key GLOBAL) elects the
// discovering instance: whoever holds its lease runs Crawler.Discover and
// creates one WORK_ITEM partition per discovered item. Workers acquire work
// items, call Crawler.Fetch page by page, write each record to the Buffer and
// save the fetch state after every page.
//
//	UNASSIGNED ──acquire──► ASSIGNED ──complete──► COMPLETED
//	    ▲                     │  │
//	    └─give up / expiry────┘  └──close──► CLOSED ──reopen──► ASSIGNED
//
// A CLOSED work item reopens after ReopenDelay until it has been closed more
// than MaxClosedCount times, after which it is never acquired again.
//
// # Stores
//
// The store only needs per-key insert-if-absent and compare-and-swap writes:
//
//   - store/natskv: NATS JetStream KV bucket
//   - store/sqlite: SQLite table (modernc.org/sqlite)
//   - store/memory: in-process map for tests and single-process use
//
// # Observability
//
// Use WithLogger for structured logs, WithMetrics (see NewPrometheusMetrics)
// for Prometheus metrics and WithHooks for lifecycle callbacks.
package crawlsource
