// Package testing provides test utilities for the crawlsource library.
//
// This package offers helpers for setting up test environments, particularly
// an embedded NATS server for store and buffer integration tests. It follows
// Go's convention of providing testing utilities in a dedicated package
// (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateJetStreamKV: Partition bucket with production settings
//   - CreateJetStreamStream: Stream for buffer tests
//   - NewTestLogger: Logger writing to testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    cstest "github.com/arloliu/crawlsource/testing"
//	)
//
//	func TestMyStore(t *testing.T) {
//	    _, nc := cstest.StartEmbeddedNATS(t)
//	    kv := cstest.CreateJetStreamKV(t, nc, "partitions")
//	}
package testing
