// Package buffer provides downstream buffers that workers write records to.
//
// Bounded is an in-process channel buffer. JetStream publishes each record to
// a stream, so records survive the process and can be consumed elsewhere.
package buffer
