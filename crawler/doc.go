// Package crawler provides Crawler implementations that need no upstream system.
//
// Static serves a fixed, updatable set of work items with pre-built pages. It
// backs tests, examples and the demo CLI.
package crawler
