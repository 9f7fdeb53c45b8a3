// Package logger provides the default no-op logger and a testing.TB logger.
package logger

import "github.com/arloliu/crawlsource/types"

// NopLogger discards everything. Sources and coordinators use it when no
// logger option is given.
type NopLogger struct{}

// Compile-time assertion that NopLogger implements Logger.
var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that discards all messages.
//
// Example:
//
//	coord, err := coordinator.New(store, nil, coordinator.WithLogger(logger.NewNop()))
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Fatal discards the message and does not exit.
func (*NopLogger) Fatal(string, ...any) {}
