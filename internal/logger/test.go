package logger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/arloliu/crawlsource/types"
)

// TestLogger writes log lines through testing.TB so they are grouped with the
// test that produced them.
//
// Lines look like "WARN  work item failed, closing for retry worker=0 partition_key=item-001".
// Fields added with With come first.
type TestLogger struct {
	tb     testing.TB
	fields []any
}

// Compile-time assertion that TestLogger implements Logger.
var _ types.Logger = (*TestLogger)(nil)

// NewTest returns a logger bound to tb.
//
// The logger must not be used after the test returns; stop every source and
// worker loop before that, or testing panics on the late Logf.
func NewTest(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

// With returns a logger that prefixes every line with keysAndValues.
func (l *TestLogger) With(keysAndValues ...any) *TestLogger {
	fields := make([]any, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)

	return &TestLogger{tb: l.tb, fields: fields}
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues) }
func (l *TestLogger) Info(msg string, keysAndValues ...any)  { l.log("INFO", msg, keysAndValues) }
func (l *TestLogger) Warn(msg string, keysAndValues ...any)  { l.log("WARN", msg, keysAndValues) }
func (l *TestLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues) }

// Fatal logs the message and fails the test immediately.
func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.tb.Helper()
	l.tb.Fatal(l.format("FATAL", msg, keysAndValues))
}

func (l *TestLogger) log(level, msg string, keysAndValues []any) {
	l.tb.Helper()
	l.tb.Log(l.format(level, msg, keysAndValues))
}

func (l *TestLogger) format(level, msg string, keysAndValues []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %s", level, msg)
	writeFields(&b, l.fields)
	writeFields(&b, keysAndValues)

	return b.String()
}

// writeFields appends " key=value" pairs. A trailing key without a value is
// written as key=<missing>.
func writeFields(b *strings.Builder, keysAndValues []any) {
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(b, " %v=<missing>", keysAndValues[i])
		}
	}
}
