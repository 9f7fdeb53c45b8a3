package testing

import (
	"testing"

	"github.com/arloliu/crawlsource/internal/logger"
	"github.com/arloliu/crawlsource/types"
)

// NewTestLogger creates a logger that writes to the testing.T log.
// This is useful for seeing source, leader and worker output during test runs.
func NewTestLogger(t *testing.T) types.Logger {
	return logger.NewTest(t)
}
