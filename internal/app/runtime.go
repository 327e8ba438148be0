package app

import (
	"os"
	"sync/atomic"
)

// TestModeEnv is set to "1" by internal/testing/guard. Binaries return before
// dialing Postgres or Redis when it is on.
const TestModeEnv = "LEDGER_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports the cached test-mode flag, reading the environment on first use.
func InTestMode() bool {
	if on := testMode.Load(); on != nil {
		return *on
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the environment and returns the new flag.
func RefreshTestMode() bool {
	on := os.Getenv(TestModeEnv) == "1"
	testMode.Store(&on)
	return on
}
