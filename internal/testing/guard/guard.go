// Package guard marks the process as a test run when imported, so binaries
// skip connecting to Postgres and Redis.
package guard

import "os"

func init() {
	if os.Getenv("LEDGER_TEST_MODE") == "" {
		_ = os.Setenv("LEDGER_TEST_MODE", "1")
	}
}
