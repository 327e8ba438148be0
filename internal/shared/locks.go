package shared

import "fmt"

// PeriodLockKey builds the redis key guarding close/reopen of one tenant period.
func PeriodLockKey(tenantID string, periodID int64) string {
	return fmt.Sprintf("ledger:%s:period:%d:lock", tenantID, periodID)
}

// JobLockKey builds the redis key that keeps a scheduled job single-instance.
func JobLockKey(job string) string {
	return fmt.Sprintf("ledger:job:%s:lock", job)
}
