package shared

import "errors"

// ErrTenantRequired is returned by every tenant-scoped operation called without a tenant id.
var ErrTenantRequired = errors.New("tenant id required")
