package tenant

import (
	"errors"
	"time"
)

// ErrInvalidInput is returned when an initialization request is malformed.
var ErrInvalidInput = errors.New("tenant: invalid input")

// Tenant is an isolated set of books.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// InitInput requests the default books for a tenant. Year 0 means the current year.
type InitInput struct {
	TenantID string `validate:"required,max=64,excludesall=/"`
	Name     string `validate:"max=200"`
	Year     int    `validate:"omitempty,gte=1970,lte=9999"`
	Actor    string
}

// InitResult lists what an initialization created. Repeating it creates nothing.
type InitResult struct {
	TenantID        string `json:"tenantId"`
	Year            int    `json:"year"`
	TenantCreated   bool   `json:"tenantCreated"`
	AccountsCreated int    `json:"accountsCreated"`
	SequenceCreated bool   `json:"sequenceCreated"`
	PeriodsCreated  int    `json:"periodsCreated"`
}

// Changed reports whether the call created anything.
func (r InitResult) Changed() bool {
	return r.TenantCreated || r.AccountsCreated > 0 || r.SequenceCreated || r.PeriodsCreated > 0
}
