package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePeriodTransition(t *testing.T) {
	require.NoError(t, ValidatePeriodTransition(PeriodStatusOpen, PeriodStatusClosed))
	require.NoError(t, ValidatePeriodTransition(PeriodStatusClosed, PeriodStatusOpen))
	require.ErrorIs(t, ValidatePeriodTransition(PeriodStatusClosed, PeriodStatusClosed), ErrInvalidPeriodTransition)
	require.ErrorIs(t, ValidatePeriodTransition(PeriodStatusOpen, PeriodStatusOpen), ErrInvalidPeriodTransition)
}

func TestTenantAndActorContext(t *testing.T) {
	ctx := ContextWithTenant(context.Background(), "T1")
	require.Equal(t, "T1", TenantFromContext(ctx))
	require.Equal(t, "system", ActorFromContext(ctx))
	require.Equal(t, "ana", ActorFromContext(ContextWithActor(ctx, "ana")))
}

func TestLockKeys(t *testing.T) {
	require.Equal(t, "ledger:T1:period:7:lock", PeriodLockKey("T1", 7))
	require.Equal(t, "ledger:job:reconcile:lock", JobLockKey("reconcile"))
}

func TestAuditLogValidate(t *testing.T) {
	require.Error(t, AuditLog{Action: "x", Entity: "y", EntityID: "1"}.validate())
	require.NoError(t, AuditLog{TenantID: "T1", Action: "x", Entity: "y", EntityID: "1"}.validate())
}
