package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// RespondError is the fallback mapping used after a module has handled its own
// sentinels. Anything unrecognised is a 500 with no detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrTenantRequired):
		Problem(w, http.StatusBadRequest, "Tenant Required", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "request deadline exceeded")
	case errors.Is(err, context.Canceled):
		Problem(w, 499, "Client Closed Request", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
