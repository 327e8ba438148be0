package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
)

// EventWatcher waits for an outbox event to settle.
type EventWatcher interface {
	Await(ctx context.Context, tenantID string, id uuid.UUID, timeout time.Duration) (integration.Event, error)
}

// EventOptions defines the flags of the event command.
type EventOptions struct {
	TenantID   string
	EventID    string
	Timeout    time.Duration
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// Exit codes of the event command.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitPending  = 2
	ExitRejected = 10
)

// EventCommand polls an event until it reaches a terminal status or the timeout.
func EventCommand(ctx context.Context, watcher EventWatcher, opts EventOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.TenantID == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "event: --tenant is required")
		return ExitError
	}
	id, err := uuid.Parse(opts.EventID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "event: invalid id %q\n", opts.EventID)
		return ExitError
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	evt, err := watcher.Await(ctx, opts.TenantID, id, opts.Timeout)
	switch {
	case errors.Is(err, integration.ErrAwaitTimeout):
		if evt.ID == uuid.Nil {
			_, _ = fmt.Fprintf(opts.Stderr, "event: %s not visible before timeout\n", id)
			return ExitPending
		}
	case err != nil:
		_, _ = fmt.Fprintf(opts.Stderr, "event: %v\n", err)
		return ExitError
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(evt); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "event: encode json: %v\n", err)
			return ExitError
		}
	} else {
		renderEvent(opts.Stdout, evt)
	}
	return eventExitCode(evt.Status)
}

func eventExitCode(status integration.Status) int {
	switch status {
	case integration.StatusProcessed, integration.StatusDuplicate, integration.StatusSkipped:
		return ExitOK
	case integration.StatusPending, integration.StatusFailed:
		return ExitPending
	default:
		return ExitRejected
	}
}

func renderEvent(out io.Writer, evt integration.Event) {
	_, _ = fmt.Fprintf(out, "%s %s (%s)\n", evt.ID, evt.Type, evt.TenantID)
	_, _ = fmt.Fprintf(out, "  status:   %s after %d attempt(s)\n", evt.Status, evt.Attempts)
	if evt.EntryNumber != "" {
		_, _ = fmt.Fprintf(out, "  entry:    %s\n", evt.EntryNumber)
	}
	if evt.Warning != "" {
		_, _ = fmt.Fprintf(out, "  warning:  %s\n", evt.Warning)
	}
	if evt.LastError != "" {
		_, _ = fmt.Fprintf(out, "  error:    %s\n", evt.LastError)
	}
}
