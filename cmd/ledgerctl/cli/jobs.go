package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/wms-ledger/internal/platform/cache"
	"github.com/odyssey-erp/wms-ledger/jobs"
)

// JobsCLI wraps manual management helpers for the ledger queues.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address
// (host:port or redis:// URL).
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts, err := cache.AsynqOpt(redisAddr)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{
		client:    jobs.NewClient(opts, jobs.ClientConfig{}),
		inspector: asynq.NewInspector(opts),
	}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// TriggerOptions tunes an on-demand run.
type TriggerOptions struct {
	// Date is the reconciliation day, YYYY-MM-DD. Empty means yesterday.
	Date string
	// Days is the performance report window.
	Days int
}

// BuildTask maps a job name to its task.
func BuildTask(name string, opts TriggerOptions) (*asynq.Task, error) {
	switch name {
	case jobs.TaskReconcile:
		var day time.Time
		if opts.Date != "" {
			parsed, err := time.Parse(time.DateOnly, opts.Date)
			if err != nil {
				return nil, fmt.Errorf("jobs cli: invalid date %q (expected YYYY-MM-DD)", opts.Date)
			}
			day = parsed
		}
		return jobs.NewReconcileTask(day)
	case jobs.TaskHealthCheck:
		return jobs.NewHealthCheckTask(), nil
	case jobs.TaskOutboxSweep:
		return jobs.NewOutboxSweepTask(0, 0)
	case jobs.TaskPerformanceReport:
		return jobs.NewPerformanceReportTask(opts.Days)
	case jobs.TaskGLIntegrity:
		return jobs.NewGLIntegrityTask(), nil
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, opts)
	if err != nil {
		return nil, err
	}
	return c.client.Enqueue(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueues reports the metrics of the integration and default queues.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, name := range []string{jobs.QueueIntegration, jobs.QueueDefault} {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// RenderQueues prints stats as JSON or an aligned table.
func RenderQueues(w io.Writer, stats []QueueStats, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(stats)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	for _, s := range stats {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	return tw.Flush()
}

// ListArchived returns dead integration deliveries for inspection.
func (c *JobsCLI) ListArchived(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListArchivedTasks(jobs.QueueIntegration, asynq.PageSize(size), asynq.Page(1))
}
