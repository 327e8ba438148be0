package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odyssey-erp/wms-ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/wms-ledger/internal/app"
	"github.com/odyssey-erp/wms-ledger/internal/integration"
	"github.com/odyssey-erp/wms-ledger/internal/platform/db"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
	"github.com/odyssey-erp/wms-ledger/internal/tenant"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  trigger <job>     enqueue a scheduled job now (ledger:reconcile, integration:health_check,
                    integration:outbox_sweep, integration:performance_report, ledger:gl_integrity)
  queue             show queue backlog
  archived          list dead integration deliveries
  event             wait for an integration event and print its outcome
  init-tenant       create a tenant with its chart of accounts and periods
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 1
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "trigger":
		return triggerCommand(ctx, cfg, rest, stdout, stderr)
	case "queue", "archived":
		return queueCommand(cfg, cmd, rest, stdout, stderr)
	case "event":
		return eventCommand(ctx, cfg, rest, stdout, stderr)
	case "init-tenant":
		return initTenantCommand(ctx, cfg, rest, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 1
	}
}

func triggerCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	date := fs.String("date", "", "reconciliation day (YYYY-MM-DD), default yesterday")
	days := fs.Int("days", 7, "performance report window in days")
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "trigger: job name required")
		return 1
	}
	job := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "trigger: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()
	info, err := jobsCLI.Trigger(ctx, job, cli.TriggerOptions{Date: *date, Days: *days})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "trigger: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return 0
}

func queueCommand(cfg *app.Config, cmd string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print JSON")
	size := fs.Int("n", 10, "archived tasks to list")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	if cmd == "archived" {
		tasks, err := jobsCLI.ListArchived(*size)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "archived: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(stdout, "%s\t%s\tretried=%d\t%s\n", t.ID, t.Type, t.Retried, t.LastErr)
		}
		return 0
	}
	stats, err := jobsCLI.InspectQueues()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
		return 1
	}
	if err := cli.RenderQueues(stdout, stats, *asJSON); err != nil {
		_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
		return 1
	}
	return 0
}

func eventCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("event", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.EventOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.TenantID, "tenant", "", "tenant id")
	fs.StringVar(&opts.EventID, "id", "", "event id")
	fs.DurationVar(&opts.Timeout, "timeout", cfg.IntegrationAwaitTimeout, "how long to wait for a terminal status")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "event: %v\n", err)
		return cli.ExitError
	}
	defer pool.Close()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := integration.NewDispatcher(integration.NewRepository(pool), nil, nil, nil, integration.DispatcherConfig{
		PollInterval: 250 * time.Millisecond,
	}, quiet)
	return cli.EventCommand(ctx, dispatcher, opts)
}

func initTenantCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init-tenant", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := tenant.InitInput{Actor: "ledgerctl"}
	fs.StringVar(&in.TenantID, "tenant", "", "tenant id")
	fs.StringVar(&in.Name, "name", "", "display name, default the tenant id")
	fs.IntVar(&in.Year, "year", 0, "fiscal year of the monthly periods, default the current year")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "init-tenant: %v\n", err)
		return 1
	}
	defer pool.Close()
	logger := app.NewLogger(cfg, "ledgerctl")
	svc := tenant.NewService(tenant.NewRepository(pool), shared.NewAuditLogger(pool), logger)
	res, err := svc.Initialize(ctx, in)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "init-tenant: %v\n", err)
		return 1
	}
	_ = json.NewEncoder(stdout).Encode(res)
	return 0
}
