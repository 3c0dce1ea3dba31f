// Package cli implements the lbbench command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/lbbench/internal/config"
	"github.com/wesleyorama2/lbbench/internal/logging"
	"github.com/wesleyorama2/lbbench/internal/metrics"
	"github.com/wesleyorama2/lbbench/internal/report"
	"github.com/wesleyorama2/lbbench/internal/runner"
)

var version = "0.1.0"

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUnreachable = 2
	ExitAborted     = 130
)

// exitError carries a specific exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// errAllUnreachable is returned by a dry run in which no target answered.
var errAllUnreachable = errors.New("no target is reachable")

// options holds the flag values of the root command.
type options struct {
	configPath       string
	dryRun           bool
	probeTimeout     time.Duration
	targets          []string
	stages           string
	timeout          time.Duration
	jsonPath         string
	metricsPath      string
	progressInterval time.Duration
	logLevel         string
	logFormat        string
	noColor          bool
}

// NewRootCmd builds the lbbench command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:     "lbbench",
		Short:   "Benchmark load balancers fronting a replicated backend",
		Version: version,
		Long: `lbbench drives concurrent HTTP load through a ramp of stages against
several named targets (for example Nginx, HAProxy and Traefik fronting the
same backend), one target at a time, and prints a side-by-side comparison of
throughput, error rate and latency percentiles.

Examples:
  lbbench --config benchmark/config.toml
  lbbench --dry-run
  lbbench --target nginx --target traefik --stages "30s:10,30s:50,30s:100"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath, "Path to the benchmark plan (TOML, YAML or JSON)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Validate the plan and send one request per target without running the ramp")
	flags.DurationVar(&opts.probeTimeout, "probe-timeout", runner.DefaultProbeTimeout, "Request timeout used by --dry-run")
	flags.StringArrayVarP(&opts.targets, "target", "t", nil, "Benchmark only the named target (repeatable)")
	flags.StringVarP(&opts.stages, "stages", "s", "", `Replace the ramp, e.g. "30s:10,30s:50"`)
	flags.DurationVar(&opts.timeout, "timeout", 0, "Override the per-target request timeout")
	flags.StringVar(&opts.jsonPath, "json", "", "Write a JSON report to this path")
	flags.StringVar(&opts.metricsPath, "metrics-out", "", "Write Prometheus metrics in textfile format to this path")
	flags.DurationVar(&opts.progressInterval, "progress-interval", 5*time.Second, "Interval between progress log lines (0 disables)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lbbench version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lbbench version %s\n", version)
		},
	}
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	logger, err := logging.New(logging.Options{
		Level:  opts.logLevel,
		Format: opts.logFormat,
		Writer: stderr,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	plan, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	overrides := config.Overrides{
		Targets: opts.targets,
		Stages:  opts.stages,
		Timeout: opts.timeout,
	}
	if !overrides.IsZero() {
		plan, err = config.ApplyOverrides(plan, overrides)
		if err != nil {
			return err
		}
	}

	console := report.NewConsole(report.ConsoleConfig{
		Writer:  stdout,
		NoColor: opts.noColor,
	})

	if opts.dryRun {
		console.PrintPlan(plan, "")
		results := runner.Probe(ctx, plan, opts.probeTimeout, nil)
		console.PrintDryRun(results)
		if runner.CountReachable(results) == 0 {
			return &exitError{code: ExitUnreachable, err: errAllUnreachable}
		}
		return nil
	}

	runID := runner.NewRunID()

	var exporter *metrics.Exporter
	if opts.metricsPath != "" {
		exporter = metrics.NewExporter(runID)
	}

	r := runner.New(plan, runner.Options{
		RunID:            runID,
		Logger:           logger,
		ProgressInterval: opts.progressInterval,
		Exporter:         exporter,
	})

	console.PrintPlan(plan, r.RunID())

	result, runErr := r.Run(ctx)
	if runErr != nil && !errors.Is(runErr, runner.ErrAborted) {
		return runErr
	}

	console.PrintSummaries(result)

	if opts.jsonPath != "" {
		if err := report.WriteJSONFile(opts.jsonPath, result); err != nil {
			return err
		}
		logger.Info("JSON report written", zap.String("path", opts.jsonPath))
	}

	if exporter != nil {
		if err := exporter.WriteTextfile(opts.metricsPath); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		logger.Info("metrics written", zap.String("path", opts.metricsPath))
	}

	if runErr != nil {
		return &exitError{code: ExitAborted, err: runErr}
	}
	return nil
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	if errors.Is(err, runner.ErrAborted) {
		return ExitAborted
	}
	return ExitFailure
}

// Run executes the command with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// Execute runs lbbench with the process arguments. SIGINT and SIGTERM abort
// the benchmark; partial results are still reported.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
