// Package cli implements calcctl, a command-line front-end for the
// remote calculator service.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"calculator-console/internal/calcclient"
	"calculator-console/internal/calculator"
	"calculator-console/internal/config"
	"calculator-console/internal/observability"
)

// errReported marks a failure whose message was already printed.
var errReported = errors.New("error already reported")

type app struct {
	cfgFile   string
	server    string
	colorMode string
	verbose   bool
	jsonOut   bool

	cfg      *config.Config
	printer  *Printer
	client   *calcclient.Client
	loc      *time.Location
	shutdown func(context.Context) error
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "calcctl",
		Short: "Command-line front-end for the calculator service",
		Long: `calcctl sends calculations to the remote calculator service and
shows the history it keeps.

Example usage:
  calcctl sum 2,4,5                     # 2 + 4 + 5
  calcctl div 10 4                      # 10 / 4
  calcctl history --operation mult      # multiplications only
  calcctl history --sort-by result --sort-order asc
  calcctl batch sum:1,2 div:9,3         # several operations, no history`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./calculator.yaml)")
	flags.StringVar(&a.server, "server", "", "calculator service base URL (overrides remote.base_url)")
	flags.StringVar(&a.colorMode, "color", "auto", "colorize output: auto, always, or never")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log requests to stderr")
	flags.BoolVar(&a.jsonOut, "json", false, "output as JSON")

	for _, op := range calculator.Operations {
		root.AddCommand(a.calculateCmd(op))
	}
	root.AddCommand(a.historyCmd(), a.batchCmd())

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load(a.cfgFile, map[string]any{"remote.base_url": a.server})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	mode, err := ParseColorMode(a.colorMode)
	if err != nil {
		return err
	}
	a.printer = NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), ResolveColors(mode, cfg.Output.Colors))

	// Request logs would interleave with command output, so only errors
	// are logged unless asked for.
	level := "error"
	if a.verbose {
		level = "debug"
	}
	if err := observability.InitLogger(level); err != nil {
		return err
	}

	a.shutdown, err = observability.SetupTelemetry(cmd.Context(), observability.TelemetryOptions{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		ExportLogs:  cfg.Telemetry.ExportLogs,
	})
	if err != nil {
		return err
	}
	if err := calculator.InitMetrics(); err != nil {
		return err
	}
	if err := calcclient.InitMetrics(); err != nil {
		return err
	}

	if a.loc, err = cfg.Location(); err != nil {
		return err
	}
	a.client = calcclient.New(cfg.Remote.BaseURL, cfg.Remote.Timeout)

	cmd.SetContext(observability.ContextWithRequestID(cmd.Context(), observability.NewRequestID()))
	return nil
}

func (a *app) close(ctx context.Context) error {
	observability.SyncLogger()
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(ctx)
}

// Execute runs calcctl with the process arguments and returns its exit
// code.
func Execute(ctx context.Context) int {
	a := &app{}
	root := a.rootCmd()
	return run(ctx, a, root, os.Stderr)
}

func run(ctx context.Context, a *app, root *cobra.Command, stderr io.Writer) int {
	err := root.ExecuteContext(ctx)
	if cerr := a.close(ctx); cerr != nil && err == nil {
		err = fmt.Errorf("shutting down telemetry: %w", cerr)
	}
	if err == nil {
		return 0
	}
	if errors.Is(err, errReported) {
		return 1
	}

	if a.printer != nil {
		a.printer.Error("%s", err)
	} else {
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	return 1
}
