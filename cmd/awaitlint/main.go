// awaitlint detects and rewrites async-contract anti-patterns in protocol
// declaration files: async methods returning bare types, I/O-named sync
// methods, and unguarded forward references.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"awaitlint/internal/config"
	"awaitlint/internal/plan"
	"awaitlint/internal/report"
	"awaitlint/internal/runner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	pattern    string
	workers    int

	// Scan flags
	dryRun      bool
	fixAsync    bool
	fixSyncIo   bool
	jsonOut     bool
	exemptGlobs []string

	// Logger
	logger *zap.Logger

	// exitCode carries the run outcome out of RunE to main.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "awaitlint [path]",
	Short: "Detect and rewrite async-contract violations in protocol declaration files",
	Long: `awaitlint scans interface-contract declaration files (Protocol/ABC
classes) for structural anti-patterns in method signatures:

  AsyncNonWrappedReturn      async method returning a bare type
  SyncIoNameShouldBeAsync    I/O-named method declared synchronous
  UnguardedForwardReference  forward type reference outside a guard (detection only)

Without a fix flag the run is a dry-run preview. With --fix-async-returns
and/or --fix-sync-io the offending tokens are rewritten in place, leaving
all surrounding code, comments, and formatting untouched.

Exit status is 0 when no violations remain and 1 otherwise; analysis errors
are reported and counted separately.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := runner.New(opts).Run(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		if err := rep.WriteJSON(os.Stdout); err != nil {
			return err
		}
	} else if err := rep.WriteHuman(os.Stdout); err != nil {
		return err
	}

	exitCode = rep.ExitCode()
	return nil
}

// buildOptions merges config file, defaults, and flags into runner options.
func buildOptions(root string) (runner.Options, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return runner.Options{}, err
	}
	if pattern != "" {
		cfg.Pattern = pattern
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	cfg.FixExempt = append(cfg.FixExempt, exemptGlobs...)

	mode := report.DryRun
	if (fixAsync || fixSyncIo) && !dryRun {
		mode = report.Apply
	}

	return runner.Options{
		Root:      root,
		Config:    cfg,
		Requested: plan.RuleSet{AsyncReturns: fixAsync, SyncIo: fixSyncIo},
		Mode:      mode,
		Log:       logger,
	}, nil
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".awaitlint.yml", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&pattern, "pattern", "", "Filename glob selecting declaration files (default protocol_*)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Parallel file workers (default: CPU count)")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview violations without touching disk (default when no fix flag is set)")
	rootCmd.Flags().BoolVar(&fixAsync, "fix-async-returns", false, "Rewrite async methods to return the deferred wrapper")
	rootCmd.Flags().BoolVar(&fixSyncIo, "fix-sync-io", false, "Mark I/O-named sync methods async and wrap their returns")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the run report as JSON")
	rootCmd.Flags().StringSliceVar(&exemptGlobs, "exempt", nil, "Additional path globs excluded from fixing")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "awaitlint: %v\n", err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}
