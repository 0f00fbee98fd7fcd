package main

import (
	"os"
	"os/signal"
	"syscall"

	"awaitlint/internal/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Rescan declaration files on change (dry-run only)",
	Long: `Watches the given root and re-runs the dry-run pipeline whenever a
matching declaration file changes. Watch mode never rewrites files.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildOptions(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := watch.New(opts, os.Stdout, logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()

		cmd.Printf("watching %s for changes to %s files (ctrl-c to stop)\n",
			args[0], opts.Config.Pattern)
		<-ctx.Done()
		return nil
	},
}
