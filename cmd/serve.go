package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ciwarden/internal/app"
)

var (
	serveSkipWorkers bool
	serveSkipRestart bool
)

// serveCmd starts ciwarden and keeps it running.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ciwarden until interrupted",
	Long: `Starts ciwarden. On startup it clones every configured repository,
starts one poller per project and reconciles work left over from the
previous run:

  - builds recorded as unfinished are restarted
  - commits of open change requests without a status are built

The pollers then keep looking for new commits. config.yaml is reloaded when
it changes. SIGINT or SIGTERM stops the process after running builds have
had a chance to finish.

Startup can be limited with --skip-workers and --skip-restart, the
startup section of config.yaml, or the CIWARDEN_SKIP_WORKERS and
CIWARDEN_SKIP_RESTART environment variables.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := newAppConfig()
	if err != nil {
		return err
	}
	cfg.SkipWorkers = serveSkipWorkers
	cfg.SkipRestart = serveSkipRestart

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveSkipWorkers, "skip-workers", false, "Do not start project pollers")
	serveCmd.Flags().BoolVar(&serveSkipRestart, "skip-restart", false, "Do not reconcile pending work on startup")
}
