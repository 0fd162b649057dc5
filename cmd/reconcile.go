package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"ciwarden/internal/app"
	"ciwarden/internal/formatting"
	"ciwarden/internal/tasks"
)

var (
	reconcileOutput  string
	reconcileTimeout time.Duration
	reconcileQuiet   bool
)

// BuildsFailedError reports that a reconcile run had failing builds.
type BuildsFailedError struct {
	Failed int
	Total  int
}

func (e *BuildsFailedError) Error() string {
	return fmt.Sprintf("%d of %d builds failed", e.Failed, e.Total)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile pending work once and exit",
	Long: `Runs both reconciliation passes once, without starting pollers:

  - restart-pending: builds recorded as unfinished are restarted
  - missing-status: commits of open change requests without a status are built

The command waits for every scheduled build and prints a report. It exits
with code 3 when any build failed.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	format, err := formatting.ParseFormat(reconcileOutput)
	if err != nil {
		return err
	}
	cfg, err := newAppConfig()
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if reconcileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, reconcileTimeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	interactive := isTerminal(out)

	var s *spinner.Spinner
	if interactive && !reconcileQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Reconciling..."
		s.Start()
	}
	report, runErr := application.Reconcile(ctx)
	if s != nil {
		if runErr != nil {
			s.FinalMSG = text.FgRed.Sprint("Reconcile failed") + "\n"
		}
		s.Stop()
	}
	if report == nil {
		return runErr
	}

	formatter := formatting.NewFormatter(formatting.Options{Format: format, Color: interactive})
	if err := formatter.FormatReport(out, report); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return buildsFailed(report)
}

func buildsFailed(report *app.ReconcileReport) error {
	failed := 0
	for _, b := range report.Builds {
		if b.State != tasks.StateSucceeded {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return &BuildsFailedError{Failed: failed, Total: len(report.Builds)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&reconcileOutput, "output", "o", "table", "Report format: table, json or yaml")
	reconcileCmd.Flags().DurationVar(&reconcileTimeout, "timeout", 0, "Give up after this long (0 waits for every build)")
	reconcileCmd.Flags().BoolVarP(&reconcileQuiet, "quiet", "q", false, "Do not show progress")
}
