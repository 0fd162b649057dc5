package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ciwarden/internal/app"
	"ciwarden/internal/config"
	"ciwarden/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigInvalid indicates config.yaml could not be loaded.
	ExitCodeConfigInvalid = 2
	// ExitCodeBuildsFailed indicates a reconcile run finished with failed builds.
	ExitCodeBuildsFailed = 3
)

// Global flags shared by every command.
var (
	configPath string
	debug      bool
	logFormat  string
)

// rootCmd represents the base command for the ciwarden application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ciwarden",
	Short: "Build pull requests and commits of your repositories",
	Long: `ciwarden watches repositories on GitHub, GitLab and Gitea, builds the
commits of open change requests and reports the results back as commit
statuses. After a restart it picks up unfinished builds and any commit that
never received a status.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "ciwarden version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		reportConfigError(os.Stderr, err)
		os.Exit(getExitCode(err))
	}
}

// reportConfigError writes the full report of a configuration error to w.
// Other errors are left to cobra's one-line message.
func reportConfigError(w io.Writer, err error) {
	var collection *config.ConfigurationErrorCollection
	if errors.As(err, &collection) {
		collection.WriteReport(w)
		return
	}
	var configErr config.ConfigurationError
	if errors.As(err, &configErr) {
		configErr.WriteReport(w)
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var collection *config.ConfigurationErrorCollection
	if errors.As(err, &collection) {
		return ExitCodeConfigInvalid
	}

	var configErr config.ConfigurationError
	if errors.As(err, &configErr) {
		return ExitCodeConfigInvalid
	}

	var buildsFailed *BuildsFailedError
	if errors.As(err, &buildsFailed) {
		return ExitCodeBuildsFailed
	}

	return ExitCodeError
}

// newAppConfig builds the application configuration from the global flags.
func newAppConfig() (*app.Config, error) {
	format, err := logging.ParseFormat(logFormat)
	if err != nil {
		return nil, err
	}
	cfg := app.NewConfig(debug, configPath)
	cfg.LogFormat = format
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory containing config.yaml (default $HOME/.config/ciwarden)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}
