package config

import "time"

// Config is the top-level configuration structure for ciwarden.
type Config struct {
	// DataDir holds the build status database.
	DataDir string `yaml:"dataDir,omitempty"`

	Workspace   WorkspaceConfig    `yaml:"workspace,omitempty"`
	Credentials []CredentialConfig `yaml:"credentials,omitempty"`
	Projects    []ProjectConfig    `yaml:"projects,omitempty"`
	Poll        PollConfig         `yaml:"poll,omitempty"`
	Executor    ExecutorConfig     `yaml:"executor,omitempty"`
	Metrics     MetricsConfig      `yaml:"metrics,omitempty"`
	Startup     StartupConfig      `yaml:"startup,omitempty"`
}

// WorkspaceConfig defines where build checkouts live.
type WorkspaceConfig struct {
	Root         string `yaml:"root,omitempty"`
	PathTemplate string `yaml:"pathTemplate,omitempty"` // text/template with sprig functions
}

// CredentialConfig names a hosting provider account.
type CredentialConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`              // github, gitlab or gitea
	BaseURL  string `yaml:"baseURL,omitempty"` // API root of self-hosted instances
	TokenEnv string `yaml:"tokenEnv,omitempty"`
}

// ProjectConfig is one repository to build.
type ProjectConfig struct {
	ID         string          `yaml:"id"`
	Repo       string          `yaml:"repo"`               // owner/name
	CloneURL   string          `yaml:"cloneURL,omitempty"` // derived for github.com when empty
	Credential string          `yaml:"credential"`
	Triggers   []TriggerConfig `yaml:"triggers,omitempty"`
}

// TriggerConfig is a job trigger. Branch is required except for manual
// triggers.
type TriggerConfig struct {
	Type   string `yaml:"type"`
	Branch string `yaml:"branch,omitempty"`
}

// PollConfig configures the project pollers.
type PollConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
}

// ExecutorConfig configures the task executor.
type ExecutorConfig struct {
	Workers int `yaml:"workers,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Address string `yaml:"address,omitempty"`
}

// StartupConfig holds the launch gates. The CLI flags and environment
// variables override them.
type StartupConfig struct {
	SkipWorkers bool `yaml:"skipWorkers,omitempty"`
	SkipRestart bool `yaml:"skipRestart,omitempty"`
}
