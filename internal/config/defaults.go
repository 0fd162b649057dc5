package config

import (
	"path/filepath"
	"time"
)

const (
	DefaultDataDir       = "data"
	DefaultWorkspaceRoot = "workspaces"
	DefaultPollInterval  = time.Minute
	DefaultWorkers       = 4
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() Config {
	return Config{
		DataDir: DefaultDataDir,
		Workspace: WorkspaceConfig{
			Root: DefaultWorkspaceRoot,
		},
		Poll: PollConfig{
			Interval: DefaultPollInterval,
		},
		Executor: ExecutorConfig{
			Workers: DefaultWorkers,
		},
	}
}

// applyDefaults fills zero values left by the file and resolves relative
// paths against configPath.
func applyDefaults(cfg *Config, configPath string) {
	defaults := GetDefaultConfig()
	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = defaults.Workspace.Root
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = defaults.Poll.Interval
	}
	if cfg.Executor.Workers == 0 {
		cfg.Executor.Workers = defaults.Executor.Workers
	}

	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(configPath, cfg.DataDir)
	}
	if !filepath.IsAbs(cfg.Workspace.Root) {
		cfg.Workspace.Root = filepath.Join(configPath, cfg.Workspace.Root)
	}
}
