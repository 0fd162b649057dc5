package app

import (
	"fmt"
	"strconv"

	"ciwarden/internal/config"
	"ciwarden/pkg/logging"
)

const (
	EnvSkipWorkers = "CIWARDEN_SKIP_WORKERS"
	EnvSkipRestart = "CIWARDEN_SKIP_RESTART"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug     bool
	LogFormat logging.Format

	// Custom configuration path (optional)
	// When empty, ~/.config/ciwarden is used
	ConfigPath string

	// Launch gates. They are combined with the config file and environment
	// once, at startup.
	SkipWorkers bool
	SkipRestart bool

	// Environment configuration
	CiwardenConfig *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		LogFormat:  logging.FormatText,
		ConfigPath: configPath,
	}
}

// Gates are the launch switches evaluated once at startup.
type Gates struct {
	SkipWorkers bool
	SkipRestart bool
}

// resolveGates ORs the command line, the config file and the environment.
func resolveGates(cfg *Config, fileCfg config.Config, getenv func(string) string) (Gates, error) {
	skipWorkers, err := envBool(getenv, EnvSkipWorkers)
	if err != nil {
		return Gates{}, err
	}
	skipRestart, err := envBool(getenv, EnvSkipRestart)
	if err != nil {
		return Gates{}, err
	}
	return Gates{
		SkipWorkers: cfg.SkipWorkers || fileCfg.Startup.SkipWorkers || skipWorkers,
		SkipRestart: cfg.SkipRestart || fileCfg.Startup.SkipRestart || skipRestart,
	}, nil
}

func envBool(getenv func(string) string, name string) (bool, error) {
	value := getenv(name)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", name, value, err)
	}
	return b, nil
}
