package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ciwarden/pkg/logging"
)

const (
	userConfigDir  = ".config/ciwarden"
	configFileName = "config.yaml"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// ConfigFilePath returns the config.yaml path inside configPath.
func ConfigFilePath(configPath string) string {
	return filepath.Join(configPath, configFileName)
}

// LoadConfig loads and validates configPath/config.yaml. A missing file
// yields the defaults.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := ConfigFilePath(configPath)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyDefaults(&config, configPath)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		// config malformed
		parseErr := ConfigurationError{
			Path:    configFilePath,
			Section: "config",
			Kind:    ErrorKindParse,
			Message: "malformed YAML",
			Cause:   err.Error(),
			Hint:    "check indentation and quoting",
		}
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, parseErr)
	}
	applyDefaults(&config, configPath)

	if errs := Validate(config, configFilePath); errs.HasErrors() {
		return Config{}, errs
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s (%d credentials, %d projects)",
		configFilePath, len(config.Credentials), len(config.Projects))
	return config, nil
}
