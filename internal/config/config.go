package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Interop  InteropConfig  `mapstructure:"interop"`
	Emulator EmulatorConfig `mapstructure:"emulator"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	CLI      CLIConfig      `mapstructure:"cli"`
}

type InteropConfig struct {
	AllowedBackends []string `mapstructure:"allowed_backends"`
	MinCUDAVersion  string   `mapstructure:"min_cuda_version"`
	ScratchPoolMB   int      `mapstructure:"scratch_pool_mb"`
}

// EmulatorConfig selects the in-process backend and runtime used when no
// GPU is present
type EmulatorConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BackendName string `mapstructure:"backend_name"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

type CLIConfig struct {
	Color bool `mapstructure:"color"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Interop: InteropConfig{
			AllowedBackends: []string{"openGL3_glfw"},
			MinCUDAVersion:  ">= 11.0",
			ScratchPoolMB:   64,
		},
		Emulator: EmulatorConfig{
			Enabled:     true,
			BackendName: "openGL3_glfw",
		},
		Logging: LoggingConfig{
			Level:   "info",
			File:    "",
			Console: true,
		},
		CLI: CLIConfig{
			Color: true,
		},
	}
}

// Dir returns the per-user configuration directory
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".psinterop"), nil
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Defaults live in viper only; decoding into a prefilled struct would
	// let mapstructure keep a default slice over an explicitly empty one
	setDefaults(v, DefaultConfig())
	cfg := &Config{}

	// Config file setup
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("expanding config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}

		v.AddConfigPath(dir)
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// Environment variables
	v.SetEnvPrefix("PSINTEROP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is okay, use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand paths
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Interop.AllowedBackends) == 0 {
		return errors.New("interop.allowed_backends must not be empty")
	}

	if c.Interop.MinCUDAVersion != "" {
		if _, err := semver.NewConstraint(c.Interop.MinCUDAVersion); err != nil {
			return fmt.Errorf("interop.min_cuda_version: %w", err)
		}
	}

	if c.Interop.ScratchPoolMB < 0 {
		return errors.New("interop.scratch_pool_mb must not be negative")
	}

	if c.Emulator.Enabled && c.Emulator.BackendName == "" {
		return errors.New("emulator.backend_name must be set when the emulator is enabled")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// ScratchPoolBytes returns the scratch pool bound in bytes
func (c *Config) ScratchPoolBytes() int64 {
	return int64(c.Interop.ScratchPoolMB) << 20
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() error {
	if c.Logging.File == "" {
		return nil
	}
	path, err := homedir.Expand(os.ExpandEnv(c.Logging.File))
	if err != nil {
		return fmt.Errorf("expanding logging.file: %w", err)
	}
	c.Logging.File = path
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("interop.allowed_backends", cfg.Interop.AllowedBackends)
	v.SetDefault("interop.min_cuda_version", cfg.Interop.MinCUDAVersion)
	v.SetDefault("interop.scratch_pool_mb", cfg.Interop.ScratchPoolMB)

	v.SetDefault("emulator.enabled", cfg.Emulator.Enabled)
	v.SetDefault("emulator.backend_name", cfg.Emulator.BackendName)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)

	v.SetDefault("cli.color", cfg.CLI.Color)
}
