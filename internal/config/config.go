// Package config provides configuration management for the simulator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	apperrors "amlsim/internal/errors"
	"amlsim/internal/logging"
)

// FileName is the configuration file name, without extension.
const FileName = "config"

// Config holds all application configuration.
type Config struct {
	Simulation SimulationConfig  `mapstructure:"simulation"`
	Output     OutputConfig      `mapstructure:"output"`
	Logging    logging.LogConfig `mapstructure:"logging"`

	path string
}

// SimulationConfig holds the inputs of a run.
type SimulationConfig struct {
	Name             string `mapstructure:"name"`
	Steps            int64  `mapstructure:"steps"`
	Seed             uint64 `mapstructure:"seed"`
	AccountsFile     string `mapstructure:"accounts_file"`
	AlertMembersFile string `mapstructure:"alert_members_file"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Database string `mapstructure:"database"`
	WriteCSV bool   `mapstructure:"write_csv"`
	Persist  bool   `mapstructure:"persist"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/amlsim"
	}
	return filepath.Join(home, ".config", "amlsim")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, apperrors.Wrap(err, "loading config.toml")
		}
		// Config file not found, create template and run on defaults
		if err := createTemplateConfig(configDir); err != nil {
			return nil, apperrors.Wrap(err, "creating config.toml")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.Wrap(err, "decoding config.toml")
	}
	cfg.path = filepath.Join(configDir, FileName+".toml")

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "validating config")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	logDefaults := logging.DefaultLogConfig()

	v.SetDefault("simulation.name", "amlsim")
	v.SetDefault("simulation.steps", 30)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.accounts_file", "accounts.csv")
	v.SetDefault("simulation.alert_members_file", "alert_members.csv")

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.database", filepath.Join(configDir, "amlsim.db"))
	v.SetDefault("output.write_csv", true)
	v.SetDefault("output.persist", true)

	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.console", logDefaults.Console)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.file_path", logDefaults.FilePath)
	v.SetDefault("logging.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age", logDefaults.MaxAge)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("AMLSIM_STEPS"); v != "" {
		steps, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: AMLSIM_STEPS=%q is not an integer", apperrors.ErrConfigInvalid, v)
		}
		cfg.Simulation.Steps = steps
	}
	if v := os.Getenv("AMLSIM_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: AMLSIM_SEED=%q is not an unsigned integer", apperrors.ErrConfigInvalid, v)
		}
		cfg.Simulation.Seed = seed
	}
	if v := os.Getenv("AMLSIM_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Simulation.Steps <= 0 {
		return fmt.Errorf("%w: simulation.steps must be positive, got %d", apperrors.ErrConfigInvalid, c.Simulation.Steps)
	}
	if c.Simulation.AccountsFile == "" {
		return fmt.Errorf("%w: simulation.accounts_file is required", apperrors.ErrConfigInvalid)
	}
	if c.Simulation.AlertMembersFile == "" {
		return fmt.Errorf("%w: simulation.alert_members_file is required", apperrors.ErrConfigInvalid)
	}
	if c.Output.WriteCSV && c.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir is required when write_csv is set", apperrors.ErrConfigInvalid)
	}
	if c.Output.Persist && c.Output.Database == "" {
		return fmt.Errorf("%w: output.database is required when persist is set", apperrors.ErrConfigInvalid)
	}
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// ResolvePath resolves p against the configuration directory unless it is
// already absolute.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}
