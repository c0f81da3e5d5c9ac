// Package cli provides the command-line interface for the simulator.
package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"amlsim/internal/config"
	apperrors "amlsim/internal/errors"
	"amlsim/internal/logging"
	"amlsim/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// OpenStore opens the run database on first use.
func (a *App) OpenStore() (store.DataStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}

	dbPath := a.Config.ResolvePath(a.Config.Output.Database)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, apperrors.Wrap(err, "creating database directory")
	}
	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", dbPath).Msg("SQLite store initialized")
	a.Store = dataStore
	return dataStore, nil
}

// Close releases the store, if one was opened.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// Execute runs the CLI with the process arguments.
func Execute(ctx context.Context, logger zerolog.Logger) error {
	app := &App{Logger: logger}
	defer app.Close()
	return NewRootCmd(app).ExecuteContext(ctx)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "amlsim",
		Short: "AML transaction simulator",
		Long: `amlsim generates synthetic bank transactions with labelled
money-laundering typologies.

Accounts and alert groups are read from CSV. Each alert group drives one
typology (fan_out, fan_in, cycle) over a window of simulation steps; groups
with a subject account are SAR, the rest are false alerts.

Use 'amlsim run' to simulate and 'amlsim report' to inspect stored runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")

			if cmd.Annotations[skipConfig] != "true" {
				configDir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(configDir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			}

			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/amlsim)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newReportCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("amlsim v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Path()})
			}
			output.Println(app.Config.Path())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and input files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			for _, p := range []string{app.Config.Simulation.AccountsFile, app.Config.Simulation.AlertMembersFile} {
				if _, err := os.Stat(app.Config.ResolvePath(p)); err != nil {
					output.Warning("Input file not readable: %v", err)
				}
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Simulation")
	output.Printf("  Name:          %s\n", cfg.Simulation.Name)
	output.Printf("  Steps:         %d\n", cfg.Simulation.Steps)
	output.Printf("  Seed:          %d\n", cfg.Simulation.Seed)
	output.Printf("  Accounts:      %s\n", cfg.ResolvePath(cfg.Simulation.AccountsFile))
	output.Printf("  Alert members: %s\n", cfg.ResolvePath(cfg.Simulation.AlertMembersFile))
	output.Println()

	output.Bold("Output")
	output.Printf("  Directory:     %s\n", cfg.Output.Dir)
	output.Printf("  Database:      %s\n", cfg.ResolvePath(cfg.Output.Database))
	output.Printf("  Write CSV:     %v\n", cfg.Output.WriteCSV)
	output.Printf("  Persist:       %v\n", cfg.Output.Persist)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:         %s\n", cfg.Logging.Level)
	output.Printf("  File:          %v\n", cfg.Logging.File)
}
