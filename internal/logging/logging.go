// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"amlsim/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(home, ".config", "amlsim", "logs", "amlsim.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	return FromContextOr(ctx, zerolog.Nop())
}

// FromContextOr retrieves the logger from context, or fallback when none is set.
func FromContextOr(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return fallback
}

// WithRun adds a run ID to the logger context.
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}

// WithAlert adds an alert ID to the logger context.
func WithAlert(logger zerolog.Logger, alertID int64) zerolog.Logger {
	return logger.With().Int64("alert_id", alertID).Logger()
}

// WithStep adds a simulation step to the logger context.
func WithStep(logger zerolog.Logger, step int64) zerolog.Logger {
	return logger.With().Int64("step", step).Logger()
}

// LogTransaction logs a settled transaction.
func LogTransaction(logger zerolog.Logger, tx models.Transaction) {
	logger.Debug().
		Str("event", "transaction").
		Str("tx_id", tx.ID).
		Int64("step", tx.Step).
		Str("orig", tx.OrigID).
		Str("bene", tx.BeneID).
		Str("amount", tx.Amount.StringFixed(2)).
		Int64("alert_id", tx.AlertID).
		Bool("is_sar", tx.IsSAR).
		Msg("Transaction settled")
}

// LogSkippedEmission logs an emission the ledger refused.
func LogSkippedEmission(logger zerolog.Logger, alertID int64, accountID string, step int64, err error) {
	logger.Warn().
		Str("event", "emission_skipped").
		Int64("alert_id", alertID).
		Str("account", accountID).
		Int64("step", step).
		Err(err).
		Msg("Emission skipped")
}

// LogSummary logs the outcome of a run.
func LogSummary(logger zerolog.Logger, s models.RunSummary) {
	logger.Info().
		Str("event", "summary").
		Int("alerts", s.Alerts).
		Int("sar_alerts", s.SARAlerts).
		Int("transactions", s.Transactions).
		Str("total_amount", s.TotalAmount.StringFixed(2)).
		Float64("mean_amount", s.MeanAmount).
		Msg("Run summary")
}
