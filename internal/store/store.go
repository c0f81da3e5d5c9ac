// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"amlsim/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Runs
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, runID string) (*models.Run, error)
	GetRuns(ctx context.Context, limit int) ([]models.Run, error)

	// Alerts
	SaveAlertReports(ctx context.Context, runID string, reports []models.AlertReport) error
	GetAlertReports(ctx context.Context, runID string, filter AlertFilter) ([]models.AlertReport, error)

	// Transactions
	SaveTransactions(ctx context.Context, runID string, txs []models.Transaction) error
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)

	// Lifecycle
	Close() error
}

// AlertFilter represents filters for querying alert reports.
type AlertFilter struct {
	SAROnly  bool
	Typology string
}

// TransactionFilter represents filters for querying transactions.
type TransactionFilter struct {
	RunID     string
	AlertID   *int64
	AccountID string // matches originator or beneficiary
	FromStep  *int64
	ToStep    *int64
	SAROnly   bool
	Limit     int
}
