// Package models defines the data types shared across the simulator.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a transfer settled by the ledger during a simulation step.
type Transaction struct {
	ID       string
	Step     int64
	OrigID   string
	BeneID   string
	Amount   decimal.Decimal
	AlertID  int64
	IsSAR    bool
	Typology string
}

// AlertReport is the ground-truth view of an alert group at the end of a run.
type AlertReport struct {
	AlertID   int64
	Typology  string
	IsSAR     bool
	SubjectID string // empty for false alerts
	PrimaryID string // empty for alerts without members
	MemberIDs []string
}

// Run describes one simulation run.
type Run struct {
	ID           string
	Name         string
	Seed         uint64
	Steps        int64
	StartedAt    time.Time
	FinishedAt   time.Time
	Transactions int
	Skipped      int
}

// RunSummary aggregates the outcome of a run for display.
type RunSummary struct {
	Alerts        int
	SARAlerts     int
	FalseAlerts   int
	Accounts      int
	Transactions  int
	SARTxCount    int
	TotalAmount   decimal.Decimal
	MeanAmount    float64
	StdDevAmount  float64
	AmountByAlert map[int64]decimal.Decimal
}

// AccountRow is one line of the accounts input file.
type AccountRow struct {
	AccountID      string  `csv:"acct_id"`
	BankID         string  `csv:"bank_id"`
	InitialDeposit float64 `csv:"initial_deposit"`
}

// AlertMemberRow is one line of the alert members input file.
// Rows sharing an alert_id describe one alert; the parameters of the first row win.
type AlertMemberRow struct {
	AlertID   int64   `csv:"alert_id"`
	Typology  string  `csv:"alert_type"`
	AccountID string  `csv:"acct_id"`
	IsMain    bool    `csv:"is_main"`
	IsSAR     bool    `csv:"is_sar"`
	MinAmount float64 `csv:"min_amount"`
	MaxAmount float64 `csv:"max_amount"`
	StartStep int64   `csv:"start_step"`
	EndStep   int64   `csv:"end_step"`
}

// AlertAccountRow is one line of the alert accounts report.
type AlertAccountRow struct {
	AlertID   int64  `csv:"alert_id"`
	AlertType string `csv:"alert_type"`
	IsSAR     bool   `csv:"is_sar"`
	AccountID string `csv:"acct_id"`
	IsSubject bool   `csv:"is_subject"`
	Position  int    `csv:"position"`
}

// TransactionRow is one line of the transaction log report.
type TransactionRow struct {
	TxID     string `csv:"tran_id"`
	Step     int64  `csv:"step"`
	OrigID   string `csv:"orig_acct"`
	BeneID   string `csv:"bene_acct"`
	Amount   string `csv:"base_amt"`
	AlertID  int64  `csv:"alert_id"`
	IsSAR    bool   `csv:"is_sar"`
	Typology string `csv:"tx_type"`
}
