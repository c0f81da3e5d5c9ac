// Package simulation drives alert groups through discrete simulation steps.
package simulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"amlsim/internal/account"
	"amlsim/internal/alert"
	apperrors "amlsim/internal/errors"
	"amlsim/internal/ledger"
	"amlsim/internal/logging"
	"amlsim/internal/models"
	"amlsim/internal/typology"
)

// Config holds engine settings.
type Config struct {
	Name  string
	Steps int64
	Seed  uint64
}

// Result describes a finished run.
type Result struct {
	Run          models.Run
	Transactions []models.Transaction
	Skipped      int
	// Emissions counts settled transfers per typology name.
	Emissions map[string]int
}

// Engine owns the accounts and alerts of one simulation and advances the
// step counter. It evaluates alerts sequentially.
type Engine struct {
	cfg      Config
	ledger   *ledger.Ledger
	logger   zerolog.Logger
	accounts []*account.Account
	byID     map[string]*account.Account
	alerts   []*alert.Alert
	alertIDs map[int64]bool
	step     int64
}

// NewEngine creates an engine around a ledger.
func NewEngine(cfg Config, l *ledger.Ledger, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		ledger:   l,
		logger:   logger,
		byID:     make(map[string]*account.Account),
		alertIDs: make(map[int64]bool),
		step:     -1,
	}
}

// CurrentStep returns the step being evaluated, or -1 before the run starts.
func (e *Engine) CurrentStep() int64 {
	return e.step
}

// AddAccount registers an account and opens it in the ledger.
func (e *Engine) AddAccount(acct *account.Account, balance decimal.Decimal) error {
	if _, ok := e.byID[acct.AccountID()]; ok {
		return apperrors.NewValidationError("acct_id", acct.AccountID(), "duplicate account")
	}
	if err := e.ledger.Open(acct.AccountID(), balance); err != nil {
		return err
	}
	e.accounts = append(e.accounts, acct)
	e.byID[acct.AccountID()] = acct
	return nil
}

// Account looks up an account by id.
func (e *Engine) Account(id string) (*account.Account, bool) {
	acct, ok := e.byID[id]
	return acct, ok
}

// NewAlert creates an alert owned by this engine and bound to model.
func (e *Engine) NewAlert(id int64, model alert.Typology) (*alert.Alert, error) {
	if e.alertIDs[id] {
		return nil, apperrors.NewValidationError("alert_id", id, "duplicate alert")
	}
	a, err := alert.New(id, model, e)
	if err != nil {
		return nil, err
	}
	e.alerts = append(e.alerts, a)
	e.alertIDs[id] = true
	return a, nil
}

// Accounts returns the accounts in registration order.
func (e *Engine) Accounts() []*account.Account {
	out := make([]*account.Account, len(e.accounts))
	copy(out, e.accounts)
	return out
}

// Alerts returns the alerts in creation order.
func (e *Engine) Alerts() []*alert.Alert {
	out := make([]*alert.Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// Ledger returns the engine's ledger.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Run evaluates steps [0, Steps). Emissions refused for insufficient funds
// are skipped; any other failure stops the run. A logger carried by ctx takes
// precedence over the engine's own.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.cfg.Steps <= 0 {
		return nil, apperrors.NewValidationError("steps", e.cfg.Steps, "must be positive")
	}

	run := models.Run{
		ID:        uuid.NewString(),
		Name:      e.cfg.Name,
		Seed:      e.cfg.Seed,
		Steps:     e.cfg.Steps,
		StartedAt: time.Now(),
	}
	logger := logging.WithRun(logging.FromContextOr(ctx, e.logger), run.ID)
	logger.Info().
		Int("accounts", len(e.accounts)).
		Int("alerts", len(e.alerts)).
		Int64("steps", e.cfg.Steps).
		Msg("Simulation started")

	skipped := 0
	for step := int64(0); step < e.cfg.Steps; step++ {
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrapf(ctx.Err(), "simulation interrupted at step %d", step)
		default:
		}

		e.step = step
		for _, acct := range e.accounts {
			for _, al := range acct.Alerts() {
				err := al.TriggerStep(step, acct)
				if err == nil {
					continue
				}
				if apperrors.Is(err, ledger.ErrInsufficientFunds) {
					skipped++
					logging.LogSkippedEmission(logger, al.ID(), acct.AccountID(), step, err)
					continue
				}
				alertLogger := logging.WithStep(logging.WithAlert(logger, al.ID()), step)
				alertLogger.Error().
					Err(err).
					Str("account", acct.AccountID()).
					Msg("Alert failed, aborting run")
				return nil, apperrors.NewAlertError(al.ID(), step, "trigger", err)
			}
		}
	}

	txs := e.ledger.Transactions()
	for _, tx := range txs {
		logging.LogTransaction(logger, tx)
	}
	run.FinishedAt = time.Now()
	run.Transactions = len(txs)
	run.Skipped = skipped

	emissions := e.emissions()
	logger.Info().
		Int("transactions", len(txs)).
		Int("skipped", skipped).
		Interface("emissions", emissions).
		Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
		Msg("Simulation finished")

	return &Result{Run: run, Transactions: txs, Skipped: skipped, Emissions: emissions}, nil
}

func (e *Engine) emissions() map[string]int {
	counts := make(map[string]int)
	for _, al := range e.alerts {
		if c, ok := al.Model().(typology.Counter); ok {
			counts[al.Model().Name()] += c.Emissions()
		}
	}
	return counts
}
