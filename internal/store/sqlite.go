// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "amlsim/internal/errors"
	"amlsim/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Simulation runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		transactions INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Alert groups as reported at the end of a run
	CREATE TABLE IF NOT EXISTS alerts (
		run_id TEXT NOT NULL,
		alert_id INTEGER NOT NULL,
		typology TEXT NOT NULL,
		is_sar INTEGER NOT NULL DEFAULT 0,
		subject_id TEXT,
		primary_id TEXT,
		PRIMARY KEY (run_id, alert_id),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	-- Alert membership, position keeps the join order
	CREATE TABLE IF NOT EXISTS alert_members (
		run_id TEXT NOT NULL,
		alert_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		account_id TEXT NOT NULL,
		PRIMARY KEY (run_id, alert_id, position),
		FOREIGN KEY (run_id, alert_id) REFERENCES alerts(run_id, alert_id)
	);

	-- Settled transactions
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		orig_id TEXT NOT NULL,
		bene_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		alert_id INTEGER NOT NULL,
		is_sar INTEGER NOT NULL DEFAULT 0,
		typology TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_alert_members_account ON alert_members(account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_run_step ON transactions(run_id, step);
	CREATE INDEX IF NOT EXISTS idx_transactions_alert ON transactions(run_id, alert_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Runs Methods
// ============================================================================

// SaveRun saves or replaces a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, name, seed, steps, started_at, finished_at, transactions, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Name, int64(run.Seed), run.Steps, run.StartedAt, run.FinishedAt, run.Transactions, run.Skipped)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, seed, steps, started_at, finished_at, transactions, skipped
		FROM runs WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if apperrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRuns retrieves the most recent runs first.
func (s *SQLiteStore) GetRuns(ctx context.Context, limit int) ([]models.Run, error) {
	query := `
		SELECT id, name, seed, steps, started_at, finished_at, transactions, skipped
		FROM runs ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*models.Run, error) {
	var (
		run      models.Run
		name     sql.NullString
		seed     int64
		finished sql.NullTime
	)
	if err := sc.Scan(&run.ID, &name, &seed, &run.Steps, &run.StartedAt, &finished, &run.Transactions, &run.Skipped); err != nil {
		return nil, err
	}
	run.Name = name.String
	run.Seed = uint64(seed)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// ============================================================================
// Alerts Methods
// ============================================================================

// SaveAlertReports saves alert reports and their ordered member lists.
func (s *SQLiteStore) SaveAlertReports(ctx context.Context, runID string, reports []models.AlertReport) error {
	if len(reports) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	alertStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO alerts (run_id, alert_id, typology, is_sar, subject_id, primary_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer alertStmt.Close()

	clearStmt, err := tx.PrepareContext(ctx, `
		DELETE FROM alert_members WHERE run_id = ? AND alert_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer clearStmt.Close()

	memberStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alert_members (run_id, alert_id, position, account_id)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer memberStmt.Close()

	for _, r := range reports {
		// Members go first so a re-saved alert never keeps stale positions.
		if _, err := clearStmt.ExecContext(ctx, runID, r.AlertID); err != nil {
			return fmt.Errorf("failed to clear members of alert %d: %w", r.AlertID, err)
		}
		if _, err := alertStmt.ExecContext(ctx, runID, r.AlertID, r.Typology, boolToInt(r.IsSAR), nullString(r.SubjectID), nullString(r.PrimaryID)); err != nil {
			return fmt.Errorf("failed to insert alert %d: %w", r.AlertID, err)
		}
		for i, id := range r.MemberIDs {
			if _, err := memberStmt.ExecContext(ctx, runID, r.AlertID, i, id); err != nil {
				return fmt.Errorf("failed to insert member of alert %d: %w", r.AlertID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetAlertReports retrieves the alert reports of a run ordered by alert ID.
func (s *SQLiteStore) GetAlertReports(ctx context.Context, runID string, filter AlertFilter) ([]models.AlertReport, error) {
	query := `SELECT alert_id, typology, is_sar, subject_id, primary_id FROM alerts WHERE run_id = ?`
	args := []interface{}{runID}

	if filter.SAROnly {
		query += " AND is_sar = 1"
	}
	if filter.Typology != "" {
		query += " AND typology = ?"
		args = append(args, filter.Typology)
	}
	query += " ORDER BY alert_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	var (
		reports []models.AlertReport
		index   = make(map[int64]int)
	)
	for rows.Next() {
		var (
			r                  models.AlertReport
			isSAR              int
			subject, primaryID sql.NullString
		)
		if err := rows.Scan(&r.AlertID, &r.Typology, &isSAR, &subject, &primaryID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		r.IsSAR = isSAR == 1
		r.SubjectID = subject.String
		r.PrimaryID = primaryID.String
		index[r.AlertID] = len(reports)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(reports) == 0 {
		return reports, nil
	}

	memberRows, err := s.db.QueryContext(ctx, `
		SELECT alert_id, account_id FROM alert_members
		WHERE run_id = ? ORDER BY alert_id ASC, position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var (
			alertID   int64
			accountID string
		)
		if err := memberRows.Scan(&alertID, &accountID); err != nil {
			return nil, fmt.Errorf("failed to scan alert member: %w", err)
		}
		if i, ok := index[alertID]; ok {
			reports[i].MemberIDs = append(reports[i].MemberIDs, accountID)
		}
	}

	return reports, memberRows.Err()
}

// ============================================================================
// Transactions Methods
// ============================================================================

// SaveTransactions saves settled transactions.
func (s *SQLiteStore) SaveTransactions(ctx context.Context, runID string, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO transactions (id, run_id, step, orig_id, bene_id, amount, alert_id, is_sar, typology)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		_, err := stmt.ExecContext(ctx, t.ID, runID, t.Step, t.OrigID, t.BeneID, t.Amount.String(), t.AlertID, boolToInt(t.IsSAR), t.Typology)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTransactions retrieves transactions in step order.
func (s *SQLiteStore) GetTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT id, step, orig_id, bene_id, amount, alert_id, is_sar, typology FROM transactions WHERE 1=1`
	var args []interface{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.AlertID != nil {
		query += " AND alert_id = ?"
		args = append(args, *filter.AlertID)
	}
	if filter.AccountID != "" {
		query += " AND (orig_id = ? OR bene_id = ?)"
		args = append(args, filter.AccountID, filter.AccountID)
	}
	if filter.FromStep != nil {
		query += " AND step >= ?"
		args = append(args, *filter.FromStep)
	}
	if filter.ToStep != nil {
		query += " AND step <= ?"
		args = append(args, *filter.ToStep)
	}
	if filter.SAROnly {
		query += " AND is_sar = 1"
	}

	query += " ORDER BY step ASC, rowid ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var (
			t        models.Transaction
			amount   string
			isSAR    int
			typology sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Step, &t.OrigID, &t.BeneID, &amount, &t.AlertID, &isSAR, &typology); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s amount %q: %w", t.ID, amount, apperrors.ErrDatabaseError)
		}
		t.IsSAR = isSAR == 1
		t.Typology = typology.String
		txs = append(txs, t)
	}

	return txs, rows.Err()
}

// ============================================================================
// Helpers
// ============================================================================

// IsBusy reports whether err is a transient SQLite lock conflict.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if apperrors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: strings.TrimSpace(s), Valid: s != ""}
}
