// Package report produces the ground-truth output of a simulation run: which
// accounts formed which alert groups, which groups were SAR, and the
// transactions they generated.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"amlsim/internal/alert"
	apperrors "amlsim/internal/errors"
	"amlsim/internal/models"
)

// Output file names.
const (
	AlertAccountsFile = "alert_accounts.csv"
	TransactionsFile  = "transactions.csv"
)

// Build captures every alert's id, typology, SAR status, subject, primary
// account and member list.
func Build(alerts []*alert.Alert) []models.AlertReport {
	reports := make([]models.AlertReport, 0, len(alerts))
	for _, a := range alerts {
		r := models.AlertReport{
			AlertID:  a.ID(),
			Typology: a.Model().Name(),
			IsSAR:    a.IsSAR(),
		}
		if subject, ok := a.Subject(); ok {
			r.SubjectID = subject.AccountID()
		}
		if primary, ok := a.PrimarySubject(); ok {
			r.PrimaryID = primary.AccountID()
		}
		for _, m := range a.Members() {
			r.MemberIDs = append(r.MemberIDs, m.AccountID())
		}
		reports = append(reports, r)
	}
	return reports
}

// noMemberPosition marks the row written for an alert without members.
const noMemberPosition = -1

// AlertAccountRows flattens reports into one row per membership. An alert
// without members gets a single row with an empty account and position -1.
func AlertAccountRows(reports []models.AlertReport) []*models.AlertAccountRow {
	rows := make([]*models.AlertAccountRow, 0)
	for _, r := range reports {
		if len(r.MemberIDs) == 0 {
			rows = append(rows, &models.AlertAccountRow{
				AlertID:   r.AlertID,
				AlertType: r.Typology,
				IsSAR:     r.IsSAR,
				Position:  noMemberPosition,
			})
			continue
		}
		for i, id := range r.MemberIDs {
			rows = append(rows, &models.AlertAccountRow{
				AlertID:   r.AlertID,
				AlertType: r.Typology,
				IsSAR:     r.IsSAR,
				AccountID: id,
				IsSubject: r.IsSAR && id == r.SubjectID,
				Position:  i,
			})
		}
	}
	return rows
}

// TransactionRows converts transactions to CSV rows.
func TransactionRows(txs []models.Transaction) []*models.TransactionRow {
	rows := make([]*models.TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &models.TransactionRow{
			TxID:     tx.ID,
			Step:     tx.Step,
			OrigID:   tx.OrigID,
			BeneID:   tx.BeneID,
			Amount:   tx.Amount.StringFixed(2),
			AlertID:  tx.AlertID,
			IsSAR:    tx.IsSAR,
			Typology: tx.Typology,
		})
	}
	return rows
}

// WriteAlertAccounts writes the alert membership report.
func WriteAlertAccounts(path string, reports []models.AlertReport) error {
	return writeCSV(path, AlertAccountRows(reports))
}

// WriteTransactions writes the transaction log.
func WriteTransactions(path string, txs []models.Transaction) error {
	return writeCSV(path, TransactionRows(txs))
}

// Export writes both reports into dir and returns the written paths.
func Export(dir string, reports []models.AlertReport, txs []models.Transaction) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.NewDataError("report", dir, "create output directory", err)
	}

	alertsPath := filepath.Join(dir, AlertAccountsFile)
	if err := WriteAlertAccounts(alertsPath, reports); err != nil {
		return nil, err
	}
	txPath := filepath.Join(dir, TransactionsFile)
	if err := WriteTransactions(txPath, txs); err != nil {
		return nil, err
	}
	return []string{alertsPath, txPath}, nil
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return apperrors.NewDataError("report", path, "create", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(rows, f); err != nil {
		return apperrors.NewDataError("report", path, "encode", err)
	}
	return nil
}

// ReadAlertAccounts parses an alert membership report back into reports,
// preserving member order.
func ReadAlertAccounts(path string) ([]models.AlertReport, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, apperrors.NewDataError("report", path, "open", err)
	}
	defer f.Close()

	var rows []*models.AlertAccountRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, apperrors.NewDataError("report", path, "decode", err)
	}

	var (
		reports []models.AlertReport
		index   = make(map[int64]int)
	)
	for _, row := range rows {
		i, ok := index[row.AlertID]
		if !ok {
			i = len(reports)
			index[row.AlertID] = i
			reports = append(reports, models.AlertReport{
				AlertID:  row.AlertID,
				Typology: row.AlertType,
				IsSAR:    row.IsSAR,
			})
		}
		if row.Position < 0 || row.AccountID == "" {
			continue
		}
		r := &reports[i]
		r.MemberIDs = append(r.MemberIDs, row.AccountID)
		if row.IsSubject {
			r.SubjectID = row.AccountID
		}
	}

	for i := range reports {
		r := &reports[i]
		switch {
		case r.SubjectID != "":
			r.PrimaryID = r.SubjectID
		case len(r.MemberIDs) > 0:
			r.PrimaryID = r.MemberIDs[0]
		}
	}
	return reports, nil
}

// Summarize aggregates alert and transaction counts and amount statistics.
func Summarize(reports []models.AlertReport, txs []models.Transaction) models.RunSummary {
	s := models.RunSummary{
		Alerts:        len(reports),
		Transactions:  len(txs),
		TotalAmount:   decimal.Zero,
		AmountByAlert: make(map[int64]decimal.Decimal),
	}

	accounts := make(map[string]bool)
	for _, r := range reports {
		if r.IsSAR {
			s.SARAlerts++
		} else {
			s.FalseAlerts++
		}
		for _, id := range r.MemberIDs {
			accounts[id] = true
		}
	}
	s.Accounts = len(accounts)

	amounts := make([]float64, 0, len(txs))
	for _, tx := range txs {
		if tx.IsSAR {
			s.SARTxCount++
		}
		s.TotalAmount = s.TotalAmount.Add(tx.Amount)
		s.AmountByAlert[tx.AlertID] = s.AmountByAlert[tx.AlertID].Add(tx.Amount)
		amounts = append(amounts, tx.Amount.InexactFloat64())
	}

	if len(amounts) > 0 {
		s.MeanAmount = stat.Mean(amounts, nil)
	}
	if len(amounts) > 1 {
		s.StdDevAmount = stat.StdDev(amounts, nil)
	}
	return s
}

// Describe returns a one-line description of an alert report.
func Describe(r models.AlertReport) string {
	kind := "false alert"
	if r.IsSAR {
		kind = "SAR"
	}
	return fmt.Sprintf("alert %d (%s, %s): %d members, primary %s", r.AlertID, r.Typology, kind, len(r.MemberIDs), r.PrimaryID)
}
