package simulation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"amlsim/internal/account"
	apperrors "amlsim/internal/errors"
	"amlsim/internal/ledger"
	"amlsim/internal/models"
	"amlsim/internal/typology"
)

// Input names the CSV files a simulation is built from.
type Input struct {
	AccountsFile     string
	AlertMembersFile string
}

// Load reads the input files and builds a ready-to-run engine.
func Load(cfg Config, in Input, logger zerolog.Logger) (*Engine, error) {
	accounts, err := ReadAccounts(in.AccountsFile)
	if err != nil {
		return nil, err
	}
	members, err := ReadAlertMembers(in.AlertMembersFile)
	if err != nil {
		return nil, err
	}
	return Build(cfg, accounts, members, logger)
}

// ReadAccounts parses an accounts file.
func ReadAccounts(path string) ([]models.AccountRow, error) {
	var rows []models.AccountRow
	if err := readCSV(path, &rows); err != nil {
		return nil, apperrors.NewDataError("accounts", path, "read", err)
	}
	return rows, nil
}

// ReadAlertMembers parses an alert members file.
func ReadAlertMembers(path string) ([]models.AlertMemberRow, error) {
	var rows []models.AlertMemberRow
	if err := readCSV(path, &rows); err != nil {
		return nil, apperrors.NewDataError("alert_members", path, "read", err)
	}
	return rows, nil
}

func readCSV(path string, out interface{}) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer f.Close()

	return gocsv.UnmarshalFile(f, out)
}

// Build creates accounts, typologies and alerts from parsed rows. Rows that
// share an alert_id form one alert; the first row carries its parameters.
// A row flagged both is_main and is_sar designates the subject account.
func Build(cfg Config, accounts []models.AccountRow, members []models.AlertMemberRow, logger zerolog.Logger) (*Engine, error) {
	engine := NewEngine(cfg, ledger.New(), logger)

	for _, row := range accounts {
		if row.AccountID == "" {
			return nil, apperrors.NewValidationError("acct_id", row.AccountID, "empty account id")
		}
		if err := engine.AddAccount(account.New(row.AccountID, row.BankID), decimal.NewFromFloat(row.InitialDeposit)); err != nil {
			return nil, apperrors.Wrapf(err, "account %s", row.AccountID)
		}
	}

	order, groups := groupByAlert(members)
	for _, id := range order {
		rows := groups[id]
		first := rows[0]

		model, err := typology.New(first.Typology, typology.Params{
			StartStep: first.StartStep,
			EndStep:   first.EndStep,
			MinAmount: first.MinAmount,
			MaxAmount: first.MaxAmount,
			Seed:      cfg.Seed + uint64(id),
		}, engine.Ledger())
		if err != nil {
			return nil, apperrors.Wrapf(err, "alert %d", id)
		}

		al, err := engine.NewAlert(id, model)
		if err != nil {
			return nil, err
		}

		for _, row := range rows {
			acct, ok := engine.Account(row.AccountID)
			if !ok {
				return nil, apperrors.NewValidationError("acct_id", row.AccountID, fmt.Sprintf("alert %d references an unknown account", id))
			}
			if al.HasMember(acct) {
				return nil, apperrors.NewValidationError("acct_id", row.AccountID, fmt.Sprintf("listed twice in alert %d", id))
			}
			if err := al.AddMember(acct); err != nil {
				return nil, err
			}
		}

		for _, row := range rows {
			if !row.IsMain || !row.IsSAR {
				continue
			}
			acct, _ := engine.Account(row.AccountID)
			if err := al.SetSubjectAccount(acct); err != nil {
				return nil, err
			}
		}

		logger.Debug().
			Int64("alert_id", id).
			Str("typology", first.Typology).
			Int("members", len(rows)).
			Bool("is_sar", al.IsSAR()).
			Msg("Alert created")
	}

	return engine, nil
}

func groupByAlert(rows []models.AlertMemberRow) ([]int64, map[int64][]models.AlertMemberRow) {
	order := make([]int64, 0)
	groups := make(map[int64][]models.AlertMemberRow)
	for _, row := range rows {
		if _, seen := groups[row.AlertID]; !seen {
			order = append(order, row.AlertID)
		}
		groups[row.AlertID] = append(groups[row.AlertID], row)
	}
	return order, groups
}
