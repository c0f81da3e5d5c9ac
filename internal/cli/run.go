package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	apperrors "amlsim/internal/errors"
	"amlsim/internal/logging"
	"amlsim/internal/models"
	"amlsim/internal/report"
	"amlsim/internal/simulation"
	"amlsim/internal/store"
	"amlsim/internal/typology"
	"amlsim/pkg/utils"
)

// RunOutput is the result of the run command.
type RunOutput struct {
	Run     models.Run
	Summary   models.RunSummary
	Emissions map[string]int
	Files     []string
}

func newRunCmd(app *App) *cobra.Command {
	var (
		steps  int64
		seed   uint64
		noCSV  bool
		noSave bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		Long: `Run a simulation over the configured accounts and alert groups.

Writes alert_accounts.csv and transactions.csv under the output directory
and stores the run in the database unless disabled.`,
		Example: `  amlsim run
  amlsim run --steps 90 --seed 7
  amlsim run --no-save --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			simCfg := simulation.Config{
				Name:  cfg.Simulation.Name,
				Steps: cfg.Simulation.Steps,
				Seed:  cfg.Simulation.Seed,
			}
			if cmd.Flags().Changed("steps") {
				simCfg.Steps = steps
			}
			if cmd.Flags().Changed("seed") {
				simCfg.Seed = seed
			}

			result, err := executeRun(cmd.Context(), app, simCfg, !noCSV && cfg.Output.WriteCSV, !noSave && cfg.Output.Persist)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printRun(output, result)
			return nil
		},
	}

	cmd.Flags().Int64Var(&steps, "steps", 0, "number of steps (overrides config)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "base seed (overrides config)")
	cmd.Flags().BoolVar(&noCSV, "no-csv", false, "skip writing CSV reports")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "skip storing the run in the database")

	return cmd
}

func executeRun(ctx context.Context, app *App, simCfg simulation.Config, writeCSV, persist bool) (*RunOutput, error) {
	cfg := app.Config
	logger := app.Logger

	engine, err := simulation.Load(simCfg, simulation.Input{
		AccountsFile:     cfg.ResolvePath(cfg.Simulation.AccountsFile),
		AlertMembersFile: cfg.ResolvePath(cfg.Simulation.AlertMembersFile),
	}, logger)
	if err != nil {
		return nil, err
	}

	result, err := engine.Run(logging.WithLogger(ctx, logger))
	if err != nil {
		return nil, err
	}

	reports := report.Build(engine.Alerts())
	out := &RunOutput{
		Run:       result.Run,
		Summary:   report.Summarize(reports, result.Transactions),
		Emissions: result.Emissions,
	}
	logging.LogSummary(logging.WithRun(logger, result.Run.ID), out.Summary)

	if writeCSV {
		dir := filepath.Join(cfg.Output.Dir, simCfg.Name)
		files, err := report.Export(dir, reports, result.Transactions)
		if err != nil {
			return nil, err
		}
		out.Files = files
	}

	if persist {
		if err := saveRun(ctx, app, &result.Run, reports, result.Transactions); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func saveRun(ctx context.Context, app *App, run *models.Run, reports []models.AlertReport, txs []models.Transaction) error {
	dataStore, err := app.OpenStore()
	if err != nil {
		return apperrors.Wrap(err, "opening store")
	}

	retryCfg := utils.DefaultRetryConfig()
	retryCfg.Retryable = store.IsBusy

	steps := []struct {
		name string
		fn   func() error
	}{
		{"run", func() error { return dataStore.SaveRun(ctx, run) }},
		{"alerts", func() error { return dataStore.SaveAlertReports(ctx, run.ID, reports) }},
		{"transactions", func() error { return dataStore.SaveTransactions(ctx, run.ID, txs) }},
	}
	for _, s := range steps {
		if err := utils.Retry(ctx, retryCfg, s.fn); err != nil {
			return apperrors.Wrapf(err, "saving %s", s.name)
		}
	}

	app.Logger.Debug().Str("run_id", run.ID).Msg("Run stored")
	return nil
}

func printRun(output *Output, r *RunOutput) {
	s := r.Summary

	output.Success("Simulation %s finished", r.Run.ID)
	output.Printf("  Steps:         %d (seed %d)\n", r.Run.Steps, r.Run.Seed)
	output.Printf("  Elapsed:       %s\n", FormatDuration(r.Run.FinishedAt.Sub(r.Run.StartedAt)))
	output.Println()

	output.Bold("Alerts")
	output.Printf("  Total:         %d\n", s.Alerts)
	output.Printf("  SAR:           %s (%s)\n", output.Red(fmt.Sprint(s.SARAlerts)), utils.FormatRatio(s.SARAlerts, s.Alerts))
	output.Printf("  False alerts:  %s\n", output.Green(fmt.Sprint(s.FalseAlerts)))
	output.Printf("  Accounts:      %d\n", s.Accounts)
	output.Println()

	output.Bold("Transactions")
	output.Printf("  Settled:       %d (%d SAR)\n", s.Transactions, s.SARTxCount)
	if r.Run.Skipped > 0 {
		output.Printf("  Skipped:       %s\n", output.Yellow(fmt.Sprint(r.Run.Skipped)))
	}
	output.Printf("  Total amount:  %s\n", utils.FormatAmount(s.TotalAmount))
	output.Printf("  Mean / stddev: %.2f / %.2f\n", s.MeanAmount, s.StdDevAmount)
	for _, name := range typology.Names() {
		if n, ok := r.Emissions[name]; ok {
			output.Printf("  %-14s %d\n", name+":", n)
		}
	}

	if len(r.Files) > 0 {
		output.Println()
		output.Bold("Files")
		for _, f := range r.Files {
			output.Printf("  %s\n", f)
		}
	}
}
