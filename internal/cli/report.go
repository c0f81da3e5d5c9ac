package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"amlsim/internal/models"
	"amlsim/internal/report"
	"amlsim/internal/store"
	"amlsim/pkg/utils"
)

func newReportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect stored runs",
		Long:  "List stored simulation runs and the alert groups they produced.",
	}

	cmd.AddCommand(newReportRunsCmd(app))
	cmd.AddCommand(newReportAlertsCmd(app))
	cmd.AddCommand(newReportTransactionsCmd(app))

	return cmd
}

func newReportRunsCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dataStore, err := app.OpenStore()
			if err != nil {
				return err
			}

			runs, err := dataStore.GetRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No runs stored")
				return nil
			}

			table := NewTable(output, "ID", "NAME", "STEPS", "SEED", "TXS", "SKIPPED", "STARTED")
			for _, r := range runs {
				table.AddRow(
					r.ID,
					r.Name,
					fmt.Sprint(r.Steps),
					fmt.Sprint(r.Seed),
					fmt.Sprint(r.Transactions),
					fmt.Sprint(r.Skipped),
					FormatDateTime(r.StartedAt),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	return cmd
}

func newReportAlertsCmd(app *App) *cobra.Command {
	var (
		sarOnly  bool
		typology string
	)

	cmd := &cobra.Command{
		Use:   "alerts <run-id>",
		Short: "Show the alert groups of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dataStore, err := app.OpenStore()
			if err != nil {
				return err
			}

			run, err := dataStore.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reports, err := dataStore.GetAlertReports(cmd.Context(), run.ID, store.AlertFilter{SAROnly: sarOnly, Typology: typology})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(reports)
			}
			printAlerts(output, run, reports)
			return nil
		},
	}

	cmd.Flags().BoolVar(&sarOnly, "sar", false, "only SAR alerts")
	cmd.Flags().StringVar(&typology, "typology", "", "only alerts of this typology")
	return cmd
}

func printAlerts(output *Output, run *models.Run, reports []models.AlertReport) {
	output.Bold("Run %s (%s)", run.ID, run.Name)
	if len(reports) == 0 {
		output.Dim("No alerts match")
		return
	}

	table := NewTable(output, "ALERT", "TYPOLOGY", "CLASS", "PRIMARY", "MEMBERS")
	for _, r := range reports {
		table.AddRow(
			fmt.Sprint(r.AlertID),
			r.Typology,
			output.SARLabel(r.IsSAR),
			r.PrimaryID,
			FormatMembers(r.MemberIDs, 6),
		)
	}
	table.Render()
}

func newReportTransactionsCmd(app *App) *cobra.Command {
	var (
		alertID int64
		account string
		sarOnly bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "transactions <run-id>",
		Short: "Show the transactions of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dataStore, err := app.OpenStore()
			if err != nil {
				return err
			}

			filter := store.TransactionFilter{
				RunID:     args[0],
				AccountID: account,
				SAROnly:   sarOnly,
				Limit:     limit,
			}
			if cmd.Flags().Changed("alert") {
				filter.AlertID = &alertID
			}

			txs, err := dataStore.GetTransactions(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(txs)
			}
			if len(txs) == 0 {
				output.Dim("No transactions match")
				return nil
			}

			table := NewTable(output, "STEP", "FROM", "TO", "AMOUNT", "ALERT", "TYPE")
			for _, tx := range txs {
				table.AddRow(
					fmt.Sprint(tx.Step),
					tx.OrigID,
					tx.BeneID,
					utils.FormatAmount(tx.Amount),
					fmt.Sprint(tx.AlertID),
					tx.Typology,
				)
			}
			table.Render()

			s := report.Summarize(nil, txs)
			output.Dim("%d transactions, %s total", s.Transactions, utils.FormatCompact(s.TotalAmount))
			return nil
		},
	}

	cmd.Flags().Int64Var(&alertID, "alert", 0, "only transactions of this alert")
	cmd.Flags().StringVar(&account, "account", "", "only transactions touching this account")
	cmd.Flags().BoolVar(&sarOnly, "sar", false, "only SAR transactions")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum transactions to list (0 for all)")
	return cmd
}
