package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maltewinckler/kontobuch/internal/importer"
)

var syncRetryFirst bool

var syncCmd = &cobra.Command{
	Use:   "sync <statement.json>",
	Short: "Import a bank statement file into the ledger",
	Long: `Sync reads a statement JSON file produced by a bank adapter and imports
it: the bank account is linked to the chart of accounts on first sight, an
opening balance is seeded when the bank reported one, and every raw
transaction is booked exactly once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		bank, txs, err := importer.LoadStatementFile(args[0])
		if err != nil {
			return err
		}

		if syncRetryFirst {
			n, err := app.imports.RetryFailedImports(ctx, app.cfg.UserID)
			if err != nil {
				return err
			}
			if n > 0 {
				fmt.Printf("Reset %d failed/skipped imports to pending.\n", n)
			}
		}

		result, err := app.imports.SyncAccount(ctx, app.cfg.UserID, bank, txs)
		if err != nil {
			return err
		}

		fmt.Printf("Imported: %d  Duplicates: %d  Skipped: %d  Failed: %d\n",
			result.Imported, result.Duplicates, result.Skipped, result.Failed)
		for _, outcome := range result.Outcomes {
			if outcome.Error != "" {
				fmt.Printf("  %s  %s: %s\n", outcome.Status, outcome.BankTransactionID, outcome.Error)
			}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncRetryFirst, "retry-failed", false,
		"reset failed and skipped imports to pending before syncing")
}
