package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

var importsStatus string

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "Inspect and retry transaction imports",
}

var importsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import audit rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		uow, err := app.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer uow.Rollback()

		var rows []*domain.TransactionImport
		if importsStatus != "" {
			rows, err = uow.Imports().ListByStatus(ctx, app.cfg.UserID, domain.ImportStatus(importsStatus))
		} else {
			rows, err = uow.Imports().ListByUser(ctx, app.cfg.UserID)
		}
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No imports found.")
			return nil
		}
		for _, row := range rows {
			detail := ""
			if row.ErrorMessage != "" {
				detail = "  " + row.ErrorMessage
			}
			if row.AccountingTransactionID != nil {
				detail = "  -> " + row.AccountingTransactionID.String()
			}
			fmt.Printf("%-10s %s%s\n", row.Status, row.BankTransactionID, detail)
		}
		return nil
	},
}

var importsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset failed and skipped imports to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.imports.RetryFailedImports(ctx, app.cfg.UserID)
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d imports to pending. The next sync picks them up.\n", n)
		return nil
	},
}

func init() {
	importsListCmd.Flags().StringVar(&importsStatus, "status", "",
		"filter by status (pending, success, failed, duplicate, skipped)")
	importsCmd.AddCommand(importsListCmd)
	importsCmd.AddCommand(importsRetryCmd)
}
