package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

var rulePriority int

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage categorization rules",
	Long: `Rules route matching bank transactions straight to a category account.
A transaction matches when the pattern occurs in its counterparty name or
purpose, case-insensitively. Rules always win over the AI provider; lower
priority values are tried first.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active rules in matching order",
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

		rules, err := uow.Rules().ListActiveByUser(ctx, app.cfg.UserID)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Println("No rules defined.")
			return nil
		}
		for _, rule := range rules {
			account, err := uow.Accounts().FindByID(ctx, rule.AccountID)
			name := rule.AccountID.String()
			if err == nil {
				name = account.Name
			}
			fmt.Printf("%4d  %-30q -> %s\n", rule.Priority, rule.Pattern, name)
		}
		return nil
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <pattern> <account-name>",
	Short: "Add a rule routing matching transactions to an account",
	Args:  cobra.ExactArgs(2),
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

		account, err := uow.Accounts().FindByName(ctx, app.cfg.UserID, args[1])
		if err != nil {
			return fmt.Errorf("account %q: %w", args[1], err)
		}
		if account.AccountType != domain.AccountTypeExpense && account.AccountType != domain.AccountTypeIncome {
			return fmt.Errorf("account %q is %s; rules must target an expense or income account",
				account.Name, account.AccountType)
		}

		rule, err := domain.NewCategoryRule(app.cfg.UserID, args[0], account.ID, rulePriority)
		if err != nil {
			return err
		}
		if err := uow.Rules().Save(ctx, rule); err != nil {
			return err
		}
		if err := uow.Commit(); err != nil {
			return err
		}
		fmt.Printf("Rule added: %q -> %s (priority %d)\n", rule.Pattern, account.Name, rule.Priority)
		return nil
	},
}

func init() {
	rulesAddCmd.Flags().IntVar(&rulePriority, "priority", 100, "matching order, lower first")
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddCmd)
}
