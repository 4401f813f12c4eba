// Package cmd provides the kontobuch CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maltewinckler/kontobuch/internal/categorize"
	"github.com/maltewinckler/kontobuch/internal/config"
	"github.com/maltewinckler/kontobuch/internal/importer"
	"github.com/maltewinckler/kontobuch/internal/infra/sqlite"
	"github.com/maltewinckler/kontobuch/internal/ledger"
	"github.com/maltewinckler/kontobuch/internal/logger"
)

var (
	envFile string
	dbPath  string
	userID  string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "kontobuch",
	Short: "Personal double-entry ledger with bank statement import",
	Long: `kontobuch keeps a personal double-entry ledger and imports bank
statements into it.

Imported transactions are deduplicated, internal transfers between your own
accounts are paired into a single booking, and everything else is
categorized by your rules first and an AI provider second.

Example:
  kontobuch sync statement.json
  kontobuch balances
  kontobuch imports list --status failed`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are printed once, here.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env in the working directory)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides KONTOBUCH_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user id (overrides KONTOBUCH_USER_ID)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(importsCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// app holds the wired services shared by all commands.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	db  *sqlite.DB

	accounts  *importer.AccountImportService
	imports   *importer.ImportService
	balance   *ledger.BalanceService
	reconcile *importer.ReconciliationService
}

// newApp loads configuration and wires the service graph against the SQLite
// store. The AI provider is attached only when an API key is configured;
// without it categorization stops at user rules and the fallback accounts.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if userID != "" {
		cfg.UserID = userID
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if debug {
		level = zerolog.DebugLevel
	}
	log := logger.New(level)

	db, err := sqlite.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	var provider categorize.Provider
	if cfg.Gemini.Enabled() {
		gemini, err := categorize.NewGeminiProvider(ctx, cfg.Gemini.Model)
		if err != nil {
			db.Close()
			return nil, err
		}
		provider = gemini
	} else {
		log.Debug().Msg("no AI key configured, categorization uses rules only")
	}

	resolver := categorize.NewResolver(provider, log)
	transfers := importer.NewTransferService(log)
	if cfg.Transfer.MatchWindowDays > 0 {
		transfers.MatchWindowDays = cfg.Transfer.MatchWindowDays
	}
	accounts := importer.NewAccountImportService(db, log)
	balance := ledger.NewBalanceService(log)

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		accounts:  accounts,
		imports:   importer.NewImportService(db, resolver, transfers, accounts, log),
		balance:   balance,
		reconcile: importer.NewReconciliationService(db, balance, log),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("closing database")
	}
}
