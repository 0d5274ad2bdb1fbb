package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/feedbackbot/internal/daemon"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the feedback ledger",
}

var ledgerInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the feedback table if it does not exist",
	Long: `Open the configured ledger and create the feedback table with its
header row when it does not exist yet. An existing table is left untouched.`,
	RunE: runLedgerInit,
}

func init() {
	ledgerCmd.AddCommand(ledgerInitCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func runLedgerInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newCommandLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), 30*time.Second)
	defer cancel()

	lg, err := daemon.OpenLedger(ctx, cfg, log.GetZerolog())
	if err != nil {
		return err
	}
	defer lg.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Ledger ready: %s (%s)\n", lg.Table.Name, cfg.Ledger.Driver)
	return nil
}
