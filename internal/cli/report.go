package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/feedbackbot/internal/daemon"
	"github.com/harun/feedbackbot/pkg/cron"
	"github.com/harun/feedbackbot/pkg/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the weekly report once and print it",
	Long: `Read the ledger, summarize the feedback of the lookback window ending now
and print the report. Nothing is sent to Telegram.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newCommandLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), cfg.TaskTimeout())
	defer cancel()

	lg, err := daemon.OpenLedger(ctx, cfg, log.GetZerolog())
	if err != nil {
		return err
	}
	defer lg.Close()

	reporter := daemon.NewReporter(cfg, lg.Reader, log.GetZerolog(), report.WriterDeliverer{W: cmd.OutOrStdout()})
	return reporter.Run(ctx, cron.Firing{
		Task:        cfg.Schedule.Task,
		ScheduledAt: time.Now(),
		Manual:      true,
	})
}
