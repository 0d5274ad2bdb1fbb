package cli

import (
	"fmt"

	"github.com/harun/feedbackbot/internal/daemon"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the feedback bot in the foreground",
	Long: `Run the feedback bot in the foreground.
Polls Telegram for messages, records feedback into the ledger, serves the
health endpoint and runs the weekly report. Stops on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	log.Info().Str("config", cfg.String()).Msg("Configuration loaded")

	d, err := daemon.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Startup failed")
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	d.Wait()
	return nil
}
