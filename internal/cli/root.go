package cli

import (
	"context"
	"fmt"

	"github.com/harun/feedbackbot/internal/config"
	"github.com/harun/feedbackbot/internal/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feedbackbot",
	Short: "Feedbackbot - Telegram feedback collector",
	Long: `Feedbackbot collects free-text feedback from Telegram users into a
tabular ledger and sends a weekly summary of what was received.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.feedbackbot/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads and validates the configuration, applying --log-level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger for the long-running daemon. Log lines
// go to stderr so stdout stays clean for command output.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	return logger.New(loggerConfig(cmd, cfg, ""))
}

// newCommandLogger builds the logger for one-shot commands. Warnings and
// errors always reach stderr; the log file keeps the configured level.
func newCommandLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	return logger.New(loggerConfig(cmd, cfg, "warn"))
}

func loggerConfig(cmd *cobra.Command, cfg *config.Config, consoleLevel string) logger.Config {
	return logger.Config{
		Level:        cfg.Logging.Level,
		File:         cfg.Logging.File,
		Console:      true,
		ConsoleLevel: consoleLevel,
		Pretty:       cfg.Logging.Pretty,
		Redaction:    cfg.Logging.Redaction,
		MaxSize:      cfg.Logging.MaxSize,
		MaxAge:       cfg.Logging.MaxAge,
		Compress:     cfg.Logging.Compress,
		Output:       cmd.ErrOrStderr(),
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
