package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// FEEDBACKBOT_LEDGER_DRIVER.
const EnvPrefix = "FEEDBACKBOT"

// legacyEnv maps config keys to the short environment names used by
// existing deployments. The prefixed form wins when both are set.
var legacyEnv = map[string]string{
	"telegram.bot_token": "BOT_TOKEN",
	"health.port":        "PORT",
	"ledger.dsn":         "LEDGER_DSN",
	"ledger.name":        "LEDGER_NAME",
	"timezone":           "TZ_NAME",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads defaults, the optional config file and the environment, in
// increasing order of precedence. An explicit path that does not exist is an
// error; the default path is optional.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	// Read environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if filepath.Ext(configPath) == "" {
				v.SetConfigType("json")
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) || l.configPath != "" {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	// Unmarshal into config struct
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".feedbackbot")
	}

	// Default sqlite file lives in the data directory
	if cfg.Ledger.Driver == DriverSQLite && cfg.Ledger.DSN == "" {
		cfg.Ledger.DSN = filepath.Join(cfg.DataDir, "ledger.db")
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("timezone", cfg.Timezone)
	v.SetDefault("data_dir", cfg.DataDir)

	v.SetDefault("telegram.bot_token", cfg.Telegram.BotToken)
	v.SetDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	v.SetDefault("telegram.register_commands", cfg.Telegram.RegisterCommands)
	v.SetDefault("telegram.dedupe_ttl_seconds", cfg.Telegram.DedupeTTLSeconds)

	v.SetDefault("ledger.driver", cfg.Ledger.Driver)
	v.SetDefault("ledger.name", cfg.Ledger.Name)
	v.SetDefault("ledger.dsn", cfg.Ledger.DSN)
	v.SetDefault("ledger.write_timeout_seconds", cfg.Ledger.WriteTimeoutSeconds)

	v.SetDefault("dialogue.session_ttl_minutes", cfg.Dialogue.SessionTTLMinutes)
	v.SetDefault("dialogue.messages.prompt", cfg.Dialogue.Messages.Prompt)
	v.SetDefault("dialogue.messages.ack", cfg.Dialogue.Messages.Ack)
	v.SetDefault("dialogue.messages.cancelled", cfg.Dialogue.Messages.Cancelled)
	v.SetDefault("dialogue.messages.failure", cfg.Dialogue.Messages.Failure)
	v.SetDefault("dialogue.messages.nothing_to_cancel", cfg.Dialogue.Messages.NothingToCancel)
	v.SetDefault("dialogue.messages.idle_hint", cfg.Dialogue.Messages.IdleHint)

	v.SetDefault("schedule.enabled", cfg.Schedule.Enabled)
	v.SetDefault("schedule.task", cfg.Schedule.Task)
	v.SetDefault("schedule.trigger", cfg.Schedule.Trigger)
	v.SetDefault("schedule.lookback_days", cfg.Schedule.LookbackDays)
	v.SetDefault("schedule.timeout_seconds", cfg.Schedule.TimeoutSeconds)
	v.SetDefault("schedule.report_chat_ids", cfg.Schedule.ReportChatIDs)

	v.SetDefault("health.host", cfg.Health.Host)
	v.SetDefault("health.port", cfg.Health.Port)
	v.SetDefault("health.body", cfg.Health.Body)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".feedbackbot", "config.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
