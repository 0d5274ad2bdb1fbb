package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/feedbackbot/pkg/dialogue"
)

// Ledger drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DefaultTimezone is the zone used for ledger timestamps and the schedule.
const DefaultTimezone = "Asia/Taipei"

// Config represents the main feedbackbot configuration
type Config struct {
	// Timezone is an IANA zone name shared by the ledger and the scheduler.
	Timezone string `json:"timezone" mapstructure:"timezone"`

	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`
	Ledger   LedgerConfig   `json:"ledger" mapstructure:"ledger"`
	Dialogue DialogueConfig `json:"dialogue" mapstructure:"dialogue"`
	Schedule ScheduleConfig `json:"schedule" mapstructure:"schedule"`
	Health   HealthConfig   `json:"health" mapstructure:"health"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken         string `json:"bot_token" mapstructure:"bot_token"`
	PollTimeout      int    `json:"poll_timeout" mapstructure:"poll_timeout"` // seconds
	RegisterCommands bool   `json:"register_commands" mapstructure:"register_commands"`
	DedupeTTLSeconds int    `json:"dedupe_ttl_seconds" mapstructure:"dedupe_ttl_seconds"`
}

// LedgerConfig selects and addresses the ledger backend.
type LedgerConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // sqlite, postgres, memory
	// Name is the ledger table the feedback rows go to.
	Name string `json:"name" mapstructure:"name"`
	// DSN is the sqlite file path or the postgres connection string.
	DSN                 string `json:"dsn" mapstructure:"dsn"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
}

// DialogueConfig tunes the feedback conversation.
type DialogueConfig struct {
	SessionTTLMinutes int               `json:"session_ttl_minutes" mapstructure:"session_ttl_minutes"`
	Messages          dialogue.Messages `json:"messages" mapstructure:"messages"`
}

// ScheduleConfig holds the weekly report task.
type ScheduleConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Task    string `json:"task" mapstructure:"task"`
	// Trigger is "mon 09:00" or a five-field cron expression.
	Trigger        string  `json:"trigger" mapstructure:"trigger"`
	LookbackDays   int     `json:"lookback_days" mapstructure:"lookback_days"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	ReportChatIDs  []int64 `json:"report_chat_ids" mapstructure:"report_chat_ids"`
}

// HealthConfig holds the health-check HTTP server settings.
type HealthConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
	Body string `json:"body" mapstructure:"body"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Timezone: DefaultTimezone,
		Telegram: TelegramConfig{
			PollTimeout:      60,
			RegisterCommands: true,
			DedupeTTLSeconds: 600,
		},
		Ledger: LedgerConfig{
			Driver:              DriverSQLite,
			Name:                "feedback",
			WriteTimeoutSeconds: 15,
		},
		Dialogue: DialogueConfig{
			SessionTTLMinutes: 0,
			Messages:          dialogue.DefaultMessages(),
		},
		Schedule: ScheduleConfig{
			Enabled:        true,
			Task:           "weekly_report",
			Trigger:        "mon 09:00",
			LookbackDays:   7,
			TimeoutSeconds: 300,
		},
		Health: HealthConfig{
			Host: "0.0.0.0",
			Port: 10000,
			Body: "🤖 Telegram Feedback Bot is running!",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// WriteTimeout returns the ledger append deadline.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Ledger.WriteTimeoutSeconds) * time.Second
}

// SessionTTL returns how long an unanswered prompt stays open, 0 for forever.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Dialogue.SessionTTLMinutes) * time.Minute
}

// Lookback returns the first-run report window.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Schedule.LookbackDays) * 24 * time.Hour
}

// TaskTimeout returns the scheduled task deadline.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Schedule.TimeoutSeconds) * time.Second
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Telegram.BotToken != "" {
		masked.Telegram.BotToken = "***"
	}
	if masked.Ledger.Driver == DriverPostgres && masked.Ledger.DSN != "" {
		masked.Ledger.DSN = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks required settings and value formats. The bot token is
// checked only when set; see RequireBotToken.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Ledger.Name) == "" {
		errs = append(errs, fmt.Errorf("ledger name is required"))
	}
	if c.Ledger.Driver == DriverPostgres && strings.TrimSpace(c.Ledger.DSN) == "" {
		errs = append(errs, fmt.Errorf("ledger dsn is required for the postgres driver"))
	}

	errs = append(errs, NewValidator().ValidateConfig(c)...)
	return errors.Join(errs...)
}

// RequireBotToken fails when no Telegram bot token is configured.
func (c *Config) RequireBotToken() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram bot token is required (set BOT_TOKEN or telegram.bot_token)")
	}
	return nil
}
