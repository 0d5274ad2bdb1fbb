package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/harun/feedbackbot/internal/telegram"
	"github.com/harun/feedbackbot/pkg/cron"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}
	if err := telegram.CheckTokenFormat(token); err != nil {
		return fmt.Errorf("invalid Telegram bot token: %w", err)
	}
	return nil
}

// ValidateDriver validates a ledger driver name
func (v *Validator) ValidateDriver(driver string) error {
	validDrivers := []string{DriverSQLite, DriverPostgres, DriverMemory}
	for _, valid := range validDrivers {
		if driver == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid ledger driver: %s (must be one of: %s)", driver, strings.Join(validDrivers, ", "))
}

// ValidateTimezone validates an IANA zone name
func (v *Validator) ValidateTimezone(name string) error {
	if strings.TrimSpace(name) == "" {
		return nil // Use default
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("invalid timezone: %s", name)
	}
	return nil
}

// ValidateTrigger validates the schedule trigger expression
func (v *Validator) ValidateTrigger(expr string) error {
	if _, err := cron.ParseTrigger(expr); err != nil {
		return fmt.Errorf("invalid schedule trigger %q: %w", expr, err)
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate Telegram
	if cfg.Telegram.BotToken != "" {
		if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Telegram.DedupeTTLSeconds < 0 {
		errors = append(errors, fmt.Errorf("telegram dedupe_ttl_seconds must be >= 0"))
	}
	if cfg.Telegram.PollTimeout < 0 {
		errors = append(errors, fmt.Errorf("telegram poll_timeout must be >= 0"))
	}

	// Validate ledger
	if err := v.ValidateDriver(cfg.Ledger.Driver); err != nil {
		errors = append(errors, err)
	}
	if cfg.Ledger.WriteTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("ledger write_timeout_seconds must be >= 0"))
	}

	if err := v.ValidateTimezone(cfg.Timezone); err != nil {
		errors = append(errors, err)
	}
	if cfg.Dialogue.SessionTTLMinutes < 0 {
		errors = append(errors, fmt.Errorf("dialogue session_ttl_minutes must be >= 0"))
	}

	// Validate schedule
	if cfg.Schedule.Enabled {
		if strings.TrimSpace(cfg.Schedule.Task) == "" {
			errors = append(errors, fmt.Errorf("schedule task name is required"))
		}
		if err := v.ValidateTrigger(cfg.Schedule.Trigger); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Schedule.LookbackDays < 0 {
		errors = append(errors, fmt.Errorf("schedule lookback_days must be >= 0"))
	}

	if err := v.ValidatePort(cfg.Health.Port); err != nil {
		errors = append(errors, fmt.Errorf("health: %w", err))
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
