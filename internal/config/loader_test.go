package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("explicit missing file is an error", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), "nonexistent.json")).Load()
		assert.Error(t, err)
	})

	t.Run("defaults without a file", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".feedbackbot"), cfg.DataDir)
		assert.Equal(t, filepath.Join(home, ".feedbackbot", "ledger.db"), cfg.Ledger.DSN)
		assert.Equal(t, "mon 09:00", cfg.Schedule.Trigger)
	})

	t.Run("load config from json file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"timezone": "UTC",
			"data_dir": "` + tmpDir + `",
			"telegram": {"bot_token": "` + testToken + `"},
			"ledger": {"driver": "memory", "name": "responses"},
			"schedule": {"trigger": "fri 17:30", "report_chat_ids": [-100, -200]},
			"dialogue": {"messages": {"prompt": "Tell us!", "idle_hint": ""}}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "UTC", cfg.Timezone)
		assert.Equal(t, testToken, cfg.Telegram.BotToken)
		assert.Equal(t, DriverMemory, cfg.Ledger.Driver)
		assert.Equal(t, "responses", cfg.Ledger.Name)
		assert.Empty(t, cfg.Ledger.DSN)
		assert.Equal(t, "fri 17:30", cfg.Schedule.Trigger)
		assert.Equal(t, []int64{-100, -200}, cfg.Schedule.ReportChatIDs)
		assert.Equal(t, "Tell us!", cfg.Dialogue.Messages.Prompt)
		assert.Empty(t, cfg.Dialogue.Messages.IdleHint)
		assert.NotEmpty(t, cfg.Dialogue.Messages.Ack)
		assert.Equal(t, 10000, cfg.Health.Port)
	})

	t.Run("load config from yaml file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yaml")

		testConfig := "data_dir: " + tmpDir + "\nhealth:\n  port: 8081\nlogging:\n  level: debug\n"
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, 8081, cfg.Health.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, filepath.Join(tmpDir, "ledger.db"), cfg.Ledger.DSN)
	})

	t.Run("invalid json", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{invalid"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderEnvironment(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	t.Run("plain names", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", testToken)
		t.Setenv("PORT", "8443")
		t.Setenv("LEDGER_NAME", "survey")
		t.Setenv("LEDGER_DSN", filepath.Join(tmpDir, "custom.db"))
		t.Setenv("TZ_NAME", "Europe/Berlin")
		t.Setenv("FEEDBACKBOT_DATA_DIR", tmpDir)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, testToken, cfg.Telegram.BotToken)
		assert.Equal(t, 8443, cfg.Health.Port)
		assert.Equal(t, "survey", cfg.Ledger.Name)
		assert.Equal(t, filepath.Join(tmpDir, "custom.db"), cfg.Ledger.DSN)
		assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	})

	t.Run("prefixed names win", func(t *testing.T) {
		t.Setenv("PORT", "8443")
		t.Setenv("FEEDBACKBOT_HEALTH_PORT", "9000")
		t.Setenv("FEEDBACKBOT_LEDGER_DRIVER", "memory")
		t.Setenv("FEEDBACKBOT_SCHEDULE_ENABLED", "false")
		t.Setenv("FEEDBACKBOT_DATA_DIR", tmpDir)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Health.Port)
		assert.Equal(t, DriverMemory, cfg.Ledger.Driver)
		assert.False(t, cfg.Schedule.Enabled)
	})

	t.Run("env overrides file", func(t *testing.T) {
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"ledger": {"name": "from-file"}}`), 0644))
		t.Setenv("LEDGER_NAME", "from-env")
		t.Setenv("FEEDBACKBOT_DATA_DIR", tmpDir)

		cfg, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Ledger.Name)
	})
}
