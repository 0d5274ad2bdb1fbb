package cli

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/harun/feedbackbot/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusHelp(t *testing.T) {
	out, err := runCommand(t, nil, "status", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "feedbackbot status")
}

func TestStatusAfterHelp(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	_, err := runCommand(t, nil, "status", "--help")
	require.NoError(t, err)

	out, err := runCommand(t, nil, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: stopped")
	assert.NotContains(t, out, "Usage:")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStatusReportsState(t *testing.T) {
	cfgPath, dataDir := writeTestConfig(t)

	out, err := runCommand(t, nil, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: stopped")

	pidFile := daemon.PIDFilePath(dataDir)
	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))

	out, err = runCommand(t, nil, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: running")
	assert.Contains(t, out, "PID: "+strconv.Itoa(os.Getpid()))
}
