package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopHelp(t *testing.T) {
	out, err := runCommand(t, nil, "stop", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Stop the running feedback bot")
	assert.Contains(t, out, "--timeout")
}

func TestStopWhenNotRunning(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	_, err := runCommand(t, nil, "stop", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestStopIgnoresStalePIDFile(t *testing.T) {
	cfgPath, dataDir := writeTestConfig(t)
	cfgFile = cfgPath
	pidPath := getPIDFilePath()
	cfgFile = ""
	require.Contains(t, pidPath, dataDir)

	// pid 0 never names a live process
	require.NoError(t, os.WriteFile(pidPath, []byte("0"), 0644))

	_, err := runCommand(t, nil, "stop", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}
