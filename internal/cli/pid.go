package cli

import (
	"os"
	"path/filepath"

	"github.com/harun/feedbackbot/internal/config"
	"github.com/harun/feedbackbot/internal/daemon"
)

func getPIDFilePath() string {
	if cfg, err := config.Load(cfgFile); err == nil && cfg.DataDir != "" {
		return daemon.PIDFilePath(cfg.DataDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), daemon.PIDFileName)
	}
	return daemon.PIDFilePath(filepath.Join(home, ".feedbackbot"))
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
