package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config file for a sqlite ledger inside a fresh
// data directory and isolates HOME.
func writeTestConfig(t *testing.T) (path, dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	t.Setenv("HOME", t.TempDir())

	raw, err := json.Marshal(map[string]any{
		"timezone": "UTC",
		"data_dir": dataDir,
		"ledger": map[string]any{
			"driver": "sqlite",
			"name":   "feedback",
			"dsn":    filepath.Join(dataDir, "ledger.db"),
		},
		"logging": map[string]any{
			"level": "error",
		},
	})
	require.NoError(t, err)

	path = filepath.Join(dataDir, "config.json")
	require.NoError(t, os.WriteFile(path, raw, 0600))
	return path, dataDir
}

// runCommand executes the root command with args and stdin.
func runCommand(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCommandStderr(t, stdin, args...)
	return out, err
}

// runCommandStderr is runCommand that also returns what went to stderr.
func runCommandStderr(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	cmd := GetRootCmd()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if stdin == nil {
		stdin = bytes.NewReader(nil)
	}
	cmd.SetIn(stdin)
	cmd.SetArgs(args)
	t.Cleanup(func() {
		cmd.SetIn(os.Stdin)
		cmd.SetOut(nil)
		cmd.SetErr(nil)
		cfgFile = ""
		logLevel = ""
		simulateUserID = "1"
		simulateName = "local"
		stopTimeout = 30
		resetBuiltinFlags(cmd)
	})

	resetBuiltinFlags(cmd)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// resetBuiltinFlags clears --help and --version, which cobra leaves set on a
// command after a run that used them.
func resetBuiltinFlags(cmd *cobra.Command) {
	for _, name := range []string{"help", "version"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = f.Value.Set("false")
			f.Changed = false
		}
	}
	for _, sub := range cmd.Commands() {
		resetBuiltinFlags(sub)
	}
}
