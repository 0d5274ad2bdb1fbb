package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/feedbackbot/pkg/dialogue"
	"github.com/harun/feedbackbot/pkg/ledger/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimulatedLine(t *testing.T) {
	simulateUserID, simulateName = "9", "tester"

	msg := parseSimulatedLine("hello there")
	assert.Equal(t, "hello there", msg.Text)
	assert.Empty(t, msg.Command)
	assert.Equal(t, "9", msg.UserID)
	assert.Equal(t, "tester", msg.DisplayName)

	msg = parseSimulatedLine("/Start@feedback_bot now")
	assert.Equal(t, "start", msg.Command)
	assert.Equal(t, "now", msg.Args)

	msg = parseSimulatedLine("/cancel")
	assert.Equal(t, "cancel", msg.Command)
	assert.Empty(t, msg.Args)
}

func TestSimulateThenReport(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	msgs := dialogue.DefaultMessages()

	out, err := runCommand(t, strings.NewReader("/start\nthe search is great\n\n/cancel\n"),
		"simulate", "--config", cfgPath, "--user", "42", "--name", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "bot> "+msgs.Prompt)
	assert.Contains(t, out, "bot> "+msgs.Ack)
	assert.Contains(t, out, "bot> "+msgs.NothingToCancel)

	out, err = runCommand(t, nil, "report", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Feedback report")
	assert.Contains(t, out, "Total: 1 from 1 user(s)")
	assert.Contains(t, out, "alice: the search is great")
}

func TestReportEmptyLedger(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	out, err := runCommand(t, nil, "report", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No feedback received in this period.")
}

func TestLedgerInit(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	out, err := runCommand(t, nil, "ledger", "init", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Ledger ready: feedback (sqlite)")

	out, err = runCommand(t, nil, "ledger", "init", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Ledger ready")
}

func TestReportWarningsReachStderr(t *testing.T) {
	cfgPath, dataDir := writeTestConfig(t)

	_, err := runCommand(t, nil, "ledger", "init", "--config", cfgPath)
	require.NoError(t, err)

	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(dataDir, "ledger.db"), zerolog.Nop())
	require.NoError(t, err)
	table, err := store.OpenTable(ctx, "feedback")
	require.NoError(t, err)
	require.NoError(t, store.AppendRow(ctx, table, []string{"yesterday-ish", "bob", "hand edited"}))
	require.NoError(t, store.Close())

	out, stderr, err := runCommandStderr(t, nil, "report", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No feedback received in this period.")
	assert.Contains(t, stderr, "Skipping unreadable ledger row")
	assert.NotContains(t, stderr, "Ledger table found")
}

func TestServeFailsWithoutToken(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("FEEDBACKBOT_TELEGRAM_BOT_TOKEN", "")

	_, err := runCommand(t, nil, "serve", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_TOKEN")
}
