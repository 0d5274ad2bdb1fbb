package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harun/feedbackbot/internal/daemon"
	"github.com/harun/feedbackbot/pkg/channels"
	"github.com/harun/feedbackbot/pkg/dialogue"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	simulateUserID string
	simulateName   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Talk to the bot from the terminal",
	Long: `Read messages from stdin, one per line, and run them through the feedback
dialogue as a single user. Lines starting with "/" are commands (/start,
/cancel). Replies are printed to stdout and feedback is written to the
configured ledger.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateUserID, "user", "1", "user id to send as")
	simulateCmd.Flags().StringVar(&simulateName, "name", "local", "display name recorded with feedback")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newCommandLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx := commandContext(cmd)

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	lg, err := daemon.OpenLedger(openCtx, cfg, log.GetZerolog())
	cancel()
	if err != nil {
		return err
	}
	defer lg.Close()

	messages := cfg.Dialogue.Messages
	tracker, err := dialogue.NewTracker(lg.Writer, dialogue.Options{
		Messages:   &messages,
		SessionTTL: cfg.SessionTTL(),
		Logger:     log.GetZerolog(),
	})
	if err != nil {
		return err
	}

	return simulate(ctx, tracker, cmd.InOrStdin(), cmd.OutOrStdout(), log.GetZerolog())
}

// simulate feeds each stdin line through a direct channel. Dispatch is
// synchronous so replies print in order.
func simulate(ctx context.Context, tracker *dialogue.Tracker, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	direct := channels.NewDirectChannel("direct")
	var registry *channels.Registry
	registry = channels.NewRegistry(func(ctx context.Context, msg channels.InboundMessage) error {
		ev := dialogue.Event{
			UserID:      msg.UserID,
			DisplayName: msg.DisplayName,
			Text:        msg.Text,
			Command:     msg.Command,
		}
		outcome, err := tracker.Handle(ctx, ev, dialogue.ReplyFunc(func(ctx context.Context, text string) error {
			return registry.Reply(ctx, msg, text)
		}))
		logger.Debug().Str("outcome", string(outcome)).Msg("Simulated event handled")
		return err
	})
	if err := registry.Register(direct); err != nil {
		return err
	}
	direct.OnReply(func(r channels.Reply) {
		fmt.Fprintf(out, "bot> %s\n", r.Text)
	})

	if err := registry.StartAll(ctx); err != nil {
		return err
	}
	defer registry.StopAll(context.Background())

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := direct.Send(ctx, parseSimulatedLine(line)); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func parseSimulatedLine(line string) channels.InboundMessage {
	msg := channels.InboundMessage{
		UserID:      simulateUserID,
		DisplayName: simulateName,
		Text:        line,
	}
	if !strings.HasPrefix(line, "/") {
		return msg
	}

	head, rest, _ := strings.Cut(line[1:], " ")
	if at := strings.Index(head, "@"); at >= 0 {
		head = head[:at]
	}
	msg.Command = strings.ToLower(head)
	msg.Args = strings.TrimSpace(rest)
	return msg
}
