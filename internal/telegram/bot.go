package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/feedbackbot/internal/observability"
	"github.com/harun/feedbackbot/internal/tracing"
	"github.com/harun/feedbackbot/pkg/channels"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ChannelName is the channel registry name of the Telegram transport.
const ChannelName = "telegram"

// DefaultPollTimeout is the long polling timeout in seconds.
const DefaultPollTimeout = 60

// botAPI is the subset of *tgbotapi.BotAPI used by the adapter.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Options configures the Telegram bot.
type Options struct {
	Token       string
	PollTimeout int
	// RegisterCommands publishes the /start and /cancel menu on Start.
	RegisterCommands bool
	Logger           zerolog.Logger
}

// Bot represents a Telegram bot instance. It implements channels.Channel.
type Bot struct {
	api     botAPI
	self    tgbotapi.User
	options Options
	logger  zerolog.Logger
	handler *Handler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New authenticates with Telegram and returns a bot ready to Start.
func New(opts Options) (*Bot, error) {
	if err := CheckTokenFormat(opts.Token); err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := newBot(api, api.Self, opts)
	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

func newBot(api botAPI, self tgbotapi.User, opts Options) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	logger := opts.Logger.With().Str("component", "telegram").Logger()
	return &Bot{
		api:     api,
		self:    self,
		options: opts,
		logger:  logger,
		handler: NewHandler(self.UserName, logger),
	}
}

// Name returns the channel name.
func (b *Bot) Name() string {
	return ChannelName
}

// Username returns the bot's Telegram username.
func (b *Bot) Username() string {
	return b.self.UserName
}

// Start begins long polling and dispatches every text message.
func (b *Bot) Start(ctx context.Context, dispatch channels.DispatchFunc) error {
	if dispatch == nil {
		return fmt.Errorf("dispatch function is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	if b.options.RegisterCommands {
		if err := SetCommands(b.api, DefaultCommands()); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to register bot commands")
		} else {
			b.logger.Info().Int("count", len(DefaultCommands())).Msg("Bot commands updated")
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.options.PollTimeout
	updates := b.api.GetUpdatesChan(u)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true

	go b.processUpdates(runCtx, updates, dispatch, b.done)

	b.logger.Info().Str("username", b.self.UserName).Msg("Telegram bot started")
	return nil
}

// Stop ends polling and waits for the update loop to exit or ctx to expire.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Telegram bot")
	b.api.StopReceivingUpdates()
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("telegram update loop did not stop: %w", ctx.Err())
	}

	b.logger.Info().Msg("Telegram bot stopped")
	return nil
}

// IsRunning returns whether the bot is polling.
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) processUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel, dispatch channels.DispatchFunc, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update, dispatch)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update, dispatch channels.DispatchFunc) {
	msg, ok := b.handler.Inbound(update)
	if !ok {
		return
	}

	kind := "text"
	if msg.IsCommand() {
		kind = "command"
	}
	observability.RecordInbound(ChannelName, kind)

	ctx = tracing.WithChannel(ctx, ChannelName)
	ctx = tracing.WithUserID(ctx, msg.UserID)

	if err := dispatch(ctx, msg); err != nil {
		b.logger.Error().
			Err(err).
			Int("update_id", update.UpdateID).
			Str("user_id", msg.UserID).
			Msg("Failed to handle update")
	}
}

// Reply answers the sender of msg in the same chat, quoting the original
// message when its id is known.
func (b *Bot) Reply(ctx context.Context, msg channels.InboundMessage, text string) error {
	_, span := tracing.StartSpan(
		ctx,
		"feedbackbot.telegram",
		"telegram.reply",
		attribute.Int64("chat_id", msg.ChatID),
	)
	defer span.End()

	chatID := msg.ChatID
	if chatID == 0 {
		id, err := strconv.ParseInt(msg.UserID, 10, 64)
		if err != nil {
			return fmt.Errorf("no chat to reply to for user %q", msg.UserID)
		}
		chatID = id
	}

	if err := b.SendMessageWithReply(chatID, text, msg.MessageID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// SendMessage sends a text message
func (b *Bot) SendMessage(chatID int64, text string) error {
	return b.SendMessageWithReply(chatID, text, 0)
}

// SendMessageWithReply sends a text message as a reply
func (b *Bot) SendMessageWithReply(chatID int64, text string, replyToMessageID int) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if replyToMessageID > 0 {
		msg.ReplyToMessageID = replyToMessageID
		msg.AllowSendingWithoutReply = true
	}

	start := time.Now()
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.Debug().
		Int64("chat_id", chatID).
		Int("reply_to", replyToMessageID).
		Dur("duration", time.Since(start)).
		Msg("Message sent")

	return nil
}

// GetBotInfo returns bot information
func (b *Bot) GetBotInfo() map[string]interface{} {
	return map[string]interface{}{
		"username":  b.self.UserName,
		"id":        b.self.ID,
		"firstName": b.self.FirstName,
		"running":   b.IsRunning(),
	}
}
