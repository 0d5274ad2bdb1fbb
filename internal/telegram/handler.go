package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/feedbackbot/pkg/channels"
	"github.com/rs/zerolog"
)

// Handler converts Telegram updates into channel messages.
type Handler struct {
	botUsername string
	logger      zerolog.Logger
}

// NewHandler creates a handler for the bot with the given username.
func NewHandler(botUsername string, logger zerolog.Logger) *Handler {
	return &Handler{
		botUsername: botUsername,
		logger:      logger.With().Str("module", "handler").Logger(),
	}
}

// Inbound returns the normalized message for an update. Updates without a
// text message from a user, and commands addressed to another bot, are
// reported as not ok.
func (h *Handler) Inbound(update tgbotapi.Update) (channels.InboundMessage, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return channels.InboundMessage{}, false
	}
	if msg.Text == "" {
		h.logger.Debug().
			Int64("chat_id", msg.Chat.ID).
			Int("update_id", update.UpdateID).
			Msg("Ignoring non-text message")
		return channels.InboundMessage{}, false
	}

	in := channels.InboundMessage{
		Channel:     ChannelName,
		UserID:      strconv.FormatInt(msg.From.ID, 10),
		DisplayName: DisplayName(msg.From),
		ChatID:      msg.Chat.ID,
		MessageID:   msg.MessageID,
		Text:        msg.Text,
	}

	if msg.IsCommand() {
		if !h.addressedToMe(msg) {
			h.logger.Debug().
				Str("command", msg.CommandWithAt()).
				Msg("Ignoring command for another bot")
			return channels.InboundMessage{}, false
		}
		in.Command = strings.ToLower(msg.Command())
		in.Args = strings.TrimSpace(msg.CommandArguments())
	}

	h.logger.Debug().
		Int64("chat_id", in.ChatID).
		Str("user_id", in.UserID).
		Str("command", in.Command).
		Msg("Message received")

	return in, true
}

// addressedToMe reports whether a "/cmd@bot" suffix, if any, names this bot.
func (h *Handler) addressedToMe(msg *tgbotapi.Message) bool {
	withAt := msg.CommandWithAt()
	i := strings.Index(withAt, "@")
	if i < 0 || h.botUsername == "" {
		return true
	}
	return strings.EqualFold(withAt[i+1:], h.botUsername)
}

// DisplayName returns the username, or the full name when the user has none.
func DisplayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}
