package telegram

import (
	"fmt"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/feedbackbot/pkg/dialogue"
)

var tokenPattern = regexp.MustCompile(`^\d{5,}:[A-Za-z0-9_-]{30,}$`)

// DefaultCommands is the command menu shown to users.
func DefaultCommands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: dialogue.CommandStart, Description: "Leave feedback"},
		{Command: dialogue.CommandCancel, Description: "Cancel the current feedback"},
	}
}

// SetCommands sets the bot's command list in Telegram
func SetCommands(api botAPI, commands []tgbotapi.BotCommand) error {
	if len(commands) == 0 {
		return nil
	}
	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}
	return nil
}

// CheckTokenFormat validates the shape of a bot token without contacting
// Telegram.
func CheckTokenFormat(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("bot token is empty")
	}
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("invalid bot token format")
	}
	return nil
}

// ValidateToken validates a bot token by attempting to authenticate
func ValidateToken(token string) error {
	if err := CheckTokenFormat(token); err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return fmt.Errorf("invalid bot token: %w", err)
	}
	if api.Self.UserName == "" {
		return fmt.Errorf("failed to get bot info")
	}
	return nil
}
