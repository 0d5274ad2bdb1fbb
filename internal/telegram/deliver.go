package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/harun/feedbackbot/pkg/report"
)

// MaxMessageLength is Telegram's limit for one text message, in UTF-16 code units.
const MaxMessageLength = 4096

type messageSender interface {
	SendMessage(chatID int64, text string) error
}

// ChatDeliverer sends weekly reports to fixed Telegram chats.
type ChatDeliverer struct {
	sender  messageSender
	chatIDs []int64
}

// NewChatDeliverer returns a deliverer that messages every chat id through bot.
func NewChatDeliverer(bot *Bot, chatIDs []int64) *ChatDeliverer {
	return &ChatDeliverer{sender: bot, chatIDs: append([]int64(nil), chatIDs...)}
}

// Name implements report.Deliverer.
func (d *ChatDeliverer) Name() string {
	return "telegram"
}

// Deliver implements report.Deliverer. Every chat is attempted; failures are
// joined.
func (d *ChatDeliverer) Deliver(ctx context.Context, s report.Summary, text string) error {
	parts := SplitMessage(text, MaxMessageLength)

	var errs []error
	for _, chatID := range d.chatIDs {
		for _, part := range parts {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			if err := d.sender.SendMessage(chatID, part); err != nil {
				errs = append(errs, fmt.Errorf("report %s to chat %d: %w", s.ID, chatID, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

// SplitMessage breaks text into pieces of at most limit UTF-16 code units,
// the unit Telegram counts message length in, preferring line boundaries.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf16Len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			parts = append(parts, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		lineLen := utf16Len(line)
		if lineLen <= limit-currentLen {
			current.WriteString(line)
			currentLen += lineLen
			continue
		}
		flush()
		if lineLen <= limit {
			current.WriteString(line)
			currentLen = lineLen
			continue
		}
		for _, r := range line {
			n := utf16.RuneLen(r)
			if n < 0 {
				n = 1
			}
			if currentLen > 0 && currentLen+n > limit {
				flush()
			}
			current.WriteRune(r)
			currentLen += n
		}
	}
	flush()
	return parts
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
