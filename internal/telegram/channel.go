// Package telegram provides the Telegram Bot API integration: the delivery
// channel the worker sends reminders through, and the conversational
// command handler users schedule reminders with.
package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker/v2"

	"remindbot/internal/types"
)

// BotAPI abstracts the Telegram send operation for testability. Satisfied by
// *tgbotapi.BotAPI.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Compile-time assertion that Channel implements types.DeliveryChannel.
var _ types.DeliveryChannel = (*Channel)(nil)

// Channel delivers reminder messages over the Telegram Bot API. All sends go
// through a circuit breaker so a Telegram outage trips fast instead of
// hammering the API once per leased reminder.
type Channel struct {
	bot     BotAPI
	breaker *gobreaker.CircuitBreaker[tgbotapi.Message]
	logger  types.Logger
}

// NewChannel creates a delivery channel over the given bot client.
func NewChannel(bot BotAPI, logger types.Logger) *Channel {
	cb := gobreaker.NewCircuitBreaker[tgbotapi.Message](gobreaker.Settings{
		Name:        "telegram-send",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &Channel{
		bot:     bot,
		breaker: cb,
		logger:  logger,
	}
}

// Send delivers text to the given chat. Every failure, including an open
// breaker, comes back as an upstream error; the worker treats them all as
// transient and requeues.
func (c *Channel) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	_, err := c.breaker.Execute(func() (tgbotapi.Message, error) {
		return c.bot.Send(msg)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamTelegram, "telegram circuit breaker open", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamTelegram, "telegram send failed", err)
}
