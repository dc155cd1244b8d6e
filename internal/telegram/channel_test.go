package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) With(...any) types.Logger { return nopLogger{} }

type mockBot struct {
	sendErr error
	sent    []tgbotapi.Chattable
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, m.sendErr
}

func TestChannel_Send_Success(t *testing.T) {
	bot := &mockBot{}
	channel := NewChannel(bot, nopLogger{})

	err := channel.Send(context.Background(), 4242, "take meds")
	require.NoError(t, err)
	require.Len(t, bot.sent, 1)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(4242), msg.ChatID)
	assert.Equal(t, "take meds", msg.Text)
}

func TestChannel_Send_FailureMapsToUpstreamError(t *testing.T) {
	bot := &mockBot{sendErr: errors.New("bad gateway")}
	channel := NewChannel(bot, nopLogger{})

	err := channel.Send(context.Background(), 4242, "take meds")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamTelegram, appErr.Code)
}

func TestChannel_Send_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	bot := &mockBot{sendErr: errors.New("bad gateway")}
	channel := NewChannel(bot, nopLogger{})

	for i := 0; i < 6; i++ {
		err := channel.Send(context.Background(), 4242, "x")
		require.Error(t, err)
	}
	attempts := len(bot.sent)

	// Breaker is open now: further sends fail fast without hitting the API.
	err := channel.Send(context.Background(), 4242, "x")
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamTelegram, appErr.Code)
	assert.Len(t, bot.sent, attempts)
}

func TestChannel_Send_CancelledContext(t *testing.T) {
	bot := &mockBot{}
	channel := NewChannel(bot, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := channel.Send(ctx, 4242, "x")
	require.Error(t, err)
	assert.Empty(t, bot.sent)
}
