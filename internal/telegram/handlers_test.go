package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/cache"
	"remindbot/internal/scheduler"
	"remindbot/internal/types"
)

// --- Fakes ---

type fakeUserStore struct {
	user *types.User
}

func (f *fakeUserStore) Upsert(_ context.Context, telegramID int64, username *string) (*types.User, error) {
	if f.user == nil {
		f.user = &types.User{ID: "user_1", TelegramID: telegramID, Username: username}
	}
	return f.user, nil
}

type fakeSchedulerAPI struct {
	scheduled   []scheduler.ScheduleInput
	active      []types.Reminder
	templates   []types.ReminderTemplate
	deactivated []string
}

func (f *fakeSchedulerAPI) ScheduleReminder(_ context.Context, input scheduler.ScheduleInput) (*types.Reminder, error) {
	f.scheduled = append(f.scheduled, input)
	return &types.Reminder{
		ID:                    "rem_1",
		UserID:                input.OwnerID,
		Message:               input.Message,
		ScheduledAt:           input.ScheduledAt,
		NextTriggerAt:         input.ScheduledAt,
		RepeatIntervalMinutes: input.RepeatIntervalMinutes,
		IsActive:              true,
	}, nil
}

func (f *fakeSchedulerAPI) DeactivateReminder(_ context.Context, reminderID, _ string) (bool, error) {
	f.deactivated = append(f.deactivated, reminderID)
	return true, nil
}

func (f *fakeSchedulerAPI) ActiveForUser(context.Context, string) ([]types.Reminder, error) {
	return f.active, nil
}

func (f *fakeSchedulerAPI) Templates(context.Context) ([]types.ReminderTemplate, error) {
	return f.templates, nil
}

func (f *fakeSchedulerAPI) TemplateByCode(_ context.Context, code string) (*types.ReminderTemplate, error) {
	for i := range f.templates {
		if strings.EqualFold(f.templates[i].Code, code) {
			return &f.templates[i], nil
		}
	}
	return nil, nil
}

func command(text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 4242, UserName: "alice"},
			Chat: &tgbotapi.Chat{ID: 4242},
			Text: text,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])},
			},
		},
	}
}

func newTestHandler() (*Handler, *fakeSchedulerAPI, *mockBot) {
	sched := &fakeSchedulerAPI{}
	bot := &mockBot{}
	h := NewHandler(&fakeUserStore{}, sched, cache.NewMemory(""), bot, nopLogger{})
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return base }
	return h, sched, bot
}

func lastReply(t *testing.T, bot *mockBot) string {
	t.Helper()
	require.NotEmpty(t, bot.sent)
	msg, ok := bot.sent[len(bot.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	return msg.Text
}

// --- Tests ---

func TestHandler_Remind_OneShot(t *testing.T) {
	h, sched, bot := newTestHandler()

	h.HandleUpdate(context.Background(), command("/remind 10 take meds"))

	require.Len(t, sched.scheduled, 1)
	input := sched.scheduled[0]
	assert.Equal(t, "user_1", input.OwnerID)
	assert.Equal(t, "take meds", input.Message)
	assert.Equal(t, h.now().Add(10*time.Minute), input.ScheduledAt)
	assert.Nil(t, input.RepeatIntervalMinutes)
	assert.Contains(t, lastReply(t, bot), "Reminder set")
}

func TestHandler_Remind_Repeating(t *testing.T) {
	h, sched, _ := newTestHandler()

	h.HandleUpdate(context.Background(), command("/remind 5 every 60 drink water"))

	require.Len(t, sched.scheduled, 1)
	input := sched.scheduled[0]
	assert.Equal(t, "drink water", input.Message)
	require.NotNil(t, input.RepeatIntervalMinutes)
	assert.Equal(t, 60, *input.RepeatIntervalMinutes)
}

func TestHandler_Remind_BadUsage(t *testing.T) {
	h, sched, bot := newTestHandler()

	h.HandleUpdate(context.Background(), command("/remind soon"))

	assert.Empty(t, sched.scheduled)
	assert.Contains(t, lastReply(t, bot), "Usage")
}

func TestHandler_Cancel_ByListPosition(t *testing.T) {
	h, sched, bot := newTestHandler()
	sched.active = []types.Reminder{
		{ID: "rem_a", Message: "first"},
		{ID: "rem_b", Message: "second"},
	}

	h.HandleUpdate(context.Background(), command("/cancel 2"))

	assert.Equal(t, []string{"rem_b"}, sched.deactivated)
	assert.Contains(t, lastReply(t, bot), "cancelled")
}

func TestHandler_Cancel_OutOfRange(t *testing.T) {
	h, sched, bot := newTestHandler()
	sched.active = []types.Reminder{{ID: "rem_a", Message: "only"}}

	h.HandleUpdate(context.Background(), command("/cancel 5"))

	assert.Empty(t, sched.deactivated)
	assert.Contains(t, lastReply(t, bot), "No reminder with that number")
}

func TestHandler_Template_InheritsDefaults(t *testing.T) {
	h, sched, _ := newTestHandler()
	interval := 480
	sched.templates = []types.ReminderTemplate{
		{ID: "tpl_1", Code: "water", Title: "Drink water", DefaultRepeatIntervalMinutes: &interval},
	}

	h.HandleUpdate(context.Background(), command("/template WATER 15"))

	require.Len(t, sched.scheduled, 1)
	input := sched.scheduled[0]
	assert.Equal(t, "Drink water", input.Message)
	require.NotNil(t, input.RepeatIntervalMinutes)
	assert.Equal(t, 480, *input.RepeatIntervalMinutes)
	require.NotNil(t, input.TemplateID)
	assert.Equal(t, "tpl_1", *input.TemplateID)
}

func TestHandler_RateLimit_DropsExcessMessages(t *testing.T) {
	h, sched, _ := newTestHandler()

	for i := 0; i < rateLimitMessages+5; i++ {
		h.HandleUpdate(context.Background(), command("/remind 1 hi"))
	}

	assert.Len(t, sched.scheduled, rateLimitMessages)
}

func TestHandler_IgnoresNonCommands(t *testing.T) {
	h, sched, bot := newTestHandler()

	h.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 4242},
			Chat: &tgbotapi.Chat{ID: 4242},
			Text: "just chatting",
		},
	})

	assert.Empty(t, sched.scheduled)
	assert.Empty(t, bot.sent)
}

func TestParseRemindArgs(t *testing.T) {
	delay, repeat, message, err := parseRemindArgs("10 take meds")
	require.NoError(t, err)
	assert.Equal(t, 10, delay)
	assert.Nil(t, repeat)
	assert.Equal(t, "take meds", message)

	delay, repeat, message, err = parseRemindArgs("5 every 60 drink water")
	require.NoError(t, err)
	assert.Equal(t, 5, delay)
	require.NotNil(t, repeat)
	assert.Equal(t, 60, *repeat)
	assert.Equal(t, "drink water", message)

	_, _, _, err = parseRemindArgs("")
	require.Error(t, err)

	_, _, _, err = parseRemindArgs("x y")
	require.Error(t, err)

	_, _, _, err = parseRemindArgs("5 every nope msg")
	require.Error(t, err)
}
