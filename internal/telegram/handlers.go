package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remindbot/internal/cache"
	"remindbot/internal/scheduler"
	"remindbot/internal/types"
)

// UserStore is the user persistence surface the handler needs. Implemented
// by db.UserRepository.
type UserStore interface {
	Upsert(ctx context.Context, telegramID int64, username *string) (*types.User, error)
}

// SchedulerAPI is the scheduler surface the handler needs. Implemented by
// scheduler.Service.
type SchedulerAPI interface {
	ScheduleReminder(ctx context.Context, input scheduler.ScheduleInput) (*types.Reminder, error)
	DeactivateReminder(ctx context.Context, reminderID, ownerID string) (bool, error)
	ActiveForUser(ctx context.Context, ownerID string) ([]types.Reminder, error)
	Templates(ctx context.Context) ([]types.ReminderTemplate, error)
	TemplateByCode(ctx context.Context, code string) (*types.ReminderTemplate, error)
}

// Per-chat message budget per rate-limit window.
const (
	rateLimitWindow   = time.Minute
	rateLimitMessages = 20
)

// Handler is the conversational front-end: it parses bot commands and calls
// the scheduler. It holds no conversation state; every command is
// self-contained.
type Handler struct {
	users     UserStore
	scheduler SchedulerAPI
	store     types.FastStore
	bot       BotAPI
	logger    types.Logger

	now func() time.Time
}

// NewHandler creates a command handler.
func NewHandler(users UserStore, sched SchedulerAPI, store types.FastStore, bot BotAPI, logger types.Logger) *Handler {
	return &Handler{
		users:     users,
		scheduler: sched,
		store:     store,
		bot:       bot,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleUpdate processes one incoming update. Errors are reported to the
// chat as friendly messages and logged; they are never returned to the
// polling loop.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID

	if !h.allowMessage(ctx, chatID) {
		h.logger.Warn("chat rate limit exceeded", "chat_id", chatID)
		return
	}

	var username *string
	if msg.From.UserName != "" {
		name := msg.From.UserName
		username = &name
	}
	user, err := h.users.Upsert(ctx, msg.From.ID, username)
	if err != nil {
		h.logger.Error("failed to upsert user", "telegram_id", msg.From.ID, "error", err)
		h.reply(chatID, "Something went wrong, please try again.")
		return
	}

	switch msg.Command() {
	case "start", "help":
		h.reply(chatID, helpText)
	case "remind":
		h.handleRemind(ctx, chatID, user, msg.CommandArguments())
	case "list":
		h.handleList(ctx, chatID, user)
	case "cancel":
		h.handleCancel(ctx, chatID, user, msg.CommandArguments())
	case "templates":
		h.handleTemplates(ctx, chatID)
	case "template":
		h.handleTemplate(ctx, chatID, user, msg.CommandArguments())
	default:
		h.reply(chatID, "Unknown command. Send /help for usage.")
	}
}

const helpText = `I can remind you about things.

/remind <minutes> <message> - one-shot reminder
/remind <minutes> every <interval> <message> - repeating reminder
/list - show your active reminders
/cancel <number> - cancel a reminder from /list
/templates - show reminder presets
/template <code> <minutes> - schedule from a preset`

// handleRemind parses "/remind <minutes> [every <interval>] <message...>".
func (h *Handler) handleRemind(ctx context.Context, chatID int64, user *types.User, args string) {
	delayMinutes, repeat, message, err := parseRemindArgs(args)
	if err != nil {
		h.reply(chatID, err.Error())
		return
	}

	reminder, err := h.scheduler.ScheduleReminder(ctx, scheduler.ScheduleInput{
		OwnerID:               user.ID,
		Message:               message,
		ScheduledAt:           h.now().UTC().Add(time.Duration(delayMinutes) * time.Minute),
		RepeatIntervalMinutes: repeat,
	})
	if err != nil {
		h.replyScheduleError(chatID, user.ID, err)
		return
	}

	h.reply(chatID, fmt.Sprintf("Reminder set for %s.", formatTriggerTime(reminder, user)))
}

func (h *Handler) handleList(ctx context.Context, chatID int64, user *types.User) {
	reminders, err := h.scheduler.ActiveForUser(ctx, user.ID)
	if err != nil {
		h.logger.Error("failed to list reminders", "owner_id", user.ID, "error", err)
		h.reply(chatID, "Something went wrong, please try again.")
		return
	}
	if len(reminders) == 0 {
		h.reply(chatID, "You have no active reminders.")
		return
	}

	var b strings.Builder
	b.WriteString("Your active reminders:\n")
	for i, rem := range reminders {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, rem.Message, formatTriggerTime(&rem, user))
		if rem.Repeats() {
			fmt.Fprintf(&b, ", repeats every %d min", *rem.RepeatIntervalMinutes)
		}
		b.WriteString("\n")
	}
	h.reply(chatID, b.String())
}

// handleCancel disables a reminder by its 1-based position in /list.
func (h *Handler) handleCancel(ctx context.Context, chatID int64, user *types.User, args string) {
	position, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || position < 1 {
		h.reply(chatID, "Usage: /cancel <number> (see /list for numbers)")
		return
	}

	reminders, err := h.scheduler.ActiveForUser(ctx, user.ID)
	if err != nil {
		h.logger.Error("failed to list reminders", "owner_id", user.ID, "error", err)
		h.reply(chatID, "Something went wrong, please try again.")
		return
	}
	if position > len(reminders) {
		h.reply(chatID, "No reminder with that number. Send /list to see your reminders.")
		return
	}

	disabled, err := h.scheduler.DeactivateReminder(ctx, reminders[position-1].ID, user.ID)
	if err != nil {
		h.logger.Error("failed to cancel reminder",
			"reminder_id", reminders[position-1].ID, "owner_id", user.ID, "error", err)
		h.reply(chatID, "Something went wrong, please try again.")
		return
	}
	if !disabled {
		h.reply(chatID, "That reminder is already gone.")
		return
	}
	h.reply(chatID, "Reminder cancelled.")
}

func (h *Handler) handleTemplates(ctx context.Context, chatID int64) {
	templates, err := h.scheduler.Templates(ctx)
	if err != nil {
		h.logger.Error("failed to list templates", "error", err)
		h.reply(chatID, "Something went wrong, please try again.")
		return
	}
	if len(templates) == 0 {
		h.reply(chatID, "No reminder presets are configured.")
		return
	}

	var b strings.Builder
	b.WriteString("Available presets:\n")
	for _, t := range templates {
		fmt.Fprintf(&b, "%s - %s", t.Code, t.Title)
		if t.DefaultRepeatIntervalMinutes != nil {
			fmt.Fprintf(&b, " (every %d min)", *t.DefaultRepeatIntervalMinutes)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nSchedule one with /template <code> <minutes>")
	h.reply(chatID, b.String())
}

// handleTemplate parses "/template <code> <minutes>" and schedules a
// reminder from the preset, inheriting its default repeat interval.
func (h *Handler) handleTemplate(ctx context.Context, chatID int64, user *types.User, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		h.reply(chatID, "Usage: /template <code> <minutes>")
		return
	}
	delayMinutes, err := strconv.Atoi(fields[1])
	if err != nil || delayMinutes < 0 {
		h.reply(chatID, "Minutes must be a non-negative number.")
		return
	}

	tmpl, err := h.scheduler.TemplateByCode(ctx, fields[0])
	if err != nil {
		h.logger.Error("failed to look up template", "code", fields[0], "error", err)
		h.reply(chatID, "Something went wrong, please try again.")
		return
	}
	if tmpl == nil {
		h.reply(chatID, "Unknown preset. Send /templates for the list.")
		return
	}

	reminder, err := h.scheduler.ScheduleReminder(ctx, scheduler.ScheduleInput{
		OwnerID:               user.ID,
		Message:               tmpl.Title,
		ScheduledAt:           h.now().UTC().Add(time.Duration(delayMinutes) * time.Minute),
		RepeatIntervalMinutes: tmpl.DefaultRepeatIntervalMinutes,
		TemplateID:            &tmpl.ID,
	})
	if err != nil {
		h.replyScheduleError(chatID, user.ID, err)
		return
	}

	h.reply(chatID, fmt.Sprintf("Reminder set for %s.", formatTriggerTime(reminder, user)))
}

func (h *Handler) replyScheduleError(chatID int64, ownerID string, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeValidationEmptyMessage:
			h.reply(chatID, "The reminder message cannot be empty.")
			return
		case types.ErrCodeValidationInvalidRepeat:
			h.reply(chatID, "The repeat interval must be a positive number of minutes.")
			return
		}
	}
	h.logger.Error("failed to schedule reminder", "owner_id", ownerID, "error", err)
	h.reply(chatID, "Something went wrong, please try again.")
}

// allowMessage spends one unit of the chat's per-window message budget.
func (h *Handler) allowMessage(ctx context.Context, chatID int64) bool {
	count, err := h.store.Increment(ctx, cache.RateLimitMessages(chatID), 1, rateLimitWindow)
	if err != nil {
		h.logger.Warn("rate limit counter failed", "chat_id", chatID, "error", err)
		return true
	}
	return count <= rateLimitMessages
}

func (h *Handler) reply(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.logger.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}

// parseRemindArgs parses "<minutes> [every <interval>] <message...>".
func parseRemindArgs(args string) (delayMinutes int, repeat *int, message string, err error) {
	usage := errors.New("Usage: /remind <minutes> [every <interval>] <message>")

	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, nil, "", usage
	}

	delayMinutes, convErr := strconv.Atoi(fields[0])
	if convErr != nil || delayMinutes < 0 {
		return 0, nil, "", usage
	}
	rest := fields[1:]

	if strings.EqualFold(rest[0], "every") {
		if len(rest) < 3 {
			return 0, nil, "", usage
		}
		interval, convErr := strconv.Atoi(rest[1])
		if convErr != nil || interval <= 0 {
			return 0, nil, "", errors.New("The repeat interval must be a positive number of minutes.")
		}
		repeat = &interval
		rest = rest[2:]
	}

	message = strings.Join(rest, " ")
	return delayMinutes, repeat, message, nil
}

// formatTriggerTime renders a reminder's next trigger time in the owner's
// timezone when one is set, falling back to UTC.
func formatTriggerTime(rem *types.Reminder, owner *types.User) string {
	at := rem.NextTriggerAt
	if owner != nil && owner.TimeZone != nil {
		if loc, err := time.LoadLocation(*owner.TimeZone); err == nil {
			at = at.In(loc)
		}
	}
	return at.Format("Mon Jan 2 15:04 MST")
}
