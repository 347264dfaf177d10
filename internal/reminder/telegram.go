// Package reminder delivers human-facing nudges via Telegram: a push when a
// compartment opens and a reminder with an acknowledge button when a
// confirmation times out. Button taps flow back into the confirmation
// registry.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lbruckmann/medispender/internal/catalog"
)

// Confirmer resolves a pending confirmation. Implemented by the
// confirmation registry.
type Confirmer interface {
	Confirm(id, source string) (ok bool, message string)
}

const callbackPrefix = "ok_"

// Telegram sends reminders to a single chat and long-polls for the
// acknowledge-button callbacks.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot. An invalid token or unreachable API
// surfaces here; the caller degrades to the Noop gateway.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Opened pushes a plain "compartment open" note. Fire-and-forget.
func (t *Telegram) Opened(fach catalog.Compartment) {
	text := fmt.Sprintf("💊 <b>Fach offen</b>\n%s %s\n%s Uhr",
		fach.Wochentag, fach.Tageszeit, time.Now().Format("15:04"))
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		slog.Error("telegram send", "error", err)
	}
}

// SendReminder delivers the overdue-dose nudge with an inline acknowledge
// button carrying the confirmation ID.
func (t *Telegram) SendReminder(confirmationID string, fach catalog.Compartment) {
	text := fmt.Sprintf("⚠️ <b>Noch nicht bestätigt!</b>\n\n%s %s\n\nMedis genommen?",
		fach.Wochentag, fach.Tageszeit)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Ja", callbackPrefix+confirmationID),
		),
	)
	if _, err := t.bot.Send(msg); err != nil {
		slog.Error("telegram reminder", "error", err)
	}
}

// Run long-polls Telegram updates and routes acknowledge-button taps into
// the confirmer until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context, confirmer Confirmer) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := t.bot.GetUpdatesChan(cfg)
	slog.Info("telegram läuft", "bot", t.bot.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update := <-updates:
			t.handleUpdate(update, confirmer)
		}
	}
}

func (t *Telegram) handleUpdate(update tgbotapi.Update, confirmer Confirmer) {
	cb := update.CallbackQuery
	if cb == nil || !strings.HasPrefix(cb.Data, callbackPrefix) {
		return
	}
	if _, err := t.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		slog.Error("telegram callback answer", "error", err)
	}

	id := strings.TrimPrefix(cb.Data, callbackPrefix)
	ok, message := confirmer.Confirm(id, "telegram")

	feedback := "✅ Bestätigt!"
	if !ok {
		feedback = "❌ " + message
	}
	edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, feedback)
	if _, err := t.bot.Send(edit); err != nil {
		slog.Error("telegram edit", "error", err)
	}
}
