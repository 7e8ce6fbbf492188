package bot

import (
	"licensebot/lib/sl"
	"log/slog"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// sendPrivate sends a MarkdownV2 message to a user's private chat. Users who
// never started the bot or blocked it are reported as entity.ErrBlocked.
func (t *TgBot) sendPrivate(userId int64, text string) error {
	_, err := t.api.SendMessage(userId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// sendPrivateLong splits text over several messages when it exceeds the
// Telegram limit. Splitting happens at line breaks.
func (t *TgBot) sendPrivateLong(userId int64, text string) error {
	for _, part := range splitMessage(text, maxTelegramMessageLen) {
		if err := t.sendPrivate(userId, part); err != nil {
			return err
		}
	}
	return nil
}

// NotifyOperators queues a log record for the configured operators. Records
// are delivered in batches by the alert digest.
func (t *TgBot) NotifyOperators(msg string) {
	if t.alerts == nil || len(t.config.Operators) == 0 {
		return
	}
	for _, id := range t.config.Operators {
		t.alerts.Add(id, msg)
	}
}

// deliverAlert sends a digest part without markdown and without logging
// failures above debug, so the operator log handler can't feed itself.
func (t *TgBot) deliverAlert(chatId int64, text string) {
	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Debug("delivering alert", sl.Err(err))
	}
}
