package bot

import (
	"fmt"
	"licensebot/lib/sl"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		t.log.With("id", chatId).Debug("empty message")
		return
	}

	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending safe message", sl.Err(err))
		}
	}
}

// reply answers in the chat the command came from.
func (t *TgBot) reply(ctx *ext.Context, text string) {
	t.plainResponse(ctx.EffectiveChat.Id, text)
}

func Sanitize(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*`~>"
	var sb strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sb.WriteRune('\\')
		}
		sb.WriteRune(char)
	}
	return sb.String()
}

func isGroupChat(chat *tgbotapi.Chat) bool {
	return chat != nil && (chat.Type == "group" || chat.Type == "supergroup")
}

func (t *TgBot) isOperator(userId int64) bool {
	for _, id := range t.config.Operators {
		if id == userId {
			return true
		}
	}
	return false
}

// requireGroupAdmin checks the command was sent in a group by one of its
// administrators or a bot operator, and answers the user otherwise.
func (t *TgBot) requireGroupAdmin(ctx *ext.Context) (int64, bool) {
	chat := ctx.EffectiveChat
	if !isGroupChat(chat) {
		t.reply(ctx, "This command works only in a group\\.")
		return 0, false
	}
	user := ctx.EffectiveUser
	if user == nil {
		return 0, false
	}
	if t.isOperator(user.Id) {
		return chat.Id, true
	}
	member, err := t.chatMemberStatus(chat.Id, user.Id)
	if err != nil {
		t.log.With(sl.Group(chat.Id), sl.Member(user.Id)).Warn("checking admin rights", sl.Err(err))
		t.reply(ctx, "Could not check your rights in this group\\.")
		return 0, false
	}
	if !isAdmin(member.GetStatus()) {
		t.reply(ctx, "Administrator rights are required\\.")
		return 0, false
	}
	return chat.Id, true
}

// commandArgs returns the words after the command itself.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

// targetMember takes the member from the replied-to message, or else from
// the first argument as a numeric Telegram id. The remaining arguments are
// returned for further parsing.
func targetMember(msg *tgbotapi.Message, args []string) (int64, []string, error) {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From.Id, args, nil
	}
	if len(args) == 0 {
		return 0, nil, fmt.Errorf("reply to a member's message or pass the member id")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, nil, fmt.Errorf("invalid member id: %s", args[0])
	}
	return id, args[1:], nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat id: %s", s)
	}
	return id, nil
}

func hoursDuration(hours int) time.Duration {
	return time.Duration(hours) * time.Hour
}

func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Try to split at newline
		cutAt := maxLen
		nlIdx := strings.LastIndex(text[:maxLen], "\n")
		if nlIdx > 0 {
			cutAt = nlIdx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

// sendWithKeyboard sends a message with an inline keyboard attached.
func (t *TgBot) sendWithKeyboard(chatId int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if text == "" {
		return
	}
	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode:   "MarkdownV2",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message with keyboard", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
			ReplyMarkup: keyboard,
		})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending message with keyboard fallback", sl.Err(err))
		}
	}
}

// reportError logs the error and sends a neutral message to the user. The
// error level record reaches the operators through the log handler.
func (t *TgBot) reportError(ctx *ext.Context, command string, err error) {
	t.log.Error("bot command failed",
		slog.String("command", command),
		slog.Int64("chat_id", ctx.EffectiveChat.Id),
		sl.Err(err),
	)
	t.reply(ctx, "Something went wrong\\. Please try again later\\.")
}
