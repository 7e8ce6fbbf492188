package bot

import (
	"fmt"
	"licensebot/entity"
	"licensebot/lib/confirm"
	"licensebot/lib/sl"
	"strconv"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// Callback data prefixes for inline keyboard buttons.
// Telegram limits callback data to 64 bytes, so prefixes are kept short.
const (
	cbConfirm     = "cf:" // cf:yes
	cbDefaultRole = "dr:" // dr:<role_id>
)

// --- Keyboard builders ---

func buildConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{
			{{Text: "Yes, delete all", CallbackData: cbConfirm + "yes"}},
		},
	}
}

// buildRolesKeyboard has one button per licensed chat; pressing it makes the
// chat the group default.
func buildRolesKeyboard(roles []*entity.Role, defaultId int64) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(roles))
	for _, r := range roles {
		label := r.Name
		if r.ID == defaultId {
			label += " ✓"
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{{
			Text:         label,
			CallbackData: cbDefaultRole + strconv.FormatInt(r.ID, 10),
		}})
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// --- Callback handlers ---

func callbackChat(cq *tgbotapi.CallbackQuery) (int64, int64, bool) {
	if cq.Message == nil {
		return 0, 0, false
	}
	im, ok := cq.Message.(tgbotapi.Message)
	if !ok {
		return 0, 0, false
	}
	return im.Chat.Id, im.MessageId, true
}

// isConfirmReply accepts exactly "yes", surrounding blanks aside.
func isConfirmReply(msg *tgbotapi.Message) bool {
	return strings.TrimSpace(msg.Text) == "yes"
}

// onConfirmReply releases a pending delete-all for the same user in the same chat.
func (t *TgBot) onConfirmReply(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if ctx.EffectiveUser == nil {
		return nil
	}
	t.gate.Confirm(confirm.Key{ChatID: ctx.EffectiveChat.Id, UserID: ctx.EffectiveUser.Id})
	return nil
}

func (t *TgBot) onConfirmCallback(_ *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	chatId, _, ok := callbackChat(cq)
	if !ok {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Message is too old"})
		return nil
	}
	if !t.gate.Confirm(confirm.Key{ChatID: chatId, UserID: cq.From.Id}) {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Nothing to confirm", ShowAlert: true})
		return nil
	}
	_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Confirmed"})
	return nil
}

// onDefaultRoleCallback sets the group default role from the /roles keyboard.
func (t *TgBot) onDefaultRoleCallback(_ *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	chatId, messageId, ok := callbackChat(cq)
	if !ok {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Message is too old"})
		return nil
	}

	if !t.isOperator(cq.From.Id) {
		member, err := t.chatMemberStatus(chatId, cq.From.Id)
		if err != nil || !isAdmin(member.GetStatus()) {
			_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Administrator rights are required", ShowAlert: true})
			return nil
		}
	}

	roleId, err := strconv.ParseInt(strings.TrimPrefix(cq.Data, cbDefaultRole), 10, 64)
	if err != nil {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Invalid role"})
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	role, err := t.svc.SetDefaultRole(reqCtx, chatId, roleId)
	if err != nil {
		text, known := errorReply(err)
		if !known {
			t.log.With(sl.Group(chatId), sl.Role(roleId)).Error("setting default role", sl.Err(err))
			text = "Error occurred"
		}
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: strings.ReplaceAll(text, "\\", ""), ShowAlert: true})
		return nil
	}

	roles, err := t.svc.Roles(reqCtx, chatId)
	if err == nil {
		_, _, _ = t.api.EditMessageReplyMarkup(&tgbotapi.EditMessageReplyMarkupOpts{
			ChatId:      chatId,
			MessageId:   messageId,
			ReplyMarkup: buildRolesKeyboard(roles, role.ID),
		})
	}

	_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{
		Text: fmt.Sprintf("Default role: %s", role.Name),
	})
	return nil
}
