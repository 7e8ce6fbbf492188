package bot

import (
	"errors"
	"licensebot/entity"
	"licensebot/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

type membershipEvent int

const (
	eventNone membershipEvent = iota
	eventJoined
	eventLeft
)

func membershipChange(oldStatus, newStatus string) membershipEvent {
	was, is := isPresent(oldStatus), isPresent(newStatus)
	switch {
	case !was && is:
		return eventJoined
	case was && !is:
		return eventLeft
	}
	return eventNone
}

func isGroupUpdate(u *tgbotapi.ChatMemberUpdated) bool {
	return u.Chat.Type != "private"
}

// registeredRole reports whether the chat is a licensed chat.
func (t *TgBot) registeredRole(chatId int64) (bool, error) {
	reqCtx, cancel := t.requestCtx()
	defer cancel()
	_, err := t.roles.GetRole(reqCtx, chatId)
	if errors.Is(err, entity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// onMyChatMember tracks the bot joining or leaving groups and licensed chats.
func (t *TgBot) onMyChatMember(_ *tgbotapi.Bot, ctx *ext.Context) error {
	upd := ctx.MyChatMember
	ev := membershipChange(upd.OldChatMember.GetStatus(), upd.NewChatMember.GetStatus())
	if ev == eventNone {
		return nil
	}
	chat := upd.Chat
	log := t.log.With(sl.Group(chat.Id))

	registered, err := t.registeredRole(chat.Id)
	if err != nil {
		log.Error("looking up licensed chat", sl.Err(err))
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	switch {
	case ev == eventJoined && !registered && isGroupChat(&chat):
		err = t.svc.GroupJoined(reqCtx, chat.Id)
	case ev == eventLeft && registered:
		err = t.svc.RoleDeleted(reqCtx, chat.Id)
	case ev == eventLeft && isGroupChat(&chat):
		err = t.svc.GroupRemoved(reqCtx, chat.Id)
	}
	if err != nil {
		log.Error("handling bot membership change", sl.Err(err))
	}
	return nil
}

// onChatMember drops the grant of a member who left or was removed from a
// licensed chat.
func (t *TgBot) onChatMember(_ *tgbotapi.Bot, ctx *ext.Context) error {
	upd := ctx.ChatMember
	if membershipChange(upd.OldChatMember.GetStatus(), upd.NewChatMember.GetStatus()) != eventLeft {
		return nil
	}
	chat := upd.Chat
	user := upd.NewChatMember.GetUser()

	registered, err := t.registeredRole(chat.Id)
	if err != nil || !registered {
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	if err = t.svc.RoleRemovedFromMember(reqCtx, user.Id, chat.Id); err != nil {
		t.log.With(sl.Role(chat.Id), sl.Member(user.Id)).Error("handling member removal", sl.Err(err))
	}
	return nil
}
