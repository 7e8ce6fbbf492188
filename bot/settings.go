package bot

import (
	"fmt"
	"licensebot/entity"
	"licensebot/lib/clock"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// addRole registers a licensed chat for the group: /add_role <chat id>.
// The bot must administer that chat to invite and remove members.
func (t *TgBot) addRole(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	args := commandArgs(ctx.EffectiveMessage.Text)
	if len(args) != 1 {
		t.reply(ctx, "Usage: `/add_role <chat id>`")
		return nil
	}
	chatId, err := parseChatID(args[0])
	if err != nil {
		t.reply(ctx, Sanitize(err.Error()))
		return nil
	}
	if chatId == groupId {
		t.reply(ctx, "The group itself can't be a licensed chat\\.")
		return nil
	}

	chat, err := t.api.GetChat(chatId, nil)
	if err != nil {
		t.reply(ctx, fmt.Sprintf("Can't access that chat: %s", Sanitize(classify(err).Error())))
		return nil
	}
	self, err := t.chatMemberStatus(chatId, t.api.Id)
	if err != nil || !isAdmin(self.GetStatus()) {
		t.reply(ctx, "Make me an administrator of that chat with the right to invite and ban users first\\.")
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	role := &entity.Role{ID: chat.Id, GroupID: groupId, Name: chat.Title}
	if err = t.svc.RegisterRole(reqCtx, role); err != nil {
		t.answerError(ctx, "/add_role", err)
		return nil
	}
	t.reply(ctx, fmt.Sprintf("Licensed chat *%s* \\(`%d`\\) registered\\.", Sanitize(role.Name), role.ID))
	return nil
}

// rolesCmd lists licensed chats with buttons to pick the default.
func (t *TgBot) rolesCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	roles, err := t.svc.Roles(reqCtx, groupId)
	if err != nil {
		t.answerError(ctx, "/roles", err)
		return nil
	}
	if len(roles) == 0 {
		t.reply(ctx, "No licensed chats yet\\. Register one with `/add_role <chat id>`\\.")
		return nil
	}
	settings, err := t.svc.Settings(reqCtx, groupId)
	if err != nil {
		t.answerError(ctx, "/roles", err)
		return nil
	}

	t.sendWithKeyboard(groupId, formatSettings(settings, roles), buildRolesKeyboard(roles, settings.DefaultRoleID))
	return nil
}

func formatSettings(settings *entity.GroupSettings, roles []*entity.Role) string {
	var sb strings.Builder
	sb.WriteString("*Licensed chats*\n")
	for _, r := range roles {
		mark := ""
		if r.ID == settings.DefaultRoleID {
			mark = " \\(default\\)"
		}
		sb.WriteString(fmt.Sprintf("`%d` %s%s\n", r.ID, Sanitize(r.Name), mark))
	}
	sb.WriteString(fmt.Sprintf("\nDefault duration: %s\nUnused license limit: %d",
		Sanitize(clock.FormatRemaining(hoursDuration(settings.DefaultDurationHours))),
		settings.MaxUnusedLicenses))
	return sb.String()
}

func (t *TgBot) defaultRole(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	args := commandArgs(ctx.EffectiveMessage.Text)
	if len(args) != 1 {
		t.reply(ctx, "Usage: `/default_role <role id>`")
		return nil
	}
	roleId, err := parseChatID(args[0])
	if err != nil {
		t.reply(ctx, Sanitize(err.Error()))
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	role, err := t.svc.SetDefaultRole(reqCtx, groupId, roleId)
	if err != nil {
		t.answerError(ctx, "/default_role", err)
		return nil
	}
	t.reply(ctx, fmt.Sprintf("Default role set to *%s*\\.", Sanitize(role.Name)))
	return nil
}

func (t *TgBot) defaultDuration(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	args := commandArgs(ctx.EffectiveMessage.Text)
	if len(args) == 0 {
		t.reply(ctx, "Usage: `/default_duration <duration>`, e\\.g\\. `30d` or `1m 2w`")
		return nil
	}
	hours, err := clock.ParseDuration(strings.Join(args, " "))
	if err != nil {
		t.reply(ctx, Sanitize(err.Error()))
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	if err = t.svc.SetDefaultDuration(reqCtx, groupId, hours); err != nil {
		t.answerError(ctx, "/default_duration", err)
		return nil
	}
	t.reply(ctx, fmt.Sprintf("Default duration set to %s\\.", Sanitize(clock.FormatRemaining(hoursDuration(hours)))))
	return nil
}
