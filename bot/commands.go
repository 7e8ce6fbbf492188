package bot

import (
	"fmt"
	"licensebot/entity"
	"licensebot/internal/entitlement"
	"licensebot/lib/clock"
	"licensebot/lib/sl"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// redeem activates a license for the sender. In a group the license must
// belong to that group; in a private chat the group comes from the license.
func (t *TgBot) redeem(_ *tgbotapi.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	user := ctx.EffectiveUser
	if user == nil {
		return nil
	}
	args := commandArgs(msg.Text)
	if len(args) != 1 {
		t.reply(ctx, "Usage: `/redeem <license key>`")
		return nil
	}

	var groupHint int64
	if isGroupChat(ctx.EffectiveChat) {
		groupHint = ctx.EffectiveChat.Id
		// keep the key out of the group history
		if _, err := t.api.DeleteMessage(msg.Chat.Id, msg.MessageId, nil); err != nil {
			t.log.With(slog.Int64("chat_id", msg.Chat.Id)).Debug("deleting license message", sl.Err(err))
		}
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	r, err := t.svc.Redeem(reqCtx, args[0], groupHint, user.Id)
	if err != nil {
		t.answerError(ctx, "/redeem", err)
		return nil
	}
	t.reply(ctx, redemptionText(r))
	return nil
}

func redemptionText(r *entitlement.Redemption) string {
	var sb strings.Builder
	if r.Repaired {
		sb.WriteString("Your subscription was restored\\.\n")
	}
	sb.WriteString(fmt.Sprintf("License activated: *%s* in *%s* until %s \\(%s\\)\\.",
		Sanitize(r.Role.Name),
		Sanitize(r.Group.Title),
		Sanitize(r.Grant.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")),
		Sanitize(fmt.Sprintf("%d h", r.License.DurationHours)),
	))
	if !r.Repaired {
		sb.WriteString("\nThe invite link was sent to you in a private message\\.")
	}
	return sb.String()
}

// data lists active subscriptions in the group: the sender's own, or any
// member's for an administrator. The list is delivered privately.
func (t *TgBot) data(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chat := ctx.EffectiveChat
	user := ctx.EffectiveUser
	if user == nil {
		return nil
	}
	if !isGroupChat(chat) {
		t.reply(ctx, "Use /data in the group you want to check\\.")
		return nil
	}

	memberId := user.Id
	msg := ctx.EffectiveMessage
	args := commandArgs(msg.Text)
	if len(args) > 0 || msg.ReplyToMessage != nil {
		if _, ok := t.requireGroupAdmin(ctx); !ok {
			return nil
		}
		id, _, err := targetMember(msg, args)
		if err != nil {
			t.reply(ctx, Sanitize(err.Error()))
			return nil
		}
		memberId = id
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	grants, err := t.svc.MemberActiveGrants(reqCtx, chat.Id, memberId)
	if err != nil {
		t.answerError(ctx, "/data", err)
		return nil
	}
	roles, err := t.svc.Roles(reqCtx, chat.Id)
	if err != nil {
		t.answerError(ctx, "/data", err)
		return nil
	}

	text := formatGrants(chat.Title, memberId, grants, roleNames(roles), time.Now())
	if err = t.sendPrivateLong(user.Id, text); err != nil {
		t.answerError(ctx, "/data", err)
		return nil
	}
	t.reply(ctx, "Sent in a private message\\.")
	return nil
}

func roleNames(roles []*entity.Role) map[int64]string {
	names := make(map[int64]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	return names
}

func roleLabel(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok && name != "" {
		return fmt.Sprintf("%s (%d)", name, id)
	}
	return fmt.Sprintf("%d", id)
}

func formatGrants(groupTitle string, memberId int64, grants []*entity.Grant, names map[int64]string, now time.Time) string {
	if len(grants) == 0 {
		return fmt.Sprintf("No active subscriptions for `%d` in *%s*\\.", memberId, Sanitize(groupTitle))
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Subscriptions of `%d` in *%s*:\n", memberId, Sanitize(groupTitle)))
	for _, g := range grants {
		sb.WriteString(fmt.Sprintf("• %s: until %s, %s left\n",
			Sanitize(roleLabel(names, g.RoleID)),
			Sanitize(g.ExpiresAt.UTC().Format("2006-01-02 15:04")),
			Sanitize(clock.FormatRemaining(clock.Remaining(g.ExpiresAt, now))),
		))
	}
	return sb.String()
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	var sb strings.Builder
	sb.WriteString("*Members*\n")
	for _, cmd := range commandsMember {
		sb.WriteString(fmt.Sprintf("/%s \\- %s\n", Sanitize(cmd.Command), Sanitize(cmd.Description)))
	}
	sb.WriteString("\n*Group administrators*\n")
	for _, cmd := range commandsAdmin {
		if isMemberCommand(cmd.Command) {
			continue
		}
		sb.WriteString(fmt.Sprintf("/%s \\- %s\n", Sanitize(cmd.Command), Sanitize(cmd.Description)))
	}
	sb.WriteString("\nDurations: `20` hours, or words like `2y 5months`, `3d 12h`, `1w`\\.")
	t.reply(ctx, sb.String())
	return nil
}
