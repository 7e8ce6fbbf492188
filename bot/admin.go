package bot

import (
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/lib/clock"
	"licensebot/lib/confirm"
	"licensebot/lib/sl"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

const (
	defaultGenerateCount = 1
	defaultRandomCount   = 10
	licensesListLimit    = 100
)

// allowCommand applies the per-group cooldown and tells the user how long to wait.
func (t *TgBot) allowCommand(ctx *ext.Context, command string, groupId int64) bool {
	ok, wait := t.cooldown.Allow(command, groupId, time.Now())
	if !ok {
		t.reply(ctx, fmt.Sprintf("Please wait %s before using /%s again\\.",
			Sanitize(wait.Round(time.Second).String()), Sanitize(command)))
	}
	return ok
}

// deliverPrivately sends a result to the administrator's private chat and
// acknowledges in the group.
func (t *TgBot) deliverPrivately(ctx *ext.Context, command, text string) {
	if err := t.sendPrivateLong(ctx.EffectiveUser.Id, text); err != nil {
		t.answerError(ctx, command, err)
		return
	}
	t.reply(ctx, "Sent in a private message\\.")
}

// addLicense activates a license for another member: /add_license <key> <member id>,
// or as a reply to the member's message.
func (t *TgBot) addLicense(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	msg := ctx.EffectiveMessage
	args := commandArgs(msg.Text)
	if len(args) == 0 {
		t.reply(ctx, "Usage: `/add_license <license key> <member id>` or reply to the member")
		return nil
	}
	code := args[0]
	memberId, _, err := targetMember(msg, args[1:])
	if err != nil {
		t.reply(ctx, Sanitize(err.Error()))
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	r, err := t.svc.AddLicense(reqCtx, code, groupId, memberId)
	if err != nil {
		t.answerError(ctx, "/add_license", err)
		return nil
	}
	t.reply(ctx, fmt.Sprintf("License added for `%d`: *%s* until %s\\.",
		memberId, Sanitize(r.Role.Name), Sanitize(r.Grant.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))))
	return nil
}

// revoke removes one subscription: /revoke <member id> <role id>, or as a
// reply with just the role id.
func (t *TgBot) revoke(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	msg := ctx.EffectiveMessage
	memberId, rest, err := targetMember(msg, commandArgs(msg.Text))
	if err != nil {
		t.reply(ctx, Sanitize(err.Error()))
		return nil
	}
	if len(rest) != 1 {
		t.reply(ctx, "Usage: `/revoke <member id> <role id>`")
		return nil
	}
	roleId, err := parseChatID(rest[0])
	if err != nil {
		t.reply(ctx, Sanitize(err.Error()))
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	if err = t.svc.Revoke(reqCtx, groupId, memberId, roleId); err != nil {
		t.answerError(ctx, "/revoke", err)
		return nil
	}
	t.reply(ctx, fmt.Sprintf("Subscription of `%d` for role `%d` revoked\\.", memberId, roleId))
	return nil
}

func (t *TgBot) revokeAll(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	msg := ctx.EffectiveMessage
	memberId, _, err := targetMember(msg, commandArgs(msg.Text))
	if err != nil {
		t.reply(ctx, Sanitize(err.Error()))
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	report, err := t.svc.RevokeAll(reqCtx, groupId, memberId)
	if err != nil {
		t.answerError(ctx, "/revoke_all", err)
		return nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Revoked %d subscription\\(s\\) of `%d`\\.", report.Revoked, memberId))
	for _, f := range report.Failed {
		sb.WriteString(fmt.Sprintf("\nRole `%d` failed: %s", f.RoleID, Sanitize(f.Err.Error())))
	}
	t.reply(ctx, sb.String())
	return nil
}

// parseGenerateArgs reads /generate [count] [role id] [duration...]. Zero
// role and hours select the group defaults.
func parseGenerateArgs(args []string) (count int, roleId int64, hours int, err error) {
	count = defaultGenerateCount
	if len(args) > 0 {
		count, err = strconv.Atoi(args[0])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid count: %s", args[0])
		}
	}
	if len(args) > 1 && args[1] != "-" {
		roleId, err = parseChatID(args[1])
		if err != nil {
			return 0, 0, 0, err
		}
	}
	if len(args) > 2 {
		hours, err = clock.ParseDuration(strings.Join(args[2:], " "))
		if err != nil {
			return 0, 0, 0, err
		}
	}
	return count, roleId, hours, nil
}

func (t *TgBot) generate(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	count, roleId, hours, err := parseGenerateArgs(commandArgs(ctx.EffectiveMessage.Text))
	if err != nil {
		t.reply(ctx, Sanitize(err.Error())+"\nUsage: `/generate [count] [role id|-] [duration]`")
		return nil
	}
	if !t.allowCommand(ctx, "generate", groupId) {
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	batch, err := t.svc.Generate(reqCtx, groupId, count, roleId, hours)
	if err != nil {
		t.answerError(ctx, "/generate", err)
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d license\\(s\\) for *%s*, %d h each:\n",
		len(batch.Codes), Sanitize(batch.Role.Name), batch.DurationHours))
	for _, code := range batch.Codes {
		sb.WriteString(fmt.Sprintf("`%s`\n", code))
	}
	t.deliverPrivately(ctx, "/generate", sb.String())
	return nil
}

// licenses lists unused licenses of the group, optionally of one role.
func (t *TgBot) licenses(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	var roleId int64
	if args := commandArgs(ctx.EffectiveMessage.Text); len(args) > 0 {
		id, err := parseChatID(args[0])
		if err != nil {
			t.reply(ctx, Sanitize(err.Error()))
			return nil
		}
		roleId = id
	}
	if !t.allowCommand(ctx, "licenses", groupId) {
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	role, list, err := t.svc.ListLicenses(reqCtx, groupId, roleId, licensesListLimit)
	if err != nil {
		t.answerError(ctx, "/licenses", err)
		return nil
	}
	title := "all roles"
	if role != nil {
		title = role.Name
	}
	t.deliverPrivately(ctx, "/licenses", formatLicenses(title, list, nil))
	return nil
}

func (t *TgBot) randomLicenses(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	n := defaultRandomCount
	if args := commandArgs(ctx.EffectiveMessage.Text); len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			t.reply(ctx, "Usage: `/random_licenses [count]`")
			return nil
		}
		n = v
	}
	if !t.allowCommand(ctx, "random_licenses", groupId) {
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	list, err := t.svc.ListRandomLicenses(reqCtx, groupId, n)
	if err != nil {
		t.answerError(ctx, "/random_licenses", err)
		return nil
	}
	roles, err := t.svc.Roles(reqCtx, groupId)
	if err != nil {
		t.answerError(ctx, "/random_licenses", err)
		return nil
	}
	t.deliverPrivately(ctx, "/random_licenses", formatLicenses("random selection", list, roleNames(roles)))
	return nil
}

// formatLicenses renders one license per line; names adds the role column.
func formatLicenses(title string, list []*entity.License, names map[int64]string) string {
	if len(list) == 0 {
		return fmt.Sprintf("No unused licenses \\(%s\\)\\.", Sanitize(title))
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Unused licenses, %s \\(%d\\):\n", Sanitize(title), len(list)))
	for _, l := range list {
		if names != nil {
			sb.WriteString(fmt.Sprintf("`%s` %s, %d h\n", l.Code, Sanitize(roleLabel(names, l.RoleID)), l.DurationHours))
		} else {
			sb.WriteString(fmt.Sprintf("`%s` %d h\n", l.Code, l.DurationHours))
		}
	}
	return sb.String()
}

func (t *TgBot) deleteLicense(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	args := commandArgs(ctx.EffectiveMessage.Text)
	if len(args) != 1 {
		t.reply(ctx, "Usage: `/delete_license <license key>`")
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	if err := t.svc.DeleteLicense(reqCtx, groupId, args[0]); err != nil {
		t.answerError(ctx, "/delete_license", err)
		return nil
	}
	t.reply(ctx, "License deleted\\.")
	return nil
}

// deleteAll removes every unused license of the group after the same
// administrator confirms with "yes" or the button.
func (t *TgBot) deleteAll(_ *tgbotapi.Bot, ctx *ext.Context) error {
	groupId, ok := t.requireGroupAdmin(ctx)
	if !ok {
		return nil
	}
	key := confirm.Key{ChatID: groupId, UserID: ctx.EffectiveUser.Id}
	if t.gate.Pending(key) {
		t.reply(ctx, "A confirmation is already pending\\.")
		return nil
	}

	seconds := int(t.config.ConfirmTimeout / time.Second)
	t.sendWithKeyboard(groupId,
		fmt.Sprintf("This deletes *all* unused licenses of the group\\. Reply `yes` within %d seconds to confirm\\.", seconds),
		buildConfirmKeyboard())

	err := t.gate.Await(t.ctx, key, t.config.ConfirmTimeout)
	switch {
	case errors.Is(err, confirm.ErrPending):
		t.reply(ctx, "A confirmation is already pending\\.")
		return nil
	case errors.Is(err, confirm.ErrTimeout):
		t.reply(ctx, "No confirmation, nothing was deleted\\.")
		return nil
	case err != nil:
		t.log.With(sl.Group(groupId)).Debug("delete all aborted", sl.Err(err))
		return nil
	}

	reqCtx, cancel := t.requestCtx()
	defer cancel()
	n, err := t.svc.DeleteAllForGroup(reqCtx, groupId)
	if err != nil {
		t.answerError(ctx, "/delete_all", err)
		return nil
	}
	t.reply(ctx, fmt.Sprintf("Deleted %d license\\(s\\)\\.", n))
	return nil
}
