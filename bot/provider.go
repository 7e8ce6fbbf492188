package bot

import (
	"context"
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/lib/sl"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

const inviteLinkTTL = 24 * time.Hour

// Chat member statuses as reported by the Bot API.
const (
	statusCreator       = "creator"
	statusAdministrator = "administrator"
	statusMember        = "member"
	statusRestricted    = "restricted"
	statusLeft          = "left"
	statusKicked        = "kicked"
)

func isPresent(status string) bool {
	switch status {
	case statusCreator, statusAdministrator, statusMember, statusRestricted:
		return true
	}
	return false
}

func isAdmin(status string) bool {
	return status == statusCreator || status == statusAdministrator
}

// classify maps Bot API failures onto the provider boundary errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.TelegramError
	if !errors.As(err, &tgErr) {
		return err
	}
	desc := strings.ToLower(tgErr.Description)
	switch {
	case tgErr.Code == 403 && (strings.Contains(desc, "blocked") ||
		strings.Contains(desc, "can't initiate") ||
		strings.Contains(desc, "deactivated")):
		return fmt.Errorf("%w: %s", entity.ErrBlocked, tgErr.Description)
	case strings.Contains(desc, "chat not found"),
		strings.Contains(desc, "bot was kicked"),
		strings.Contains(desc, "group chat was upgraded"):
		return fmt.Errorf("%w: %s", entity.ErrGroupNotFound, tgErr.Description)
	case strings.Contains(desc, "user not found"),
		strings.Contains(desc, "participant_id_invalid"),
		strings.Contains(desc, "member not found"):
		return fmt.Errorf("%w: %s", entity.ErrMemberNotFound, tgErr.Description)
	case tgErr.Code == 403,
		strings.Contains(desc, "not enough rights"),
		strings.Contains(desc, "have no rights"),
		strings.Contains(desc, "not an administrator"),
		strings.Contains(desc, "chat_admin_required"):
		return fmt.Errorf("%w: %s", entity.ErrForbidden, tgErr.Description)
	}
	return err
}

func (t *TgBot) chatMemberStatus(chatID, userID int64) (tgbotapi.ChatMember, error) {
	member, err := t.api.GetChatMember(chatID, userID, nil)
	if err != nil {
		return nil, classify(err)
	}
	return member, nil
}

func (t *TgBot) ResolveGroup(ctx context.Context, groupID int64) (*entity.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chat, err := t.api.GetChat(groupID, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &entity.Group{ID: chat.Id, Title: chat.Title}, nil
}

func (t *TgBot) ResolveMember(ctx context.Context, groupID, memberID int64) (*entity.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	member, err := t.chatMemberStatus(groupID, memberID)
	if err != nil {
		return nil, err
	}
	if !isPresent(member.GetStatus()) {
		return nil, entity.ErrMemberNotFound
	}
	user := member.GetUser()
	return &entity.Member{ID: user.Id, Username: user.Username}, nil
}

// ResolveRole finds a licensed chat registered to the group and checks that
// the chat is still reachable.
func (t *TgBot) ResolveRole(ctx context.Context, groupID, roleID int64) (*entity.Role, error) {
	role, err := t.roles.GetRole(ctx, roleID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, entity.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	if role.GroupID != groupID {
		return nil, entity.ErrRoleNotFound
	}
	chat, err := t.api.GetChat(roleID, nil)
	if err != nil {
		err = classify(err)
		if errors.Is(err, entity.ErrGroupNotFound) {
			return nil, entity.ErrRoleNotFound
		}
		return nil, err
	}
	if chat.Title != "" {
		role.Name = chat.Title
	}
	return role, nil
}

// CanManageRoles checks the bot is an administrator of the group.
func (t *TgBot) CanManageRoles(ctx context.Context, groupID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	member, err := t.chatMemberStatus(groupID, t.api.Id)
	if err != nil {
		return err
	}
	if !isAdmin(member.GetStatus()) {
		return entity.ErrForbidden
	}
	return nil
}

func (t *TgBot) HasRole(ctx context.Context, role *entity.Role, memberID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := t.chatMemberStatus(role.ID, memberID)
	if errors.Is(err, entity.ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isPresent(member.GetStatus()), nil
}

// AddRole lifts a previous ban and sends the member a single-use invite link
// to the licensed chat. A member who never opened a private chat with the bot
// cannot be reached and the grant fails with entity.ErrBlocked.
func (t *TgBot) AddRole(ctx context.Context, role *entity.Role, memberID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.UnbanChatMember(role.ID, memberID, &tgbotapi.UnbanChatMemberOpts{OnlyIfBanned: true})
	if err != nil {
		return fmt.Errorf("unban: %w", classify(err))
	}
	link, err := t.api.CreateChatInviteLink(role.ID, &tgbotapi.CreateChatInviteLinkOpts{
		Name:        fmt.Sprintf("license %d", memberID),
		ExpireDate:  time.Now().Add(inviteLinkTTL).Unix(),
		MemberLimit: 1,
	})
	if err != nil {
		return fmt.Errorf("invite link: %w", classify(err))
	}
	text := fmt.Sprintf("Your license for *%s* is active\\. Join here: %s",
		Sanitize(role.Name), Sanitize(link.InviteLink))
	if err = t.sendPrivate(memberID, text); err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	return nil
}

// RemoveRole kicks the member from the licensed chat: ban, then unban so the
// member can rejoin with a new license.
func (t *TgBot) RemoveRole(ctx context.Context, role *entity.Role, memberID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	member, err := t.chatMemberStatus(role.ID, memberID)
	if err != nil {
		return err
	}
	if !isPresent(member.GetStatus()) {
		return entity.ErrRoleNotHeld
	}
	if _, err = t.api.BanChatMember(role.ID, memberID, nil); err != nil {
		return fmt.Errorf("ban: %w", classify(err))
	}
	if _, err = t.api.UnbanChatMember(role.ID, memberID, &tgbotapi.UnbanChatMemberOpts{OnlyIfBanned: true}); err != nil {
		t.log.With(
			sl.Role(role.ID),
			sl.Member(memberID),
			sl.Err(err),
		).Warn("member stays banned after role removal")
	}
	return nil
}

func (t *TgBot) Notify(ctx context.Context, memberID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.SendMessage(memberID, text, nil)
	if err != nil {
		t.log.With(slog.Int64("id", memberID)).Debug("notify member", sl.Err(err))
		return classify(err)
	}
	return nil
}
