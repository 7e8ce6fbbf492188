package bot

import (
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/internal/entitlement"
	"licensebot/lib/clock"

	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// errorReply renders an expected service error as a MarkdownV2 chat reply.
// It reports false for errors the user can't act on; those go to reportError.
func errorReply(err error) (string, bool) {
	var active *entitlement.AlreadyActiveError
	if errors.As(err, &active) {
		return fmt.Sprintf("You already have an active subscription for this role, valid for another %s\\.",
			Sanitize(clock.FormatRemaining(active.Remaining))), true
	}
	var quota *entitlement.QuotaWouldExceedError
	if errors.As(err, &quota) {
		return fmt.Sprintf("That would exceed the unused license limit of %d\\. You can generate %d more\\.",
			quota.Quota, quota.Remaining), true
	}

	switch {
	case errors.Is(err, entity.ErrBlocked):
		return "I can't send you private messages\\. Open a private chat with me, press Start and try again\\.", true
	case errors.Is(err, entitlement.ErrInvalidLicense):
		return "The license key you entered is invalid or deactivated\\.", true
	case errors.Is(err, entitlement.ErrWrongGroup):
		return "This license belongs to another group\\. Redeem it there or in a private chat with me\\.", true
	case errors.Is(err, entitlement.ErrGroupNotFound):
		return "The group of this license was not found\\.", true
	case errors.Is(err, entitlement.ErrPermissionDenied):
		return "I need administrator rights in the group to manage licensed roles\\.", true
	case errors.Is(err, entitlement.ErrMemberNotFound):
		return "You are no longer a member of the group this license is for\\.", true
	case errors.Is(err, entitlement.ErrRoleNotFound):
		return "The licensed role no longer exists\\.", true
	case errors.Is(err, entitlement.ErrRepairFailed):
		return "Your subscription could not be restored automatically\\. The operators have been notified\\.", true
	case errors.Is(err, entitlement.ErrNoSubscription):
		return "The member has no subscription for that role\\.", true
	case errors.Is(err, entitlement.ErrInvalidCount):
		return "The number of licenses must be at least 1\\.", true
	case errors.Is(err, entitlement.ErrDurationTooLong):
		return "The duration is too long, the limit is 100 years\\.", true
	case errors.Is(err, entitlement.ErrTooMany):
		return Sanitize(capitalize(err.Error())) + "\\.", true
	case errors.Is(err, entitlement.ErrQuotaExceeded):
		return "The unused license limit of this group is reached\\. Delete some licenses first\\.", true
	case errors.Is(err, entitlement.ErrNoDefaultRole):
		return "No default role is set\\. Use /default\\_role or pass a role id\\.", true
	case errors.Is(err, entitlement.ErrProviderNotConnected):
		return "The bot is not ready yet, try again in a moment\\.", true
	case errors.Is(err, entity.ErrNotFound):
		return "Not found\\.", true
	}
	return "", false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// answerError sends the user-facing text for err, or reports it.
func (t *TgBot) answerError(ctx *ext.Context, command string, err error) {
	if text, ok := errorReply(err); ok {
		t.reply(ctx, text)
		return
	}
	t.reportError(ctx, command, err)
}
