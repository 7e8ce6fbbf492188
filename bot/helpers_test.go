package bot

import (
	"fmt"
	"licensebot/entity"
	"licensebot/internal/entitlement"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, `VIP \(test\-1\) \*beta\*\.`, Sanitize("VIP (test-1) *beta*."))
	assert.Equal(t, `a\_b\[c\]\!`, Sanitize("a_b[c]!"))
	assert.Equal(t, "plain words", Sanitize("plain words"))
}

func TestCommandArgs(t *testing.T) {
	assert.Nil(t, commandArgs("/help"))
	assert.Equal(t, []string{"abc"}, commandArgs("/redeem   abc "))
	assert.Equal(t, []string{"3", "-100", "2d", "5h"}, commandArgs("/generate 3 -100 2d 5h"))
}

func TestTargetMember(t *testing.T) {
	t.Run("from reply", func(t *testing.T) {
		msg := &tgbotapi.Message{ReplyToMessage: &tgbotapi.Message{From: &tgbotapi.User{Id: 42}}}
		id, rest, err := targetMember(msg, []string{"-1001"})
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
		assert.Equal(t, []string{"-1001"}, rest)
	})
	t.Run("from argument", func(t *testing.T) {
		id, rest, err := targetMember(&tgbotapi.Message{}, []string{"777", "-1001"})
		require.NoError(t, err)
		assert.Equal(t, int64(777), id)
		assert.Equal(t, []string{"-1001"}, rest)
	})
	t.Run("missing", func(t *testing.T) {
		_, _, err := targetMember(&tgbotapi.Message{}, nil)
		assert.Error(t, err)
	})
	t.Run("not a number", func(t *testing.T) {
		_, _, err := targetMember(&tgbotapi.Message{}, []string{"@alice"})
		assert.ErrorContains(t, err, "invalid member id")
	})
	t.Run("negative id", func(t *testing.T) {
		_, _, err := targetMember(&tgbotapi.Message{}, []string{"-5"})
		assert.Error(t, err)
	})
}

func TestParseGenerateArgs(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		count int
		role  int64
		hours int
	}{
		{"defaults", nil, 1, 0, 0},
		{"count only", []string{"5"}, 5, 0, 0},
		{"role", []string{"2", "-1001"}, 2, -1001, 0},
		{"duration words", []string{"3", "-1001", "2d", "12h"}, 3, -1001, 60},
		{"default role placeholder", []string{"3", "-", "1w"}, 3, 0, 168},
		{"bare hours", []string{"1", "-", "20"}, 1, 0, 20},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			count, role, hours, err := parseGenerateArgs(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.count, count)
			assert.Equal(t, tc.role, role)
			assert.Equal(t, tc.hours, hours)
		})
	}

	for _, args := range [][]string{{"x"}, {"2", "abc"}, {"2", "0"}, {"2", "-100", "5q"}, {"1", "-", "400y"}} {
		_, _, _, err := parseGenerateArgs(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	text := "line one\nline two\nline three\n"
	parts := splitMessage(text, 12)
	assert.Equal(t, []string{"line one\n", "line two\n", "line three\n"}, parts)
	assert.Equal(t, text, strings.Join(parts, ""))

	parts = splitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, parts)
}

func TestFormatGrants(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	grants := []*entity.Grant{
		{MemberID: 7, RoleID: -200, ExpiresAt: now.Add(26 * time.Hour)},
		{MemberID: 7, RoleID: -201, ExpiresAt: now.Add(90 * time.Minute)},
	}
	text := formatGrants("My group", 7, grants, map[int64]string{-200: "VIP"}, now)
	assert.Contains(t, text, `VIP \(\-200\)`)
	assert.Contains(t, text, `1d 2h left`)
	assert.Contains(t, text, `\-201: until`)
	assert.Contains(t, text, `1h 30m left`)

	assert.Contains(t, formatGrants("My group", 7, nil, nil, now), "No active subscriptions")
}

func TestFormatLicenses(t *testing.T) {
	list := []*entity.License{
		{Code: "c1", RoleID: -200, DurationHours: 24},
		{Code: "c2", RoleID: -201, DurationHours: 48},
	}
	text := formatLicenses("VIP", list, nil)
	assert.Contains(t, text, "`c1` 24 h")
	assert.Contains(t, text, `\(2\)`)

	text = formatLicenses("random selection", list, map[int64]string{-200: "VIP"})
	assert.Contains(t, text, "`c1` VIP \\(\\-200\\), 24 h")
	assert.Contains(t, text, "`c2` \\-201, 48 h")

	assert.Contains(t, formatLicenses("VIP", nil, nil), "No unused licenses")
}

func TestRedemptionText(t *testing.T) {
	r := &entitlement.Redemption{
		License: entity.License{DurationHours: 24},
		Grant:   entity.Grant{ExpiresAt: time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)},
		Group:   entity.Group{Title: "Traders"},
		Role:    entity.Role{Name: "VIP-room"},
	}
	text := redemptionText(r)
	assert.Contains(t, text, `*VIP\-room* in *Traders*`)
	assert.Contains(t, text, "private message")

	r.Repaired = true
	text = redemptionText(r)
	assert.True(t, strings.HasPrefix(text, "Your subscription was restored"))
	assert.NotContains(t, text, "private message")
}

func TestErrorReply(t *testing.T) {
	text, ok := errorReply(&entitlement.AlreadyActiveError{Remaining: 23 * time.Hour})
	require.True(t, ok)
	assert.Contains(t, text, "23h")

	text, ok = errorReply(&entitlement.QuotaWouldExceedError{Quota: 5, Remaining: 2})
	require.True(t, ok)
	assert.Contains(t, text, "limit of 5")
	assert.Contains(t, text, "2 more")

	blocked := fmt.Errorf("add role: %w", fmt.Errorf("send invite: %w", entity.ErrBlocked))
	text, ok = errorReply(blocked)
	require.True(t, ok)
	assert.Contains(t, text, "private chat")

	text, ok = errorReply(fmt.Errorf("%w: at most 25 at once", entitlement.ErrTooMany))
	require.True(t, ok)
	assert.Equal(t, "Too many licenses requested: at most 25 at once\\.", text)

	text, ok = errorReply(fmt.Errorf("%w: at most 876000 hours", entitlement.ErrDurationTooLong))
	require.True(t, ok)
	assert.Contains(t, text, "100 years")

	for _, err := range []error{
		entitlement.ErrInvalidLicense,
		entitlement.ErrWrongGroup,
		entitlement.ErrGroupNotFound,
		entitlement.ErrPermissionDenied,
		entitlement.ErrMemberNotFound,
		entitlement.ErrRoleNotFound,
		entitlement.ErrRepairFailed,
		entitlement.ErrNoSubscription,
		entitlement.ErrInvalidCount,
		entitlement.ErrQuotaExceeded,
		entitlement.ErrNoDefaultRole,
		entitlement.ErrProviderNotConnected,
	} {
		text, ok = errorReply(fmt.Errorf("wrapped: %w", err))
		assert.True(t, ok, err.Error())
		assert.NotEmpty(t, text, err.Error())
	}

	_, ok = errorReply(fmt.Errorf("insert grant: connection refused"))
	assert.False(t, ok)
}

func TestIsConfirmReply(t *testing.T) {
	for _, text := range []string{"yes", " yes\n"} {
		assert.True(t, isConfirmReply(&tgbotapi.Message{Text: text}), text)
	}
	for _, text := range []string{"Yes", "YES", "yes please", "y", ""} {
		assert.False(t, isConfirmReply(&tgbotapi.Message{Text: text}), text)
	}
}
