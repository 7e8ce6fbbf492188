package bot

import (
	"errors"
	"licensebot/entity"
	"testing"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		code int
		desc string
		want error
	}{
		{"blocked by user", 403, "Forbidden: bot was blocked by the user", entity.ErrBlocked},
		{"never started", 403, "Forbidden: bot can't initiate conversation with a user", entity.ErrBlocked},
		{"deactivated user", 403, "Forbidden: user is deactivated", entity.ErrBlocked},
		{"chat not found", 400, "Bad Request: chat not found", entity.ErrGroupNotFound},
		{"kicked from group", 403, "Forbidden: bot was kicked from the supergroup chat", entity.ErrGroupNotFound},
		{"user not found", 400, "Bad Request: user not found", entity.ErrMemberNotFound},
		{"invalid participant", 400, "Bad Request: PARTICIPANT_ID_INVALID", entity.ErrMemberNotFound},
		{"no rights", 400, "Bad Request: not enough rights to restrict/unrestrict chat member", entity.ErrForbidden},
		{"admin required", 400, "Bad Request: CHAT_ADMIN_REQUIRED", entity.ErrForbidden},
		{"not a member", 403, "Forbidden: bot is not a member of the channel chat", entity.ErrForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(&tgbotapi.TelegramError{Code: tc.code, Description: tc.desc})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), tc.desc)
		})
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	assert.NoError(t, classify(nil))

	plain := errors.New("connection reset")
	assert.Same(t, plain, classify(plain))

	flood := &tgbotapi.TelegramError{Code: 429, Description: "Too Many Requests: retry after 5"}
	err := classify(flood)
	for _, target := range []error{entity.ErrBlocked, entity.ErrForbidden, entity.ErrGroupNotFound, entity.ErrMemberNotFound} {
		assert.NotErrorIs(t, err, target)
	}
	var tgErr *tgbotapi.TelegramError
	require.ErrorAs(t, err, &tgErr)
	assert.Equal(t, 429, tgErr.Code)
}

func TestMemberStatuses(t *testing.T) {
	for _, s := range []string{statusCreator, statusAdministrator, statusMember, statusRestricted} {
		assert.True(t, isPresent(s), s)
	}
	for _, s := range []string{statusLeft, statusKicked, ""} {
		assert.False(t, isPresent(s), s)
	}
	assert.True(t, isAdmin(statusCreator))
	assert.True(t, isAdmin(statusAdministrator))
	assert.False(t, isAdmin(statusMember))
}

func TestMembershipChange(t *testing.T) {
	tests := []struct {
		old, new string
		want     membershipEvent
	}{
		{statusLeft, statusMember, eventJoined},
		{statusKicked, statusAdministrator, eventJoined},
		{statusMember, statusLeft, eventLeft},
		{statusAdministrator, statusKicked, eventLeft},
		{statusMember, statusAdministrator, eventNone},
		{statusAdministrator, statusMember, eventNone},
		{statusLeft, statusKicked, eventNone},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, membershipChange(tc.old, tc.new), "%s -> %s", tc.old, tc.new)
	}
}

func TestIsGroupUpdate(t *testing.T) {
	assert.True(t, isGroupUpdate(&tgbotapi.ChatMemberUpdated{Chat: tgbotapi.Chat{Type: "supergroup"}}))
	assert.True(t, isGroupUpdate(&tgbotapi.ChatMemberUpdated{Chat: tgbotapi.Chat{Type: "channel"}}))
	assert.False(t, isGroupUpdate(&tgbotapi.ChatMemberUpdated{Chat: tgbotapi.Chat{Type: "private"}}))
}
