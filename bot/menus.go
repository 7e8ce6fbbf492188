package bot

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// Command lists for Telegram's menu button (the "/" icon in the chat input).
// Members see the default list; group administrators get the full list via
// BotCommandScopeAllChatAdministrators.

var commandsMember = []tgbotapi.BotCommand{
	{Command: "redeem", Description: "Activate a license key"},
	{Command: "data", Description: "Show your active subscriptions"},
	{Command: "help", Description: "Show available commands"},
}

var commandsAdmin = []tgbotapi.BotCommand{
	{Command: "redeem", Description: "Activate a license key"},
	{Command: "data", Description: "Show subscriptions of a member"},
	{Command: "generate", Description: "Generate licenses: [count] [role] [duration]"},
	{Command: "licenses", Description: "List unused licenses of a role"},
	{Command: "random_licenses", Description: "Show random unused licenses"},
	{Command: "add_license", Description: "Activate a license for a member"},
	{Command: "revoke", Description: "Revoke a member's subscription"},
	{Command: "revoke_all", Description: "Revoke all subscriptions of a member"},
	{Command: "delete_license", Description: "Delete an unused license"},
	{Command: "delete_all", Description: "Delete all unused licenses"},
	{Command: "add_role", Description: "Register a licensed chat"},
	{Command: "roles", Description: "List licensed chats and defaults"},
	{Command: "default_role", Description: "Set the default licensed chat"},
	{Command: "default_duration", Description: "Set the default license duration"},
	{Command: "help", Description: "Show available commands"},
}

func isMemberCommand(command string) bool {
	for _, c := range commandsMember {
		if c.Command == command {
			return true
		}
	}
	return false
}

// setCommands publishes both menus on startup.
func (t *TgBot) setCommands() {
	_, err := t.api.SetMyCommands(commandsMember, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeDefault{},
	})
	if err != nil {
		t.log.Warn("setting default commands", "error", err)
	}
	_, err = t.api.SetMyCommands(commandsAdmin, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeAllChatAdministrators{},
	})
	if err != nil {
		t.log.Warn("setting administrator commands", "error", err)
	}
}
