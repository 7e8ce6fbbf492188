// Package bot is the Telegram front end of the license service and its
// group provider.
//
// Architecture overview:
//   - tgbot.go     : TgBot struct, lifecycle (Start/Stop), Service interface
//   - provider.go  : entitlement.Provider over the Bot API: groups, licensed chats, invite links
//   - commands.go  : member commands: /redeem, /data, /help
//   - admin.go     : license administration: /generate, /licenses, /revoke, /delete_all, ...
//   - settings.go  : licensed chat registry and group defaults: /add_role, /roles, /default_*
//   - callbacks.go : inline keyboards and callback query handlers
//   - membership.go: my_chat_member / chat_member updates mapped to service signals
//   - menus.go     : command menus per scope (members, group administrators)
//   - messaging.go : private messages and operator alerts
//   - digest.go    : DigestBuffer batching operator alerts
//   - replies.go   : service errors rendered as chat replies
//   - helpers.go   : Sanitize, plainResponse, argument parsing, permission checks
//
// A licensed role is a private chat registered to a group. Granting it
// unbans the member in that chat and sends a single-use invite link by
// private message; removing it bans and immediately unbans (a kick).
package bot

import (
	"context"
	"fmt"
	"licensebot/entity"
	"licensebot/internal/entitlement"
	"licensebot/lib/confirm"
	"licensebot/lib/sl"
	"log/slog"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
)

// BotConfig holds Telegram-specific configuration loaded from the YAML config file.
type BotConfig struct {
	Operators      []int64
	ConfirmTimeout time.Duration
	Cooldown       time.Duration
	AlertInterval  time.Duration
}

// Service is the part of the entitlement service the front end drives.
type Service interface {
	Redeem(ctx context.Context, code string, groupHint, memberID int64) (*entitlement.Redemption, error)
	AddLicense(ctx context.Context, code string, groupID, memberID int64) (*entitlement.Redemption, error)
	Revoke(ctx context.Context, groupID, memberID, roleID int64) error
	RevokeAll(ctx context.Context, groupID, memberID int64) (*entitlement.RevokeReport, error)
	Generate(ctx context.Context, groupID int64, count int, roleID int64, hours int) (*entitlement.Batch, error)
	ListLicenses(ctx context.Context, groupID, roleID int64, limit int) (*entity.Role, []*entity.License, error)
	ListRandomLicenses(ctx context.Context, groupID int64, n int) ([]*entity.License, error)
	MemberActiveGrants(ctx context.Context, groupID, memberID int64) ([]*entity.Grant, error)
	DeleteLicense(ctx context.Context, groupID int64, code string) error
	DeleteAllForGroup(ctx context.Context, groupID int64) (int64, error)

	Settings(ctx context.Context, groupID int64) (*entity.GroupSettings, error)
	SetDefaultRole(ctx context.Context, groupID, roleID int64) (*entity.Role, error)
	SetDefaultDuration(ctx context.Context, groupID int64, hours int) error
	RegisterRole(ctx context.Context, role *entity.Role) error
	Roles(ctx context.Context, groupID int64) ([]*entity.Role, error)

	GroupJoined(ctx context.Context, groupID int64) error
	GroupRemoved(ctx context.Context, groupID int64) error
	RoleDeleted(ctx context.Context, roleID int64) error
	RoleRemovedFromMember(ctx context.Context, memberID, roleID int64) error
}

// RoleRegistry resolves licensed chats registered with /add_role.
type RoleRegistry interface {
	GetRole(ctx context.Context, roleID int64) (*entity.Role, error)
}

// TgBot is the central Telegram bot instance.
type TgBot struct {
	log      *slog.Logger
	api      *tgbotapi.Bot
	svc      Service
	roles    RoleRegistry
	gate     *confirm.Gate
	cooldown *cooldown
	alerts   *DigestBuffer
	updater  *ext.Updater
	ctx      context.Context
	cancel   context.CancelFunc
	config   BotConfig
}

func NewTgBot(apiKey string, svc Service, roles RoleRegistry, log *slog.Logger, cfg BotConfig) (*TgBot, error) {
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 15 * time.Second
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.AlertInterval == 0 {
		cfg.AlertInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	tgBot := &TgBot{
		log:      log.With(sl.Module("tgbot")),
		svc:      svc,
		roles:    roles,
		gate:     confirm.NewGate(),
		cooldown: newCooldown(cfg.Cooldown),
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api
	tgBot.alerts = NewDigestBuffer(tgBot.deliverAlert, cfg.AlertInterval)

	return tgBot, nil
}

func (t *TgBot) Start() error {
	t.alerts.StartTicker()

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	// Member commands
	dispatcher.AddHandler(handlers.NewCommand("redeem", t.redeem))
	dispatcher.AddHandler(handlers.NewCommand("activate", t.redeem))
	dispatcher.AddHandler(handlers.NewCommand("data", t.data))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))
	dispatcher.AddHandler(handlers.NewCommand("start", t.help))

	// Group administrator commands
	dispatcher.AddHandler(handlers.NewCommand("add_license", t.addLicense))
	dispatcher.AddHandler(handlers.NewCommand("revoke", t.revoke))
	dispatcher.AddHandler(handlers.NewCommand("revoke_all", t.revokeAll))
	dispatcher.AddHandler(handlers.NewCommand("generate", t.generate))
	dispatcher.AddHandler(handlers.NewCommand("licenses", t.licenses))
	dispatcher.AddHandler(handlers.NewCommand("random_licenses", t.randomLicenses))
	dispatcher.AddHandler(handlers.NewCommand("delete_license", t.deleteLicense))
	dispatcher.AddHandler(handlers.NewCommand("delete_all", t.deleteAll))
	dispatcher.AddHandler(handlers.NewCommand("add_role", t.addRole))
	dispatcher.AddHandler(handlers.NewCommand("roles", t.rolesCmd))
	dispatcher.AddHandler(handlers.NewCommand("default_role", t.defaultRole))
	dispatcher.AddHandler(handlers.NewCommand("default_duration", t.defaultDuration))

	// Confirmation replies and callback query handlers
	dispatcher.AddHandler(handlers.NewMessage(isConfirmReply, t.onConfirmReply))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbConfirm), t.onConfirmCallback))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbDefaultRole), t.onDefaultRoleCallback))

	// Membership changes
	dispatcher.AddHandler(handlers.NewMyChatMember(isGroupUpdate, t.onMyChatMember))
	dispatcher.AddHandler(handlers.NewChatMember(isGroupUpdate, t.onChatMember))

	t.setCommands()

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout:        9,
			AllowedUpdates: []string{"message", "callback_query", "my_chat_member", "chat_member"},
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	t.log.With(slog.String("username", t.api.Username)).Info("telegram bot started")

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	t.cancel()
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		_ = t.updater.Stop()
	}
	if t.alerts != nil {
		t.alerts.Stop()
	}
}

// requestCtx bounds a command handler's service calls by the bot lifetime.
func (t *TgBot) requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(t.ctx, time.Minute)
}
