// Package entitlement is the license lifecycle and reconciliation core.
//
// The Service is stateless business logic over two collaborators:
//   - Store:    persisted licenses, grants, group settings and licensed roles
//   - Provider: the external group/role/membership system (Telegram in production)
//
// Licenses are issued in batches (Generate), redeemed once (Redeem, AddLicense)
// into grants, and grants are un-granted when they expire (Sweep) or are revoked
// (Revoke, RevokeAll). The store's uniqueness constraints on license code and on
// (member, role) are the only concurrency control; no in-process locks are held
// while the provider is called.
package entitlement

import (
	"context"
	"licensebot/entity"
	"licensebot/lib/sl"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
)

// Store defines the persistence operations the service depends on.
// Implemented by internal/database (MongoDB), internal/database/mysql and
// internal/database/memory. Absent rows are reported as entity.ErrNotFound and
// uniqueness violations as entity.ErrDuplicateKey.
type Store interface {
	InsertLicense(ctx context.Context, license *entity.License) error
	GetLicense(ctx context.Context, code string) (*entity.License, error)
	PopLicense(ctx context.Context, code string) (*entity.License, error)
	DeleteLicense(ctx context.Context, code string) error
	CountLicenses(ctx context.Context, groupID int64) (int, error)
	ListLicenses(ctx context.Context, groupID, roleID int64, limit int) ([]*entity.License, error)
	RandomLicenses(ctx context.Context, groupID int64, limit int) ([]*entity.License, error)
	DeleteGroupLicenses(ctx context.Context, groupID int64) (int64, error)

	InsertGrant(ctx context.Context, grant *entity.Grant) error
	DeleteGrant(ctx context.Context, memberID, roleID int64) error
	GetGrantExpiration(ctx context.Context, memberID, roleID int64) (time.Time, error)
	ListGrants(ctx context.Context) ([]*entity.Grant, error)
	MemberGrants(ctx context.Context, groupID, memberID int64) ([]*entity.Grant, error)

	DeleteGroupData(ctx context.Context, groupID int64, includeLicenses bool) error
	DeleteRoleData(ctx context.Context, roleID int64) error

	SetupGroup(ctx context.Context, settings *entity.GroupSettings) error
	GetGroupSettings(ctx context.Context, groupID int64) (*entity.GroupSettings, error)
	UpdateGroupSettings(ctx context.Context, settings *entity.GroupSettings) error
	RemoveGroup(ctx context.Context, groupID int64) error
	SaveRole(ctx context.Context, role *entity.Role) error
	GetRole(ctx context.Context, roleID int64) (*entity.Role, error)
	ListRoles(ctx context.Context, groupID int64) ([]*entity.Role, error)
}

// Provider is the external group system. Calls may block on network I/O.
// Not-found conditions are reported with the entity.Err*NotFound values,
// missing rights with entity.ErrForbidden and blocked direct messages with
// entity.ErrBlocked.
type Provider interface {
	ResolveGroup(ctx context.Context, groupID int64) (*entity.Group, error)
	ResolveMember(ctx context.Context, groupID, memberID int64) (*entity.Member, error)
	ResolveRole(ctx context.Context, groupID, roleID int64) (*entity.Role, error)
	CanManageRoles(ctx context.Context, groupID int64) error
	HasRole(ctx context.Context, role *entity.Role, memberID int64) (bool, error)
	AddRole(ctx context.Context, role *entity.Role, memberID int64) error
	RemoveRole(ctx context.Context, role *entity.Role, memberID int64) error
	Notify(ctx context.Context, memberID int64, text string) error
}

type Config struct {
	MaxGenerate          int
	MaxUnused            int
	DefaultDurationHours int
}

type Service struct {
	store    Store
	provider Provider
	clock    quartz.Clock
	conf     Config
	log      *slog.Logger
	newCode  func() string
}

func New(store Store, conf Config, log *slog.Logger) *Service {
	if store == nil {
		panic("entitlement store is nil")
	}
	if conf.MaxGenerate == 0 {
		conf.MaxGenerate = 25
	}
	if conf.MaxUnused == 0 {
		conf.MaxUnused = 100
	}
	if conf.DefaultDurationHours == 0 {
		conf.DefaultDurationHours = 720
	}
	return &Service{
		store:   store,
		clock:   quartz.NewReal(),
		conf:    conf,
		log:     log.With(sl.Module("entitlement")),
		newCode: func() string { return uuid.New().String() },
	}
}

// SetProvider connects the group provider. The Telegram front end is both the
// caller of the service and its provider, so it is wired after construction.
func (s *Service) SetProvider(p Provider) {
	s.provider = p
}

func (s *Service) SetClock(c quartz.Clock) {
	s.clock = c
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}
