package core

import (
	"context"
	"fmt"
	"licensebot/entity"
	"licensebot/internal/entitlement"
	"licensebot/lib/api/cont"
	"licensebot/lib/sl"
	"log/slog"
)

type AuthService interface {
	OperatorByToken(token string) (*entity.Operator, error)
}

// LicenseService is the part of the entitlement service exposed over HTTP.
type LicenseService interface {
	Generate(ctx context.Context, groupID int64, count int, roleID int64, hours int) (*entitlement.Batch, error)
	ListLicenses(ctx context.Context, groupID, roleID int64, limit int) (*entity.Role, []*entity.License, error)
	DeleteLicense(ctx context.Context, groupID int64, code string) error
	MemberActiveGrants(ctx context.Context, groupID, memberID int64) ([]*entity.Grant, error)
	Revoke(ctx context.Context, groupID, memberID, roleID int64) error
}

// Core backs the admin API: operator authentication and license
// administration on behalf of the authenticated operator.
type Core struct {
	svc  LicenseService
	auth AuthService
	log  *slog.Logger
}

func New(svc LicenseService, log *slog.Logger) *Core {
	if svc == nil {
		panic("license service is nil")
	}
	return &Core{
		svc: svc,
		log: log.With(sl.Module("core")),
	}
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

func (c *Core) AuthenticateByToken(token string) (*entity.Operator, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth service not connected")
	}
	return c.auth.OperatorByToken(token)
}

func (c *Core) audit(ctx context.Context, groupID int64) *slog.Logger {
	return c.log.With(
		slog.String("operator", cont.GetOperator(ctx).Name),
		sl.Group(groupID),
	)
}

func (c *Core) GenerateLicenses(ctx context.Context, groupID int64, req *entity.GenerateRequest) (*entitlement.Batch, error) {
	batch, err := c.svc.Generate(ctx, groupID, req.Count, req.RoleID, req.DurationHours)
	if err != nil {
		return nil, err
	}
	c.audit(ctx, groupID).With(
		sl.Role(batch.Role.ID),
		slog.Int("count", len(batch.Codes)),
	).Info("licenses generated")
	return batch, nil
}

func (c *Core) GroupLicenses(ctx context.Context, groupID, roleID int64, limit int) (*entity.Role, []*entity.License, error) {
	return c.svc.ListLicenses(ctx, groupID, roleID, limit)
}

func (c *Core) DeleteLicense(ctx context.Context, groupID int64, code string) error {
	if err := c.svc.DeleteLicense(ctx, groupID, code); err != nil {
		return err
	}
	c.audit(ctx, groupID).With(sl.License(code)).Info("license deleted")
	return nil
}

func (c *Core) MemberGrants(ctx context.Context, groupID, memberID int64) ([]*entity.Grant, error) {
	return c.svc.MemberActiveGrants(ctx, groupID, memberID)
}

func (c *Core) RevokeGrant(ctx context.Context, groupID, memberID, roleID int64) error {
	if err := c.svc.Revoke(ctx, groupID, memberID, roleID); err != nil {
		return err
	}
	c.audit(ctx, groupID).With(sl.Member(memberID), sl.Role(roleID)).Info("grant revoked")
	return nil
}
