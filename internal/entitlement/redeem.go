package entitlement

import (
	"context"
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/lib/clock"
	"licensebot/lib/sl"
	"log/slog"
)

// Redemption is the outcome of a successful license activation.
type Redemption struct {
	License  entity.License
	Grant    entity.Grant
	Group    entity.Group
	Role     entity.Role
	Member   entity.Member
	Repaired bool // stored grant state had drifted from the provider and was rewritten
}

// Redeem activates a license for the member who presented it. groupHint is
// the group the command was issued in, or 0 for a private chat, in which case
// the group is taken from the license.
func (s *Service) Redeem(ctx context.Context, code string, groupHint, memberID int64) (*Redemption, error) {
	return s.activate(ctx, code, groupHint, memberID)
}

// AddLicense activates a license on behalf of another member. It is an
// administrator operation issued inside groupID.
func (s *Service) AddLicense(ctx context.Context, code string, groupID, memberID int64) (*Redemption, error) {
	r, err := s.activate(ctx, code, groupID, memberID)
	if err == nil {
		s.log.With(
			sl.License(code),
			sl.Group(groupID),
			sl.Member(memberID),
		).Info("license added manually")
	}
	return r, err
}

func (s *Service) activate(ctx context.Context, code string, groupHint, memberID int64) (*Redemption, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConnected
	}
	log := s.log.With(sl.License(code), sl.Member(memberID))

	license, err := s.store.GetLicense(ctx, code)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, ErrInvalidLicense
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	if groupHint != 0 && groupHint != license.GroupID {
		return nil, ErrWrongGroup
	}
	if license.DurationHours < 1 || checkDuration(license.DurationHours) != nil {
		log.With(slog.Int("duration_hours", license.DurationHours)).Warn("stored license has an unusable duration")
		return nil, ErrInvalidLicense
	}
	log = log.With(sl.Group(license.GroupID), sl.Role(license.RoleID))

	group, err := s.provider.ResolveGroup(ctx, license.GroupID)
	if err != nil {
		return nil, providerError("resolve group", err)
	}
	if err = s.provider.CanManageRoles(ctx, group.ID); err != nil {
		return nil, providerError("check permissions", err)
	}
	member, err := s.provider.ResolveMember(ctx, group.ID, memberID)
	if err != nil {
		return nil, providerError("resolve member", err)
	}

	role, err := s.provider.ResolveRole(ctx, group.ID, license.RoleID)
	if errors.Is(err, entity.ErrRoleNotFound) {
		// the license can never be honored again
		log.Error("licensed role deleted from group, removing license")
		if delErr := s.store.DeleteLicense(ctx, code); delErr != nil && !errors.Is(delErr, entity.ErrNotFound) {
			log.Error("deleting license of missing role", sl.Err(delErr))
		}
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, providerError("resolve role", err)
	}

	holds, err := s.provider.HasRole(ctx, role, member.ID)
	if err != nil {
		return nil, providerError("check role", err)
	}
	expiration, err := s.store.GetGrantExpiration(ctx, member.ID, role.ID)
	hasRow := err == nil
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("get grant: %w", err)
	}
	if holds && hasRow {
		now := s.now()
		return nil, &AlreadyActiveError{
			Expiration: expiration,
			Remaining:  clock.Remaining(expiration, now),
		}
	}
	drift := holds != hasRow
	if drift {
		log.With(
			slog.Bool("holds_role", holds),
			slog.Bool("has_grant", hasRow),
		).Warn("grant state drifted, repairing on redemption")
	}

	// grant before consuming: a failure here leaves the license redeemable
	added := false
	if !holds {
		if err = s.provider.AddRole(ctx, role, member.ID); err != nil {
			return nil, providerError("add role", err)
		}
		added = true
	}

	claimed, err := s.store.PopLicense(ctx, code)
	if err != nil {
		if added {
			s.compensate(ctx, log, role, member.ID)
		}
		if errors.Is(err, entity.ErrNotFound) {
			log.Info("license redeemed concurrently")
			return nil, ErrInvalidLicense
		}
		return nil, fmt.Errorf("consume license: %w", err)
	}

	grant := entity.Grant{
		MemberID:  member.ID,
		GroupID:   group.ID,
		RoleID:    role.ID,
		ExpiresAt: clock.Expiration(s.now(), claimed.DurationHours),
	}
	repaired, err := s.insertGrant(ctx, log, &grant, hasRow)
	if err != nil {
		s.restoreLicense(ctx, log, claimed)
		return nil, err
	}

	log.With(
		slog.Int("duration_hours", claimed.DurationHours),
		slog.Time("expires_at", grant.ExpiresAt),
	).Info("license redeemed")

	return &Redemption{
		License:  *claimed,
		Grant:    grant,
		Group:    *group,
		Role:     *role,
		Member:   *member,
		Repaired: repaired || drift,
	}, nil
}

// insertGrant records the grant. A conflicting row that was already observed
// before the role was granted is stale drift: it is deleted and the insert is
// retried exactly once. A conflict with no prior row means another redemption
// for the same member and role won a race; that is not repaired.
func (s *Service) insertGrant(ctx context.Context, log *slog.Logger, grant *entity.Grant, staleObserved bool) (bool, error) {
	err := s.store.InsertGrant(ctx, grant)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, entity.ErrDuplicateKey) {
		return false, fmt.Errorf("insert grant: %w", err)
	}

	if !staleObserved {
		expiration, getErr := s.store.GetGrantExpiration(ctx, grant.MemberID, grant.RoleID)
		if getErr != nil {
			expiration = grant.ExpiresAt
		}
		return false, &AlreadyActiveError{
			Expiration: expiration,
			Remaining:  clock.Remaining(expiration, s.now()),
		}
	}

	err = s.store.DeleteGrant(ctx, grant.MemberID, grant.RoleID)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return false, fmt.Errorf("delete stale grant: %w", err)
	}
	err = s.store.InsertGrant(ctx, grant)
	if errors.Is(err, entity.ErrDuplicateKey) {
		log.Error("grant repair failed, manual intervention required", sl.Err(err))
		return false, ErrRepairFailed
	}
	if err != nil {
		return false, fmt.Errorf("reinsert grant: %w", err)
	}
	log.Info("stale grant replaced")
	return true, nil
}

// compensate takes back a role granted for a license somebody else consumed,
// unless the grant recorded for it belongs to this very member.
func (s *Service) compensate(ctx context.Context, log *slog.Logger, role *entity.Role, memberID int64) {
	if _, err := s.store.GetGrantExpiration(ctx, memberID, role.ID); err == nil {
		return
	}
	if err := s.provider.RemoveRole(ctx, role, memberID); err != nil && !errors.Is(err, entity.ErrRoleNotHeld) {
		log.Warn("taking back role after lost redemption", sl.Err(err))
	}
}

func (s *Service) restoreLicense(ctx context.Context, log *slog.Logger, license *entity.License) {
	if err := s.store.InsertLicense(ctx, license); err != nil {
		log.Error("restoring license after failed redemption", sl.Err(err))
	}
}

// providerError maps provider boundary errors onto the service taxonomy,
// keeping the provider cause in the chain.
func providerError(op string, err error) error {
	switch {
	case errors.Is(err, entity.ErrGroupNotFound):
		return fmt.Errorf("%w: %w", ErrGroupNotFound, err)
	case errors.Is(err, entity.ErrMemberNotFound):
		return fmt.Errorf("%w: %w", ErrMemberNotFound, err)
	case errors.Is(err, entity.ErrRoleNotFound):
		return fmt.Errorf("%w: %w", ErrRoleNotFound, err)
	case errors.Is(err, entity.ErrForbidden):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
