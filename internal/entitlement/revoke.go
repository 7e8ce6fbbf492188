package entitlement

import (
	"context"
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/lib/sl"
	"log/slog"
)

// RoleFailure is a grant RevokeAll could not remove.
type RoleFailure struct {
	RoleID int64
	Err    error
}

type RevokeReport struct {
	Revoked int
	Failed  []RoleFailure
}

// Revoke removes an active subscription: the role first, so a provider failure
// is visible to the caller and nothing is lost, then the grant row.
func (s *Service) Revoke(ctx context.Context, groupID, memberID, roleID int64) error {
	if s.provider == nil {
		return ErrProviderNotConnected
	}
	grant, err := s.findGrant(ctx, groupID, memberID, roleID)
	if err != nil {
		return err
	}
	if err = s.revokeGrant(ctx, grant); err != nil {
		return err
	}
	s.log.With(sl.Group(groupID), sl.Member(memberID), sl.Role(roleID)).Info("subscription revoked")
	return nil
}

// RevokeAll revokes every subscription of the member in the group. Grants are
// handled independently; a failure on one role does not stop the others.
func (s *Service) RevokeAll(ctx context.Context, groupID, memberID int64) (*RevokeReport, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConnected
	}
	grants, err := s.store.MemberGrants(ctx, groupID, memberID)
	if err != nil {
		return nil, fmt.Errorf("member grants: %w", err)
	}

	report := &RevokeReport{}
	for _, grant := range grants {
		if err = s.revokeGrant(ctx, grant); err != nil {
			s.log.With(
				sl.Group(groupID),
				sl.Member(memberID),
				sl.Role(grant.RoleID),
			).Warn("revoking subscription", sl.Err(err))
			report.Failed = append(report.Failed, RoleFailure{RoleID: grant.RoleID, Err: err})
			continue
		}
		report.Revoked++
	}
	s.log.With(
		sl.Group(groupID),
		sl.Member(memberID),
		slog.Int("revoked", report.Revoked),
		slog.Int("failed", len(report.Failed)),
	).Info("revoked all subscriptions")
	return report, nil
}

func (s *Service) findGrant(ctx context.Context, groupID, memberID, roleID int64) (*entity.Grant, error) {
	grants, err := s.store.MemberGrants(ctx, groupID, memberID)
	if err != nil {
		return nil, fmt.Errorf("member grants: %w", err)
	}
	for _, g := range grants {
		if g.RoleID == roleID {
			return g, nil
		}
	}
	return nil, ErrNoSubscription
}

// revokeGrant removes the role from the member and then the grant row. A role
// that no longer exists in the group, or that the member no longer holds, has
// nothing to remove.
func (s *Service) revokeGrant(ctx context.Context, grant *entity.Grant) error {
	role, err := s.provider.ResolveRole(ctx, grant.GroupID, grant.RoleID)
	switch {
	case errors.Is(err, entity.ErrRoleNotFound):
		s.log.With(sl.Group(grant.GroupID), sl.Role(grant.RoleID)).
			Info("role no longer exists in group, removing grant only")
	case err != nil:
		return providerError("resolve role", err)
	default:
		err = s.provider.RemoveRole(ctx, role, grant.MemberID)
		if err != nil && !errors.Is(err, entity.ErrRoleNotHeld) && !errors.Is(err, entity.ErrMemberNotFound) {
			return providerError("remove role", err)
		}
	}

	err = s.store.DeleteGrant(ctx, grant.MemberID, grant.RoleID)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return fmt.Errorf("delete grant: %w", err)
	}
	return nil
}
