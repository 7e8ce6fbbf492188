package entitlement

import (
	"context"
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/lib/sl"
	"log/slog"
)

type SweepReport struct {
	Checked      int
	Expired      int
	Removed      int
	Skipped      int
	PurgedGroups []int64
}

type sweepOutcome int

const (
	outcomeRemoved sweepOutcome = iota
	outcomeSkipped
	outcomePurged
)

// Sweep un-grants every grant whose expiration lies strictly before the time
// observed at the start of the sweep. Each grant is handled on its own: a
// failed role removal leaves the row in place for the next sweep, and a grant
// is never deleted unless its role was removed or there was nothing to remove.
func (s *Service) Sweep(ctx context.Context) (*SweepReport, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConnected
	}
	grants, err := s.store.ListGrants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}

	now := s.now()
	report := &SweepReport{}
	purged := make(map[int64]bool)
	for _, grant := range grants {
		report.Checked++
		if !grant.Expired(now) {
			continue
		}
		report.Expired++
		if purged[grant.GroupID] {
			continue
		}
		if err = ctx.Err(); err != nil {
			return report, err
		}

		switch s.expireGrant(ctx, grant) {
		case outcomeRemoved:
			report.Removed++
		case outcomeSkipped:
			report.Skipped++
		case outcomePurged:
			purged[grant.GroupID] = true
			report.PurgedGroups = append(report.PurgedGroups, grant.GroupID)
		}
	}
	return report, nil
}

func (s *Service) expireGrant(ctx context.Context, grant *entity.Grant) (outcome sweepOutcome) {
	log := s.log.With(
		sl.Member(grant.MemberID),
		sl.Group(grant.GroupID),
		sl.Role(grant.RoleID),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("expiring grant panicked", slog.Any("panic", r))
			outcome = outcomeSkipped
		}
	}()
	log.Info("license expired")

	group, err := s.provider.ResolveGroup(ctx, grant.GroupID)
	if errors.Is(err, entity.ErrGroupNotFound) {
		log.Warn("group stored in database but not found by provider, removing all its data")
		if err = s.store.RemoveGroup(ctx, grant.GroupID); err != nil {
			log.Error("removing group data", sl.Err(err))
			return outcomeSkipped
		}
		return outcomePurged
	}
	if err != nil {
		log.Warn("resolving group, retry next sweep", sl.Err(err))
		return outcomeSkipped
	}

	role, err := s.provider.ResolveRole(ctx, group.ID, grant.RoleID)
	if errors.Is(err, entity.ErrRoleNotFound) {
		log.Warn("licensed role no longer exists, deleting group licenses and grants")
		if err = s.store.DeleteGroupData(ctx, group.ID, true); err != nil {
			log.Error("deleting group data", sl.Err(err))
			return outcomeSkipped
		}
		return outcomePurged
	}
	if err != nil {
		log.Warn("resolving role, retry next sweep", sl.Err(err))
		return outcomeSkipped
	}

	err = s.provider.RemoveRole(ctx, role, grant.MemberID)
	switch {
	case err == nil:
		s.notifyExpired(ctx, log, group, role, grant.MemberID)
	case errors.Is(err, entity.ErrMemberNotFound):
		log.Info("member left, nothing to remove")
	case errors.Is(err, entity.ErrRoleNotHeld):
		log.Warn("role was removed manually before it expired")
	default:
		log.Warn("can't remove role, retry next sweep", sl.Err(err))
		return outcomeSkipped
	}

	err = s.store.DeleteGrant(ctx, grant.MemberID, grant.RoleID)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		log.Error("deleting expired grant", sl.Err(err))
		return outcomeSkipped
	}
	log.Info("licensed role removed")
	return outcomeRemoved
}

// notifyExpired tells the member their license ran out. Blocked direct
// messages and other delivery failures are not retried.
func (s *Service) notifyExpired(ctx context.Context, log *slog.Logger, group *entity.Group, role *entity.Role, memberID int64) {
	msg := fmt.Sprintf("Your license in group %s has expired for the role %s", group.Title, role.Name)
	err := s.provider.Notify(ctx, memberID, msg)
	if err != nil && !errors.Is(err, entity.ErrBlocked) {
		log.Debug("notifying member", sl.Err(err))
	}
}
