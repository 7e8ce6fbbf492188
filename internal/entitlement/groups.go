package entitlement

import (
	"context"
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/lib/sl"
	"log/slog"
)

// Settings returns the group defaults, creating them on first use.
func (s *Service) Settings(ctx context.Context, groupID int64) (*entity.GroupSettings, error) {
	settings, err := s.store.GetGroupSettings(ctx, groupID)
	if errors.Is(err, entity.ErrNotFound) {
		if err = s.GroupJoined(ctx, groupID); err != nil {
			return nil, err
		}
		settings, err = s.store.GetGroupSettings(ctx, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("group settings: %w", err)
	}
	return settings, nil
}

// SetDefaultRole makes a registered licensed role the group default.
func (s *Service) SetDefaultRole(ctx context.Context, groupID, roleID int64) (*entity.Role, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConnected
	}
	role, err := s.provider.ResolveRole(ctx, groupID, roleID)
	if err != nil {
		return nil, providerError("resolve role", err)
	}
	settings, err := s.Settings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	settings.DefaultRoleID = role.ID
	if err = s.store.UpdateGroupSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return role, nil
}

func (s *Service) SetDefaultDuration(ctx context.Context, groupID int64, hours int) error {
	if hours < 1 {
		return ErrInvalidCount
	}
	if err := checkDuration(hours); err != nil {
		return err
	}
	settings, err := s.Settings(ctx, groupID)
	if err != nil {
		return err
	}
	settings.DefaultDurationHours = hours
	if err = s.store.UpdateGroupSettings(ctx, settings); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

// RegisterRole links a licensed chat to the group. The first registered role
// becomes the group default.
func (s *Service) RegisterRole(ctx context.Context, role *entity.Role) error {
	if err := s.store.SaveRole(ctx, role); err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	settings, err := s.Settings(ctx, role.GroupID)
	if err != nil {
		return err
	}
	if settings.DefaultRoleID == 0 {
		settings.DefaultRoleID = role.ID
		if err = s.store.UpdateGroupSettings(ctx, settings); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
	}
	s.log.With(sl.Group(role.GroupID), sl.Role(role.ID), slog.String("name", role.Name)).Info("licensed role registered")
	return nil
}

func (s *Service) Roles(ctx context.Context, groupID int64) ([]*entity.Role, error) {
	roles, err := s.store.ListRoles(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// GroupJoined stores the configured defaults for a group the bot was added
// to. Existing settings are kept.
func (s *Service) GroupJoined(ctx context.Context, groupID int64) error {
	err := s.store.SetupGroup(ctx, &entity.GroupSettings{
		GroupID:              groupID,
		DefaultDurationHours: s.conf.DefaultDurationHours,
		MaxUnusedLicenses:    s.conf.MaxUnused,
		JoinedAt:             s.now(),
	})
	if err != nil {
		return fmt.Errorf("setup group: %w", err)
	}
	s.log.With(sl.Group(groupID)).Debug("group settings ready")
	return nil
}

// GroupRemoved drops everything stored for a group the bot left.
func (s *Service) GroupRemoved(ctx context.Context, groupID int64) error {
	if err := s.store.RemoveGroup(ctx, groupID); err != nil {
		return fmt.Errorf("remove group: %w", err)
	}
	s.log.With(sl.Group(groupID)).Info("group removed, all data deleted")
	return nil
}

// RoleDeleted drops licenses, grants and the registration of a licensed role
// that no longer exists.
func (s *Service) RoleDeleted(ctx context.Context, roleID int64) error {
	if err := s.store.DeleteRoleData(ctx, roleID); err != nil {
		return fmt.Errorf("delete role data: %w", err)
	}
	s.log.With(sl.Role(roleID)).Info("licensed role deleted, all data removed")
	return nil
}

// RoleRemovedFromMember forgets the grant of a role the member lost outside
// the bot.
func (s *Service) RoleRemovedFromMember(ctx context.Context, memberID, roleID int64) error {
	err := s.store.DeleteGrant(ctx, memberID, roleID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	s.log.With(sl.Member(memberID), sl.Role(roleID)).Info("role removed externally, grant deleted")
	return nil
}
