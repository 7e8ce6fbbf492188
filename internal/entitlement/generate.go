package entitlement

import (
	"context"
	"errors"
	"fmt"
	"licensebot/entity"
	"licensebot/lib/sl"
	"log/slog"
)

// Batch is the result of a generation call.
type Batch struct {
	Codes         []string    `json:"codes"`
	Role          entity.Role `json:"role"`
	DurationHours int         `json:"duration_hours"`
}

// Generate issues count new licenses for the group. A zero roleID or hours
// selects the group default. The group's unused license quota is never
// exceeded: the call is rejected up front and nothing is inserted.
func (s *Service) Generate(ctx context.Context, groupID int64, count int, roleID int64, hours int) (*Batch, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConnected
	}
	if count < 1 {
		return nil, ErrInvalidCount
	}
	if count > s.conf.MaxGenerate {
		return nil, fmt.Errorf("%w: at most %d at once", ErrTooMany, s.conf.MaxGenerate)
	}
	if hours < 0 {
		return nil, ErrInvalidCount
	}
	if err := checkDuration(hours); err != nil {
		return nil, err
	}

	settings, err := s.Settings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	quota := settings.MaxUnusedLicenses
	current, err := s.store.CountLicenses(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("count licenses: %w", err)
	}
	if current >= quota {
		return nil, fmt.Errorf("%w: %d", ErrQuotaExceeded, quota)
	}
	if current+count > quota {
		return nil, &QuotaWouldExceedError{Quota: quota, Remaining: quota - current}
	}

	if hours == 0 {
		hours = settings.DefaultDurationHours
	}
	role, err := s.licensedRole(ctx, settings, roleID)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		Codes:         make([]string, 0, count),
		Role:          *role,
		DurationHours: hours,
	}
	for i := 0; i < count; i++ {
		license := &entity.License{
			GroupID:       groupID,
			RoleID:        role.ID,
			DurationHours: hours,
			CreatedAt:     s.now(),
		}
		if err = s.insertNewLicense(ctx, license); err != nil {
			return batch, err
		}
		batch.Codes = append(batch.Codes, license.Code)
	}

	s.log.With(
		sl.Group(groupID),
		sl.Role(role.ID),
		slog.Int("count", len(batch.Codes)),
		slog.Int("duration_hours", hours),
	).Info("licenses generated")
	return batch, nil
}

// insertNewLicense assigns a fresh code; a code collision is retried once.
func (s *Service) insertNewLicense(ctx context.Context, license *entity.License) error {
	for attempt := 0; attempt < 2; attempt++ {
		license.Code = s.newCode()
		if err := license.Validate(); err != nil {
			return fmt.Errorf("validate license: %w", err)
		}
		err := s.store.InsertLicense(ctx, license)
		if err == nil {
			return nil
		}
		if !errors.Is(err, entity.ErrDuplicateKey) {
			return fmt.Errorf("insert license: %w", err)
		}
	}
	return fmt.Errorf("insert license: %w", entity.ErrDuplicateKey)
}

// licensedRole resolves an explicit role or the group default.
func (s *Service) licensedRole(ctx context.Context, settings *entity.GroupSettings, roleID int64) (*entity.Role, error) {
	if roleID == 0 {
		roleID = settings.DefaultRoleID
	}
	if roleID == 0 {
		return nil, ErrNoDefaultRole
	}
	role, err := s.provider.ResolveRole(ctx, settings.GroupID, roleID)
	if err != nil {
		return nil, providerError("resolve role", err)
	}
	return role, nil
}

// ListLicenses returns unredeemed licenses of one role, the group default when
// roleID is 0. A limit of 0 lists up to the group quota.
func (s *Service) ListLicenses(ctx context.Context, groupID, roleID int64, limit int) (*entity.Role, []*entity.License, error) {
	if s.provider == nil {
		return nil, nil, ErrProviderNotConnected
	}
	settings, err := s.Settings(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	role, err := s.licensedRole(ctx, settings, roleID)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 || limit > settings.MaxUnusedLicenses {
		limit = settings.MaxUnusedLicenses
	}
	licenses, err := s.store.ListLicenses(ctx, groupID, role.ID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list licenses: %w", err)
	}
	return role, licenses, nil
}

// ListRandomLicenses returns up to n random unredeemed licenses of the group.
func (s *Service) ListRandomLicenses(ctx context.Context, groupID int64, n int) ([]*entity.License, error) {
	if n < 1 {
		return nil, ErrInvalidCount
	}
	settings, err := s.Settings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if n > settings.MaxUnusedLicenses {
		return nil, fmt.Errorf("%w: at most %d", ErrTooMany, settings.MaxUnusedLicenses)
	}
	licenses, err := s.store.RandomLicenses(ctx, groupID, n)
	if err != nil {
		return nil, fmt.Errorf("random licenses: %w", err)
	}
	return licenses, nil
}

// MemberActiveGrants lists the member's stored grants in the group.
func (s *Service) MemberActiveGrants(ctx context.Context, groupID, memberID int64) ([]*entity.Grant, error) {
	grants, err := s.store.MemberGrants(ctx, groupID, memberID)
	if err != nil {
		return nil, fmt.Errorf("member grants: %w", err)
	}
	return grants, nil
}

// DeleteLicense removes one unredeemed license of the group.
func (s *Service) DeleteLicense(ctx context.Context, groupID int64, code string) error {
	license, err := s.store.GetLicense(ctx, code)
	if errors.Is(err, entity.ErrNotFound) {
		return ErrInvalidLicense
	}
	if err != nil {
		return fmt.Errorf("get license: %w", err)
	}
	if license.GroupID != groupID {
		return ErrInvalidLicense
	}
	err = s.store.DeleteLicense(ctx, code)
	if errors.Is(err, entity.ErrNotFound) {
		return ErrInvalidLicense
	}
	if err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	s.log.With(sl.Group(groupID), sl.License(code)).Info("license deleted")
	return nil
}

// DeleteAllForGroup removes every unredeemed license of the group. Active
// grants are not touched.
func (s *Service) DeleteAllForGroup(ctx context.Context, groupID int64) (int64, error) {
	n, err := s.store.DeleteGroupLicenses(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("delete group licenses: %w", err)
	}
	s.log.With(sl.Group(groupID), slog.Int64("deleted", n)).Info("all group licenses deleted")
	return n, nil
}
