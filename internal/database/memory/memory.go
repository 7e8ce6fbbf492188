// Package memory is an in-process implementation of the entitlement store,
// used for local runs and tests. It enforces the same uniqueness rules as the
// database backends: one license per code and one grant per (member, role).
package memory

import (
	"context"
	"licensebot/entity"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

type grantKey struct {
	memberID int64
	roleID   int64
}

type licenseRow struct {
	seq     uint64
	license entity.License
}

type Store struct {
	mu       sync.Mutex
	seq      uint64
	licenses map[string]licenseRow
	grants   map[grantKey]entity.Grant
	groups   map[int64]entity.GroupSettings
	roles    map[int64]entity.Role
}

func New() *Store {
	return &Store{
		licenses: make(map[string]licenseRow),
		grants:   make(map[grantKey]entity.Grant),
		groups:   make(map[int64]entity.GroupSettings),
		roles:    make(map[int64]entity.Role),
	}
}

func (s *Store) InsertLicense(_ context.Context, license *entity.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.licenses[license.Code]; ok {
		return entity.ErrDuplicateKey
	}
	s.seq++
	s.licenses[license.Code] = licenseRow{seq: s.seq, license: *license}
	return nil
}

func (s *Store) GetLicense(_ context.Context, code string) (*entity.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.licenses[code]
	if !ok {
		return nil, entity.ErrNotFound
	}
	l := row.license
	return &l, nil
}

func (s *Store) PopLicense(_ context.Context, code string) (*entity.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.licenses[code]
	if !ok {
		return nil, entity.ErrNotFound
	}
	delete(s.licenses, code)
	l := row.license
	return &l, nil
}

func (s *Store) DeleteLicense(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.licenses[code]; !ok {
		return entity.ErrNotFound
	}
	delete(s.licenses, code)
	return nil
}

func (s *Store) CountLicenses(_ context.Context, groupID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.licenses {
		if row.license.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

// ListLicenses returns licenses in insertion order.
func (s *Store) ListLicenses(_ context.Context, groupID, roleID int64, limit int) ([]*entity.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.groupRows(groupID, func(l entity.License) bool { return l.RoleID == roleID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	return toLicenses(rows, limit), nil
}

func (s *Store) RandomLicenses(_ context.Context, groupID int64, limit int) ([]*entity.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.groupRows(groupID, nil)
	rand.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	return toLicenses(rows, limit), nil
}

func (s *Store) DeleteGroupLicenses(_ context.Context, groupID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLicensesLocked(func(l entity.License) bool { return l.GroupID == groupID }), nil
}

func (s *Store) InsertGrant(_ context.Context, grant *entity.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey{memberID: grant.MemberID, roleID: grant.RoleID}
	if _, ok := s.grants[key]; ok {
		return entity.ErrDuplicateKey
	}
	s.grants[key] = *grant
	return nil
}

func (s *Store) DeleteGrant(_ context.Context, memberID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey{memberID: memberID, roleID: roleID}
	if _, ok := s.grants[key]; !ok {
		return entity.ErrNotFound
	}
	delete(s.grants, key)
	return nil
}

func (s *Store) GetGrantExpiration(_ context.Context, memberID, roleID int64) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantKey{memberID: memberID, roleID: roleID}]
	if !ok {
		return time.Time{}, entity.ErrNotFound
	}
	return g.ExpiresAt, nil
}

func (s *Store) ListGrants(_ context.Context) ([]*entity.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantsLocked(func(entity.Grant) bool { return true }), nil
}

func (s *Store) MemberGrants(_ context.Context, groupID, memberID int64) ([]*entity.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantsLocked(func(g entity.Grant) bool {
		return g.GroupID == groupID && g.MemberID == memberID
	}), nil
}

func (s *Store) DeleteGroupData(_ context.Context, groupID int64, includeLicenses bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteGrantsLocked(func(g entity.Grant) bool { return g.GroupID == groupID })
	if includeLicenses {
		s.deleteLicensesLocked(func(l entity.License) bool { return l.GroupID == groupID })
	}
	return nil
}

func (s *Store) DeleteRoleData(_ context.Context, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteGrantsLocked(func(g entity.Grant) bool { return g.RoleID == roleID })
	s.deleteLicensesLocked(func(l entity.License) bool { return l.RoleID == roleID })
	if role, ok := s.roles[roleID]; ok {
		if settings, ok := s.groups[role.GroupID]; ok && settings.DefaultRoleID == roleID {
			settings.DefaultRoleID = 0
			s.groups[role.GroupID] = settings
		}
		delete(s.roles, roleID)
	}
	return nil
}

func (s *Store) SetupGroup(_ context.Context, settings *entity.GroupSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[settings.GroupID]; !ok {
		s.groups[settings.GroupID] = *settings
	}
	return nil
}

func (s *Store) GetGroupSettings(_ context.Context, groupID int64) (*entity.GroupSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.groups[groupID]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return &settings, nil
}

func (s *Store) UpdateGroupSettings(_ context.Context, settings *entity.GroupSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[settings.GroupID]; !ok {
		return entity.ErrNotFound
	}
	s.groups[settings.GroupID] = *settings
	return nil
}

func (s *Store) RemoveGroup(_ context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteGrantsLocked(func(g entity.Grant) bool { return g.GroupID == groupID })
	s.deleteLicensesLocked(func(l entity.License) bool { return l.GroupID == groupID })
	for id, role := range s.roles {
		if role.GroupID == groupID {
			delete(s.roles, id)
		}
	}
	delete(s.groups, groupID)
	return nil
}

func (s *Store) SaveRole(_ context.Context, role *entity.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = *role
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID int64) (*entity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return &role, nil
}

func (s *Store) ListRoles(_ context.Context, groupID int64) ([]*entity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roles []*entity.Role
	for _, role := range s.roles {
		if role.GroupID == groupID {
			r := role
			roles = append(roles, &r)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (s *Store) groupRows(groupID int64, match func(entity.License) bool) []licenseRow {
	var rows []licenseRow
	for _, row := range s.licenses {
		if row.license.GroupID != groupID {
			continue
		}
		if match != nil && !match(row.license) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Store) grantsLocked(match func(entity.Grant) bool) []*entity.Grant {
	var grants []*entity.Grant
	for _, g := range s.grants {
		if match(g) {
			grant := g
			grants = append(grants, &grant)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ExpiresAt.Before(grants[j].ExpiresAt) })
	return grants
}

func (s *Store) deleteGrantsLocked(match func(entity.Grant) bool) {
	for key, g := range s.grants {
		if match(g) {
			delete(s.grants, key)
		}
	}
}

func (s *Store) deleteLicensesLocked(match func(entity.License) bool) int64 {
	var n int64
	for code, row := range s.licenses {
		if match(row.license) {
			delete(s.licenses, code)
			n++
		}
	}
	return n
}

func toLicenses(rows []licenseRow, limit int) []*entity.License {
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	licenses := make([]*entity.License, 0, len(rows))
	for _, row := range rows {
		l := row.license
		licenses = append(licenses, &l)
	}
	return licenses
}
