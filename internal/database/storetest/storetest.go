// Package storetest holds the behavioral contract every entitlement store
// implementation must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"licensebot/entity"
	"licensebot/internal/entitlement"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	groupA int64 = -1001
	groupB int64 = -1002
	roleA1 int64 = -2001
	roleA2 int64 = -2002
	roleB1 int64 = -2003
)

// Run executes the contract against stores produced by newStore. Each subtest
// gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) entitlement.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s entitlement.Store)
	}{
		{"LicenseCodeIsUnique", testLicenseCodeIsUnique},
		{"PopLicenseIsSingleUse", testPopLicenseIsSingleUse},
		{"ConcurrentPopHasOneWinner", testConcurrentPopHasOneWinner},
		{"CountAndList", testCountAndList},
		{"GrantPairIsUnique", testGrantPairIsUnique},
		{"GrantLifecycle", testGrantLifecycle},
		{"DeleteGroupData", testDeleteGroupData},
		{"DeleteRoleData", testDeleteRoleData},
		{"GroupSettings", testGroupSettings},
		{"RemoveGroup", testRemoveGroup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func license(code string, group, role int64) *entity.License {
	return &entity.License{
		Code:          code,
		GroupID:       group,
		RoleID:        role,
		DurationHours: 24,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func grant(member, group, role int64, expires time.Time) *entity.Grant {
	return &entity.Grant{MemberID: member, GroupID: group, RoleID: role, ExpiresAt: expires}
}

func testLicenseCodeIsUnique(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertLicense(ctx, license("code-1", groupA, roleA1)))
	err := s.InsertLicense(ctx, license("code-1", groupB, roleB1))
	require.ErrorIs(t, err, entity.ErrDuplicateKey)

	got, err := s.GetLicense(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, groupA, got.GroupID)
	assert.Equal(t, roleA1, got.RoleID)
	assert.Equal(t, 24, got.DurationHours)
}

func testPopLicenseIsSingleUse(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertLicense(ctx, license("code-1", groupA, roleA1)))

	got, err := s.PopLicense(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "code-1", got.Code)

	_, err = s.PopLicense(ctx, "code-1")
	require.ErrorIs(t, err, entity.ErrNotFound)
	_, err = s.GetLicense(ctx, "code-1")
	require.ErrorIs(t, err, entity.ErrNotFound)
	require.ErrorIs(t, s.DeleteLicense(ctx, "code-1"), entity.ErrNotFound)
}

func testConcurrentPopHasOneWinner(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertLicense(ctx, license("code-1", groupA, roleA1)))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PopLicense(ctx, "code-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for err := range results {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, entity.ErrNotFound)
	}
	assert.Equal(t, 1, won)
}

func testCountAndList(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	for _, code := range []string{"a1", "a2", "a3"} {
		require.NoError(t, s.InsertLicense(ctx, license(code, groupA, roleA1)))
	}
	require.NoError(t, s.InsertLicense(ctx, license("a4", groupA, roleA2)))
	require.NoError(t, s.InsertLicense(ctx, license("b1", groupB, roleB1)))

	n, err := s.CountLicenses(ctx, groupA)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	listed, err := s.ListLicenses(ctx, groupA, roleA1, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, l := range listed {
		assert.Equal(t, roleA1, l.RoleID)
	}

	random, err := s.RandomLicenses(ctx, groupA, 10)
	require.NoError(t, err)
	assert.Len(t, random, 4)
	for _, l := range random {
		assert.Equal(t, groupA, l.GroupID)
	}

	deleted, err := s.DeleteGroupLicenses(ctx, groupA)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	n, err = s.CountLicenses(ctx, groupB)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testGrantPairIsUnique(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupA, roleA1, expires)))
	err := s.InsertGrant(ctx, grant(7, groupA, roleA1, expires.Add(time.Hour)))
	require.ErrorIs(t, err, entity.ErrDuplicateKey)

	// same member, other role; same role, other member
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupA, roleA2, expires)))
	require.NoError(t, s.InsertGrant(ctx, grant(8, groupA, roleA1, expires)))
}

func testGrantLifecycle(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupA, roleA1, expires)))
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupB, roleB1, expires)))

	got, err := s.GetGrantExpiration(ctx, 7, roleA1)
	require.NoError(t, err)
	assert.True(t, expires.Equal(got), "expiration %s != %s", got, expires)

	all, err := s.ListGrants(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := s.MemberGrants(ctx, groupA, 7)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, roleA1, mine[0].RoleID)

	require.NoError(t, s.DeleteGrant(ctx, 7, roleA1))
	require.ErrorIs(t, s.DeleteGrant(ctx, 7, roleA1), entity.ErrNotFound)
	_, err = s.GetGrantExpiration(ctx, 7, roleA1)
	require.ErrorIs(t, err, entity.ErrNotFound)
}

func testDeleteGroupData(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.InsertLicense(ctx, license("a1", groupA, roleA1)))
	require.NoError(t, s.InsertLicense(ctx, license("b1", groupB, roleB1)))
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupA, roleA1, expires)))
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupB, roleB1, expires)))

	require.NoError(t, s.DeleteGroupData(ctx, groupA, false))
	n, err := s.CountLicenses(ctx, groupA)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "licenses kept without includeLicenses")
	mine, err := s.MemberGrants(ctx, groupA, 7)
	require.NoError(t, err)
	assert.Empty(t, mine)

	require.NoError(t, s.DeleteGroupData(ctx, groupA, true))
	n, err = s.CountLicenses(ctx, groupA)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := s.ListGrants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, groupB, all[0].GroupID)
}

func testDeleteRoleData(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.SetupGroup(ctx, &entity.GroupSettings{GroupID: groupA, MaxUnusedLicenses: 10, DefaultDurationHours: 1}))
	require.NoError(t, s.SaveRole(ctx, &entity.Role{ID: roleA1, GroupID: groupA, Name: "vip"}))
	require.NoError(t, s.SaveRole(ctx, &entity.Role{ID: roleA2, GroupID: groupA, Name: "pro"}))
	settings, err := s.GetGroupSettings(ctx, groupA)
	require.NoError(t, err)
	settings.DefaultRoleID = roleA1
	require.NoError(t, s.UpdateGroupSettings(ctx, settings))

	require.NoError(t, s.InsertLicense(ctx, license("a1", groupA, roleA1)))
	require.NoError(t, s.InsertLicense(ctx, license("a2", groupA, roleA2)))
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupA, roleA1, expires)))
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupA, roleA2, expires)))

	require.NoError(t, s.DeleteRoleData(ctx, roleA1))

	_, err = s.GetLicense(ctx, "a1")
	require.ErrorIs(t, err, entity.ErrNotFound)
	_, err = s.GetLicense(ctx, "a2")
	require.NoError(t, err)
	_, err = s.GetGrantExpiration(ctx, 7, roleA1)
	require.ErrorIs(t, err, entity.ErrNotFound)
	_, err = s.GetRole(ctx, roleA1)
	require.ErrorIs(t, err, entity.ErrNotFound)

	settings, err = s.GetGroupSettings(ctx, groupA)
	require.NoError(t, err)
	assert.Zero(t, settings.DefaultRoleID)
}

func testGroupSettings(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	_, err := s.GetGroupSettings(ctx, groupA)
	require.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, s.SetupGroup(ctx, &entity.GroupSettings{GroupID: groupA, DefaultDurationHours: 24, MaxUnusedLicenses: 5}))
	// a second setup keeps what is stored
	require.NoError(t, s.SetupGroup(ctx, &entity.GroupSettings{GroupID: groupA, DefaultDurationHours: 1, MaxUnusedLicenses: 1}))

	settings, err := s.GetGroupSettings(ctx, groupA)
	require.NoError(t, err)
	assert.Equal(t, 24, settings.DefaultDurationHours)
	assert.Equal(t, 5, settings.MaxUnusedLicenses)

	settings.DefaultDurationHours = 48
	require.NoError(t, s.UpdateGroupSettings(ctx, settings))
	settings, err = s.GetGroupSettings(ctx, groupA)
	require.NoError(t, err)
	assert.Equal(t, 48, settings.DefaultDurationHours)

	require.NoError(t, s.SaveRole(ctx, &entity.Role{ID: roleA1, GroupID: groupA, Name: "vip"}))
	require.NoError(t, s.SaveRole(ctx, &entity.Role{ID: roleA1, GroupID: groupA, Name: "vip+"}))
	roles, err := s.ListRoles(ctx, groupA)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "vip+", roles[0].Name)
}

func testRemoveGroup(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	require.NoError(t, s.SetupGroup(ctx, &entity.GroupSettings{GroupID: groupA, MaxUnusedLicenses: 5}))
	require.NoError(t, s.SaveRole(ctx, &entity.Role{ID: roleA1, GroupID: groupA, Name: "vip"}))
	require.NoError(t, s.InsertLicense(ctx, license("a1", groupA, roleA1)))
	require.NoError(t, s.InsertGrant(ctx, grant(7, groupA, roleA1, time.Now().UTC())))

	require.NoError(t, s.RemoveGroup(ctx, groupA))

	_, err := s.GetGroupSettings(ctx, groupA)
	require.ErrorIs(t, err, entity.ErrNotFound)
	roles, err := s.ListRoles(ctx, groupA)
	require.NoError(t, err)
	assert.Empty(t, roles)
	n, err := s.CountLicenses(ctx, groupA)
	require.NoError(t, err)
	assert.Zero(t, n)
	all, err := s.ListGrants(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
