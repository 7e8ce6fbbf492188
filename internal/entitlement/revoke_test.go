package entitlement_test

import (
	"context"
	"errors"
	"licensebot/internal/entitlement"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevoke_WithoutGrantMakesNoProviderCalls(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Revoke(context.Background(), testGroup, alice, roleVIP)
	require.ErrorIs(t, err, entitlement.ErrNoSubscription)
	assert.Zero(t, f.provider.totalCalls())
}

func TestRevoke_RemovesRoleThenGrant(t *testing.T) {
	f := newFixture(t)
	f.grant(t, alice, testGroup, roleVIP, f.start.Add(time.Hour))

	require.NoError(t, f.svc.Revoke(context.Background(), testGroup, alice, roleVIP))
	assert.False(t, f.provider.holds(roleVIP, alice))
	assert.False(t, f.hasGrant(alice, roleVIP))
}

func TestRevoke_ProviderFailureKeepsGrant(t *testing.T) {
	f := newFixture(t)
	f.grant(t, alice, testGroup, roleVIP, f.start.Add(time.Hour))
	f.provider.removeErr[roleVIP] = errors.New("timeout")

	err := f.svc.Revoke(context.Background(), testGroup, alice, roleVIP)
	require.Error(t, err)
	assert.True(t, f.hasGrant(alice, roleVIP))
	assert.True(t, f.provider.holds(roleVIP, alice))
}

func TestRevoke_GrantOfAnotherGroup(t *testing.T) {
	f := newFixture(t)
	f.grant(t, alice, otherGroup, roleOther, f.start.Add(time.Hour))

	err := f.svc.Revoke(context.Background(), testGroup, alice, roleOther)
	require.ErrorIs(t, err, entitlement.ErrNoSubscription)
	assert.True(t, f.hasGrant(alice, roleOther))
}

func TestRevokeAll_FailuresAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.grant(t, alice, testGroup, roleVIP, f.start.Add(time.Hour))
	f.grant(t, alice, testGroup, rolePro, f.start.Add(2*time.Hour))
	// role deleted from the group: the row goes, nothing to remove
	f.grant(t, alice, testGroup, -301, f.start.Add(3*time.Hour))
	f.grant(t, bob, testGroup, roleVIP, f.start.Add(time.Hour))
	f.provider.removeErr[rolePro] = errors.New("timeout")

	report, err := f.svc.RevokeAll(context.Background(), testGroup, alice)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Revoked)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, rolePro, report.Failed[0].RoleID)
	assert.False(t, f.hasGrant(alice, roleVIP))
	assert.False(t, f.hasGrant(alice, -301))
	assert.True(t, f.hasGrant(alice, rolePro))
	assert.True(t, f.hasGrant(bob, roleVIP))
}

func TestRevokeAll_NoGrants(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.RevokeAll(context.Background(), testGroup, alice)
	require.NoError(t, err)
	assert.Zero(t, report.Revoked)
	assert.Empty(t, report.Failed)
}
