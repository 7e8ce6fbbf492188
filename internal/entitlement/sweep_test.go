package entitlement_test

import (
	"context"
	"errors"
	"licensebot/entity"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_RemovesOnlyExpiredGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, alice, testGroup, roleVIP, f.start.Add(time.Hour))
	f.grant(t, bob, testGroup, roleVIP, f.start.Add(48*time.Hour))
	// expiring exactly at sweep time is still valid
	f.grant(t, alice, testGroup, rolePro, f.start.Add(2*time.Hour))

	f.clock.Set(f.start.Add(2 * time.Hour))
	report, err := f.svc.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Removed)
	assert.False(t, f.hasGrant(alice, roleVIP))
	assert.False(t, f.provider.holds(roleVIP, alice))
	assert.True(t, f.hasGrant(bob, roleVIP))
	assert.True(t, f.hasGrant(alice, rolePro))
	assert.Equal(t, []int64{alice}, f.provider.notified)
}

func TestSweep_FailedRemovalIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, alice, testGroup, roleVIP, f.start)
	f.provider.removeErr[roleVIP] = errors.New("telegram is down")

	f.clock.Set(f.start.Add(time.Minute))
	report, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.True(t, f.hasGrant(alice, roleVIP), "row kept for next sweep")

	delete(f.provider.removeErr, roleVIP)
	report, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.False(t, f.hasGrant(alice, roleVIP))
}

func TestSweep_NothingToRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, alice, testGroup, roleVIP, f.start)
	f.grant(t, bob, testGroup, roleVIP, f.start)
	// alice left the group, bob lost the role by hand
	delete(f.provider.members, alice)
	delete(f.provider.held, roleMember{roleVIP, bob})

	f.clock.Set(f.start.Add(time.Minute))
	report, err := f.svc.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Removed)
	assert.False(t, f.hasGrant(alice, roleVIP))
	assert.False(t, f.hasGrant(bob, roleVIP))
	assert.Empty(t, f.provider.notified)
}

func TestSweep_BlockedNotificationDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.grant(t, alice, testGroup, roleVIP, f.start)
	f.provider.setFail("Notify", entity.ErrBlocked)

	f.clock.Set(f.start.Add(time.Minute))
	report, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.False(t, f.hasGrant(alice, roleVIP))
}

func TestSweep_DeletedRolePurgesGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, alice, testGroup, roleVIP, f.start)
	f.grant(t, bob, testGroup, roleVIP, f.start)
	f.grant(t, bob, testGroup, rolePro, f.start.Add(time.Hour*100))
	f.grant(t, alice, otherGroup, roleOther, f.start.Add(time.Hour*100))
	f.license(t, "code-1", testGroup, rolePro, 24)
	f.license(t, "code-2", otherGroup, roleOther, 24)
	delete(f.provider.roles, roleVIP)

	f.clock.Set(f.start.Add(time.Minute))
	report, err := f.svc.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{testGroup}, report.PurgedGroups)
	assert.Equal(t, 1, f.provider.callCount("ResolveRole"), "purged group is not revisited")
	assert.False(t, f.hasGrant(bob, rolePro))
	assert.False(t, f.hasLicense("code-1"))
	assert.True(t, f.hasGrant(alice, roleOther))
	assert.True(t, f.hasLicense("code-2"))
}

func TestSweep_MissingGroupRemovesAllGroupState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grant(t, alice, testGroup, roleVIP, f.start)
	f.license(t, "code-1", testGroup, roleVIP, 24)
	delete(f.provider.groups, testGroup)

	f.clock.Set(f.start.Add(time.Minute))
	report, err := f.svc.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{testGroup}, report.PurgedGroups)
	_, err = f.store.GetGroupSettings(ctx, testGroup)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	roles, err := f.store.ListRoles(ctx, testGroup)
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.False(t, f.hasLicense("code-1"))
	assert.False(t, f.hasGrant(alice, roleVIP))
}

func TestSweep_PanicIsContainedToOneGrant(t *testing.T) {
	f := newFixture(t)
	f.grant(t, alice, testGroup, roleVIP, f.start)
	f.grant(t, bob, testGroup, rolePro, f.start)
	f.provider.panicRole = roleVIP

	f.clock.Set(f.start.Add(time.Minute))
	report, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Removed)
	assert.True(t, f.hasGrant(alice, roleVIP))
	assert.False(t, f.hasGrant(bob, rolePro))
}

func TestSweep_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.grant(t, alice, testGroup, roleVIP, f.start)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.clock.Set(f.start.Add(time.Minute))
	_, err := f.svc.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.hasGrant(alice, roleVIP))
}
