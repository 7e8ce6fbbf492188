package entitlement_test

import (
	"context"
	"fmt"
	"licensebot/entity"
	"licensebot/internal/database/memory"
	"licensebot/internal/entitlement"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

const (
	testGroup  int64 = -100
	otherGroup int64 = -101
	roleVIP    int64 = -200
	rolePro    int64 = -201
	roleOther  int64 = -202
	alice      int64 = 7
	bob        int64 = 8
)

type roleMember struct {
	roleID   int64
	memberID int64
}

// fakeProvider is an in-memory group system with switchable failures.
type fakeProvider struct {
	mu        sync.Mutex
	groups    map[int64]*entity.Group
	roles     map[int64]*entity.Role
	members   map[int64]string
	held      map[roleMember]bool
	fail      map[string]error
	removeErr map[int64]error
	panicRole int64
	calls     map[string]int
	notified  []int64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		groups: map[int64]*entity.Group{
			testGroup:  {ID: testGroup, Title: "Traders"},
			otherGroup: {ID: otherGroup, Title: "Others"},
		},
		roles: map[int64]*entity.Role{
			roleVIP:   {ID: roleVIP, GroupID: testGroup, Name: "VIP"},
			rolePro:   {ID: rolePro, GroupID: testGroup, Name: "Pro"},
			roleOther: {ID: roleOther, GroupID: otherGroup, Name: "Other"},
		},
		members:   map[int64]string{alice: "alice", bob: "bob"},
		held:      make(map[roleMember]bool),
		fail:      make(map[string]error),
		removeErr: make(map[int64]error),
		calls:     make(map[string]int),
	}
}

func (p *fakeProvider) enter(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[op]++
	return p.fail[op]
}

func (p *fakeProvider) setFail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[op] = err
}

func (p *fakeProvider) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func (p *fakeProvider) callCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakeProvider) resetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = make(map[string]int)
}

func (p *fakeProvider) holds(roleID, memberID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held[roleMember{roleID, memberID}]
}

func (p *fakeProvider) grantDirectly(roleID, memberID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held[roleMember{roleID, memberID}] = true
}

func (p *fakeProvider) ResolveGroup(_ context.Context, groupID int64) (*entity.Group, error) {
	if err := p.enter("ResolveGroup"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[groupID]
	if !ok {
		return nil, entity.ErrGroupNotFound
	}
	return g, nil
}

func (p *fakeProvider) ResolveMember(_ context.Context, _, memberID int64) (*entity.Member, error) {
	if err := p.enter("ResolveMember"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.members[memberID]
	if !ok {
		return nil, entity.ErrMemberNotFound
	}
	return &entity.Member{ID: memberID, Username: name}, nil
}

func (p *fakeProvider) ResolveRole(_ context.Context, groupID, roleID int64) (*entity.Role, error) {
	if err := p.enter("ResolveRole"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.roles[roleID]
	if !ok || r.GroupID != groupID {
		return nil, entity.ErrRoleNotFound
	}
	return r, nil
}

func (p *fakeProvider) CanManageRoles(_ context.Context, _ int64) error {
	return p.enter("CanManageRoles")
}

func (p *fakeProvider) HasRole(_ context.Context, role *entity.Role, memberID int64) (bool, error) {
	if err := p.enter("HasRole"); err != nil {
		return false, err
	}
	return p.holds(role.ID, memberID), nil
}

func (p *fakeProvider) AddRole(_ context.Context, role *entity.Role, memberID int64) error {
	if err := p.enter("AddRole"); err != nil {
		return err
	}
	p.grantDirectly(role.ID, memberID)
	return nil
}

func (p *fakeProvider) RemoveRole(_ context.Context, role *entity.Role, memberID int64) error {
	if err := p.enter("RemoveRole"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if role.ID == p.panicRole {
		panic(fmt.Sprintf("provider exploded on role %d", role.ID))
	}
	if err := p.removeErr[role.ID]; err != nil {
		return err
	}
	if _, ok := p.members[memberID]; !ok {
		return entity.ErrMemberNotFound
	}
	key := roleMember{role.ID, memberID}
	if !p.held[key] {
		return entity.ErrRoleNotHeld
	}
	delete(p.held, key)
	return nil
}

func (p *fakeProvider) Notify(_ context.Context, memberID int64, _ string) error {
	if err := p.enter("Notify"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notified = append(p.notified, memberID)
	return nil
}

type fixture struct {
	svc      *entitlement.Service
	store    *memory.Store
	provider *fakeProvider
	clock    *quartz.Mock
	start    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore lets a test interpose on the memory store.
func newFixtureWithStore(t *testing.T, wrap func(entitlement.Store) entitlement.Store) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		provider: newFakeProvider(),
		clock:    quartz.NewMock(t),
		start:    time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
	f.clock.Set(f.start)

	var store entitlement.Store = f.store
	if wrap != nil {
		store = wrap(f.store)
	}
	f.svc = entitlement.New(store, entitlement.Config{
		MaxGenerate:          25,
		MaxUnused:            5,
		DefaultDurationHours: 24,
	}, slog.New(slog.DiscardHandler))
	f.svc.SetProvider(f.provider)
	f.svc.SetClock(f.clock)

	ctx := context.Background()
	require.NoError(t, f.svc.RegisterRole(ctx, &entity.Role{ID: roleVIP, GroupID: testGroup, Name: "VIP"}))
	require.NoError(t, f.svc.RegisterRole(ctx, &entity.Role{ID: rolePro, GroupID: testGroup, Name: "Pro"}))
	require.NoError(t, f.svc.RegisterRole(ctx, &entity.Role{ID: roleOther, GroupID: otherGroup, Name: "Other"}))
	f.provider.resetCalls()
	return f
}

func (f *fixture) license(t *testing.T, code string, groupID, roleID int64, hours int) {
	t.Helper()
	require.NoError(t, f.store.InsertLicense(context.Background(), &entity.License{
		Code:          code,
		GroupID:       groupID,
		RoleID:        roleID,
		DurationHours: hours,
		CreatedAt:     f.start,
	}))
}

func (f *fixture) grant(t *testing.T, memberID, groupID, roleID int64, expires time.Time) {
	t.Helper()
	require.NoError(t, f.store.InsertGrant(context.Background(), &entity.Grant{
		MemberID:  memberID,
		GroupID:   groupID,
		RoleID:    roleID,
		ExpiresAt: expires,
	}))
	f.provider.grantDirectly(roleID, memberID)
}

func (f *fixture) hasLicense(code string) bool {
	_, err := f.store.GetLicense(context.Background(), code)
	return err == nil
}

func (f *fixture) hasGrant(memberID, roleID int64) bool {
	_, err := f.store.GetGrantExpiration(context.Background(), memberID, roleID)
	return err == nil
}
