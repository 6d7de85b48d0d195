package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileOnShrink(t *testing.T) {
	nav := NewNavigator(InitialState(), nil)
	nav.IdentityChanged(identity(RoleDashboardUser, "sales", "inventory"), SourceLogin)
	require.True(t, nav.RequestActivate("sales", "invoices"))
	require.Equal(t, "sales", nav.State().ActiveTab)

	nav.IdentityChanged(identity(RoleDashboardUser, "inventory"), SourceRefresh)

	state := nav.State()
	assert.Equal(t, "inventory", state.ActiveTab)
	assert.Empty(t, state.ActiveSubPage)
}

func TestRequestActivateDeniedIsNoop(t *testing.T) {
	var notices []Notice
	nav := NewNavigator(InitialState(), NotifierFunc(func(n Notice) { notices = append(notices, n) }))
	nav.IdentityChanged(identity(RoleDashboardUser, "dashboard", "sales"), SourceLogin)
	require.Equal(t, "dashboard", nav.State().ActiveTab)

	ok := nav.RequestActivate("hr-payroll", "")
	assert.False(t, ok)
	assert.Equal(t, "dashboard", nav.State().ActiveTab)
	require.Len(t, notices, 1)
	assert.Equal(t, "warning", notices[0].Kind)
	assert.Equal(t, "hr-payroll", notices[0].Tab)
	assert.Contains(t, notices[0].Message, "HR & Payroll")
}

func TestLoginStartsAtDashboardThenReconciles(t *testing.T) {
	state := State{ActiveTab: "crm", ActiveSubPage: "leads"}
	next, res := Reduce(state, IdentityChanged{Identity: identity(RoleDashboardUser, "sales", "quotation"), Source: SourceLogin})
	assert.True(t, res.Reconciled)
	assert.Equal(t, "sales", next.ActiveTab)
	assert.Empty(t, next.ActiveSubPage)

	next, res = Reduce(state, IdentityChanged{Identity: identity(RoleDashboardUser, "dashboard"), Source: SourceLogin})
	assert.False(t, res.Reconciled)
	assert.Equal(t, "dashboard", next.ActiveTab)
	assert.Empty(t, next.ActiveSubPage)
}

func TestRestoreKeepsAccessibleTarget(t *testing.T) {
	state := State{ActiveTab: "inventory", ActiveSubPage: "stock-card"}
	next, res := Reduce(state, IdentityChanged{Identity: identity("warehouse", "inventory"), Source: SourceRestore})
	assert.False(t, res.Reconciled)
	assert.Equal(t, "inventory", next.ActiveTab)
	assert.Equal(t, "stock-card", next.ActiveSubPage)
}

func TestReconcileFallsBackToDashboardWhenNothingAvailable(t *testing.T) {
	state := State{ActiveTab: "sales"}
	next, res := Reduce(state, IdentityChanged{Identity: identity(RoleDashboardUser), Source: SourceRefresh})
	assert.True(t, res.Reconciled)
	assert.Equal(t, ModuleDashboard, next.ActiveTab)
}

func TestReconcileKeepsUniversalAndAdminSections(t *testing.T) {
	state := State{ActiveTab: TabSettings}
	next, res := Reduce(state, IdentityChanged{Identity: identity("cashier", "sales"), Source: SourceRestore})
	assert.False(t, res.Reconciled)
	assert.Equal(t, TabSettings, next.ActiveTab)

	state = State{ActiveTab: TabUserManagement}
	next, res = Reduce(state, IdentityChanged{Identity: identity("cashier", "sales"), Source: SourceRefresh})
	assert.True(t, res.Reconciled)
	assert.Equal(t, "sales", next.ActiveTab)
}

func TestLoggedOutResetsState(t *testing.T) {
	nav := NewNavigator(InitialState(), nil)
	nav.IdentityChanged(identity(RoleAdmin, "crm"), SourceLogin)
	require.True(t, nav.RequestActivate(TabSystemSettings, "mail"))

	nav.IdentityChanged(nil, SourceRefresh)
	state := nav.State()
	assert.False(t, state.Authenticated())
	assert.Equal(t, ModuleDashboard, state.ActiveTab)
	assert.Empty(t, state.ActiveSubPage)

	assert.False(t, nav.RequestActivate(TabSettings, ""))
}

func TestObserveSeesEveryDispatch(t *testing.T) {
	nav := NewNavigator(State{}, nil)
	assert.Equal(t, ModuleDashboard, nav.State().ActiveTab)

	var seen []Result
	nav.Observe(func(_ Event, res Result) { seen = append(seen, res) })
	nav.IdentityChanged(identity(RoleDashboardUser, "order"), SourceLogin)
	nav.RequestActivate("crm", "")
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Reconciled)
	assert.True(t, seen[1].Denied)
}

func TestStateSnapshotDoesNotAliasIdentity(t *testing.T) {
	nav := NewNavigator(InitialState(), nil)
	nav.IdentityChanged(identity(RoleDashboardUser, "sales"), SourceLogin)

	snapshot := nav.State()
	require.NotNil(t, snapshot.Identity)
	snapshot.Identity.Role = RoleAdmin
	snapshot.Identity.AllowedModules[0] = "hr-payroll"
	snapshot.Identity.AllowedModules = append(snapshot.Identity.AllowedModules, "inventory")

	policy := nav.Policy()
	assert.False(t, policy.IsAdmin())
	assert.True(t, policy.HasModuleAccess("sales"))
	assert.False(t, policy.HasModuleAccess("hr-payroll"))
	assert.False(t, nav.RequestActivate("inventory", ""))
	assert.Equal(t, "sales", nav.State().ActiveTab)
}
