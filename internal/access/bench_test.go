package access

import "testing"

func BenchmarkReduceIdentityChange(b *testing.B) {
	id := identity(RoleDashboardUser, "sales", "inventory", "crm")
	state := State{ActiveTab: TabUserManagement}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Reduce(state, IdentityChanged{Identity: id, Source: SourceRestore})
	}
}

func BenchmarkVisibleTabsAdmin(b *testing.B) {
	policy := NewEvaluator(identity(RoleAdmin, "dashboard", "sales", "quotation", "order", "crm"))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = policy.VisibleTabs()
	}
}
