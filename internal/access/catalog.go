package access

// Module keys in canonical display order.
const (
	ModuleDashboard     = "dashboard"
	ModuleSales         = "sales"
	ModuleQuotation     = "quotation"
	ModuleOrder         = "order"
	ModuleService       = "service"
	ModulePurchase      = "purchase"
	ModuleManufacturing = "manufacturing"
	ModuleInventory     = "inventory"
	ModuleAccounts      = "accounts"
	ModuleHRPayroll     = "hr-payroll"
	ModuleReports       = "reports"
	ModuleCRM           = "crm"
)

// Sections outside the module catalog.
const (
	TabUserManagement = "user-management"
	TabRoleManagement = "role-management"
	TabSystemSettings = "system-settings"
	TabSettings       = "settings"
)

// Module describes a catalog entry.
type Module struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Bucket classifies a navigation target for admission.
type Bucket int

const (
	// BucketModule covers catalog modules and any unrecognised key.
	BucketModule Bucket = iota
	// BucketAdmin covers sections reserved for administrators.
	BucketAdmin
	// BucketUniversal covers sections open to every authenticated identity.
	BucketUniversal
)

// String returns the bucket name used in metrics and logs.
func (b Bucket) String() string {
	switch b {
	case BucketAdmin:
		return "admin"
	case BucketUniversal:
		return "universal"
	default:
		return "module"
	}
}

var catalog = []Module{
	{Key: ModuleDashboard, Label: "Dashboard"},
	{Key: ModuleSales, Label: "Sales"},
	{Key: ModuleQuotation, Label: "Quotation"},
	{Key: ModuleOrder, Label: "Order"},
	{Key: ModuleService, Label: "Service"},
	{Key: ModulePurchase, Label: "Purchase"},
	{Key: ModuleManufacturing, Label: "Manufacturing"},
	{Key: ModuleInventory, Label: "Inventory"},
	{Key: ModuleAccounts, Label: "Accounts"},
	{Key: ModuleHRPayroll, Label: "HR & Payroll"},
	{Key: ModuleReports, Label: "Reports"},
	{Key: ModuleCRM, Label: "CRM"},
}

var adminSections = []Module{
	{Key: TabUserManagement, Label: "User Management"},
	{Key: TabRoleManagement, Label: "Role Management"},
	{Key: TabSystemSettings, Label: "System Settings"},
}

var universalSections = []Module{
	{Key: TabSettings, Label: "Settings"},
}

var catalogIndex = func() map[string]int {
	idx := make(map[string]int, len(catalog))
	for i, m := range catalog {
		idx[m.Key] = i
	}
	return idx
}()

// Catalog returns a copy of the module catalog in display order.
func Catalog() []Module {
	out := make([]Module, len(catalog))
	copy(out, catalog)
	return out
}

// IsKnownModule reports whether key is part of the module catalog.
func IsKnownModule(key string) bool {
	_, ok := catalogIndex[key]
	return ok
}

// Classify places tab into exactly one admission bucket.
func Classify(tab string) Bucket {
	for _, m := range adminSections {
		if m.Key == tab {
			return BucketAdmin
		}
	}
	for _, m := range universalSections {
		if m.Key == tab {
			return BucketUniversal
		}
	}
	return BucketModule
}

// Label returns the display label for any known tab, or the key itself.
func Label(tab string) string {
	if i, ok := catalogIndex[tab]; ok {
		return catalog[i].Label
	}
	for _, group := range [][]Module{adminSections, universalSections} {
		for _, m := range group {
			if m.Key == tab {
				return m.Label
			}
		}
	}
	return tab
}
