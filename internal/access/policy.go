package access

// Evaluator decides admission for a single identity snapshot. The zero
// value evaluates as unauthenticated and denies everything.
type Evaluator struct {
	identity *Identity
}

// NewEvaluator builds an evaluator over identity, which may be nil.
func NewEvaluator(identity *Identity) Evaluator {
	return Evaluator{identity: identity}
}

// Authenticated reports whether an identity is present.
func (e Evaluator) Authenticated() bool {
	return e.identity != nil
}

// HasModuleAccess reports whether the identity may open module key.
// Keys outside the catalog never grant access.
func (e Evaluator) HasModuleAccess(key string) bool {
	if e.identity == nil || !IsKnownModule(key) {
		return false
	}
	return e.identity.Allows(key)
}

// IsAdmin reports whether the identity carries the admin role.
func (e Evaluator) IsAdmin() bool {
	return e.identity != nil && e.identity.Role == RoleAdmin
}

// IsTabAccessible classifies tab and evaluates the matching rule.
func (e Evaluator) IsTabAccessible(tab string) bool {
	switch Classify(tab) {
	case BucketAdmin:
		return e.IsAdmin()
	case BucketUniversal:
		return e.Authenticated()
	default:
		return e.HasModuleAccess(tab)
	}
}

// AvailableModules returns the catalog filtered by HasModuleAccess, in
// catalog order.
func (e Evaluator) AvailableModules() []Module {
	out := make([]Module, 0, len(catalog))
	for _, m := range catalog {
		if e.HasModuleAccess(m.Key) {
			out = append(out, m)
		}
	}
	return out
}

// VisibleTabs lists every navigation entry the identity may see.
func (e Evaluator) VisibleTabs() []Module {
	if e.identity == nil {
		return nil
	}
	out := e.AvailableModules()
	out = append(out, universalSections...)
	if e.IsAdmin() {
		out = append(out, adminSections...)
	}
	return out
}

// FallbackTab is the reconciliation target: the first available module,
// or the dashboard when nothing is available.
func (e Evaluator) FallbackTab() string {
	for _, m := range catalog {
		if e.HasModuleAccess(m.Key) {
			return m.Key
		}
	}
	return ModuleDashboard
}
