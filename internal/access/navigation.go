package access

import (
	"fmt"
	"sync"
)

// Source tells the reducer why the identity changed.
type Source int

const (
	// SourceLogin is an interactive login; navigation restarts at the dashboard.
	SourceLogin Source = iota
	// SourceRestore is adoption of a persisted session at startup.
	SourceRestore
	// SourceRefresh is a live entitlement change for the same session.
	SourceRefresh
)

// String returns the source name used in logs.
func (s Source) String() string {
	switch s {
	case SourceLogin:
		return "login"
	case SourceRestore:
		return "restore"
	default:
		return "refresh"
	}
}

// State is the navigation state of one session. ActiveSubPage is empty when
// no drill-down target is selected.
type State struct {
	Identity      *Identity `json:"-"`
	ActiveTab     string    `json:"activeTab"`
	ActiveSubPage string    `json:"activeSubPage,omitempty"`
}

// InitialState is the unauthenticated starting point.
func InitialState() State {
	return State{ActiveTab: ModuleDashboard}
}

// Authenticated reports whether the state carries an identity.
func (s State) Authenticated() bool {
	return s.Identity != nil
}

// Policy returns the evaluator for the state's identity.
func (s State) Policy() Evaluator {
	return NewEvaluator(s.Identity)
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// IdentityChanged replaces the identity. A nil identity is a logout.
type IdentityChanged struct {
	Identity *Identity
	Source   Source
}

// ActivateRequested asks to move to Tab and optional SubPage.
type ActivateRequested struct {
	Tab     string
	SubPage string
}

// LoggedOut clears the identity.
type LoggedOut struct{}

func (IdentityChanged) isEvent()   {}
func (ActivateRequested) isEvent() {}
func (LoggedOut) isEvent()         {}

// Notice is a user-facing message produced by the reducer.
type Notice struct {
	Kind    string `json:"kind"`
	Tab     string `json:"tab"`
	Message string `json:"message"`
}

// Result describes what Reduce did.
type Result struct {
	Accepted   bool
	Denied     bool
	Reconciled bool
	Notice     *Notice
}

// Reduce applies ev to state. It is the only place navigation targets
// change, and it reconciles the active tab after every identity change.
func Reduce(state State, ev Event) (State, Result) {
	switch e := ev.(type) {
	case IdentityChanged:
		if e.Identity == nil {
			return Reduce(state, LoggedOut{})
		}
		next := state
		next.Identity = e.Identity
		if e.Source == SourceLogin || next.ActiveTab == "" {
			next.ActiveTab = ModuleDashboard
			next.ActiveSubPage = ""
		}
		next, reconciled := reconcile(next)
		return next, Result{Accepted: true, Reconciled: reconciled}
	case ActivateRequested:
		if !state.Policy().IsTabAccessible(e.Tab) {
			return state, Result{
				Denied: true,
				Notice: &Notice{
					Kind:    "warning",
					Tab:     e.Tab,
					Message: fmt.Sprintf("You do not have access to %s.", Label(e.Tab)),
				},
			}
		}
		next := state
		next.ActiveTab = e.Tab
		next.ActiveSubPage = e.SubPage
		return next, Result{Accepted: true}
	case LoggedOut:
		return InitialState(), Result{Accepted: true}
	default:
		return state, Result{}
	}
}

func reconcile(state State) (State, bool) {
	policy := state.Policy()
	if policy.IsTabAccessible(state.ActiveTab) {
		return state, false
	}
	state.ActiveTab = policy.FallbackTab()
	state.ActiveSubPage = ""
	return state, true
}

// Notifier surfaces denial notices to the user.
type Notifier interface {
	Warn(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Warn calls f.
func (f NotifierFunc) Warn(n Notice) {
	f(n)
}

// Navigator owns a State and routes every change through Reduce.
type Navigator struct {
	mu       sync.Mutex
	state    State
	notifier Notifier
	observe  func(Event, Result)
}

// NewNavigator seeds a navigator with state. notifier may be nil.
func NewNavigator(state State, notifier Notifier) *Navigator {
	if state.ActiveTab == "" {
		state.ActiveTab = ModuleDashboard
	}
	return &Navigator{state: state, notifier: notifier}
}

// Observe registers a hook invoked after every dispatched event.
func (n *Navigator) Observe(fn func(Event, Result)) {
	n.mu.Lock()
	n.observe = fn
	n.mu.Unlock()
}

// Dispatch applies ev and returns the reducer result.
func (n *Navigator) Dispatch(ev Event) Result {
	n.mu.Lock()
	next, res := Reduce(n.state, ev)
	n.state = next
	notifier, observe := n.notifier, n.observe
	n.mu.Unlock()

	if res.Notice != nil && notifier != nil {
		notifier.Warn(*res.Notice)
	}
	if observe != nil {
		observe(ev, res)
	}
	return res
}

// RequestActivate is the sanctioned way to change the active tab.
func (n *Navigator) RequestActivate(tab, subPage string) bool {
	return n.Dispatch(ActivateRequested{Tab: tab, SubPage: subPage}).Accepted
}

// IdentityChanged feeds an identity change into the reducer. Its signature
// matches the session store's subscription callback.
func (n *Navigator) IdentityChanged(identity *Identity, source Source) {
	n.Dispatch(IdentityChanged{Identity: identity, Source: source})
}

// State returns a snapshot of the current state. The identity is a copy.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	state := n.state
	state.Identity = n.state.Identity.Clone()
	return state
}

// Policy returns the evaluator for the current identity.
func (n *Navigator) Policy() Evaluator {
	return n.State().Policy()
}
