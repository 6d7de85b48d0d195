package console

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-console/internal/access"
	"github.com/odyssey-erp/odyssey-console/internal/audit"
	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Session keys holding the navigation target between requests.
const (
	navTabKey     = "nav_tab"
	navSubPageKey = "nav_subpage"
)

// Workspace is the per-session composition of the session store and the
// navigator. It lives for one request and is rebuilt from the cookie
// session on the next one.
type Workspace struct {
	Store     *auth.Store
	Navigator *access.Navigator
	session   *shared.Session
}

// sessionStorage adapts the cookie session to auth.Storage.
type sessionStorage struct {
	sess *shared.Session
}

func (s sessionStorage) Get(key string) (string, bool, error) {
	v, ok := s.sess.Lookup(key)
	return v, ok, nil
}

func (s sessionStorage) Set(key, value string) error {
	s.sess.Set(key, value)
	return nil
}

func (s sessionStorage) Delete(key string) error {
	s.sess.Delete(key)
	return nil
}

// flashNotifier surfaces denial notices as flash messages.
type flashNotifier struct {
	sess *shared.Session
}

func (n flashNotifier) Warn(notice access.Notice) {
	n.sess.AddFlash(shared.FlashMessage{Kind: shared.FlashWarning, Message: notice.Message})
}

type workspaceDeps struct {
	logger   *slog.Logger
	client   auth.Authenticator
	metrics  *observability.Metrics
	recorder audit.Recorder
}

// newWorkspace restores the session held in sess and reconciles the saved
// navigation target against it.
func newWorkspace(ctx context.Context, deps workspaceDeps, sess *shared.Session) *Workspace {
	store := auth.NewStore(deps.client, sessionStorage{sess: sess}, deps.logger)
	nav := access.NewNavigator(access.State{
		ActiveTab:     sess.Get(navTabKey),
		ActiveSubPage: sess.Get(navSubPageKey),
	}, flashNotifier{sess: sess})

	nav.Observe(func(ev access.Event, res access.Result) {
		state := nav.State()
		if !sess.Destroyed() {
			sess.Set(navTabKey, state.ActiveTab)
			if state.ActiveSubPage == "" {
				sess.Delete(navSubPageKey)
			} else {
				sess.Set(navSubPageKey, state.ActiveSubPage)
			}
		}
		actor, role := actorOf(state.Identity)
		switch {
		case res.Denied:
			tab := ""
			if req, ok := ev.(access.ActivateRequested); ok {
				tab = req.Tab
			}
			bucket := access.Classify(tab).String()
			deps.metrics.ObserveAccessDenied(bucket)
			_ = deps.recorder.Record(ctx, audit.Event{Action: audit.ActionAccessDenied, ActorID: actor, Role: role, Tab: tab, Meta: map[string]any{"bucket": bucket}})
		case res.Reconciled:
			deps.metrics.ObserveReconciled()
			_ = deps.recorder.Record(ctx, audit.Event{Action: audit.ActionReconciled, ActorID: actor, Role: role, Tab: state.ActiveTab})
		}
	})

	store.Subscribe(nav.IdentityChanged)
	store.Restore()
	return &Workspace{Store: store, Navigator: nav, session: sess}
}

func actorOf(identity *access.Identity) (string, string) {
	if identity == nil {
		return "", ""
	}
	return string(identity.ID), string(identity.Role)
}

type workspaceContextKey struct{}

func contextWithWorkspace(ctx context.Context, ws *Workspace) context.Context {
	return context.WithValue(ctx, workspaceContextKey{}, ws)
}

// WorkspaceFromContext returns the workspace attached by the handler
// middleware.
func WorkspaceFromContext(ctx context.Context) *Workspace {
	ws, _ := ctx.Value(workspaceContextKey{}).(*Workspace)
	return ws
}
