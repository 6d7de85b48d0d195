package console

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-console/internal/access"
	"github.com/odyssey-erp/odyssey-console/internal/audit"
	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	"github.com/odyssey-erp/odyssey-console/internal/view"
)

// Handler serves the shell, the login flow and the navigation API.
type Handler struct {
	logger         *slog.Logger
	client         auth.Authenticator
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	metrics        *observability.Metrics
	recorder       audit.Recorder
	validator      *validator.Validate

	// logins coalesces identical in-flight logins on one session cookie.
	logins auth.LoginGroup
}

// HandlerParams groups Handler dependencies.
type HandlerParams struct {
	Logger         *slog.Logger
	Client         auth.Authenticator
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	Recorder       audit.Recorder
}

// NewHandler constructs a Handler instance.
func NewHandler(p HandlerParams) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var recorder audit.Recorder = audit.NopRecorder{}
	if p.Recorder != nil {
		recorder = audit.Logged{Recorder: p.Recorder, Logger: logger}
	}
	return &Handler{
		logger:         logger,
		client:         p.Client,
		templates:      p.Templates,
		sessionManager: p.SessionManager,
		csrfManager:    p.CSRFManager,
		metrics:        p.Metrics,
		recorder:       recorder,
		validator:      validator.New(),
	}
}

// MountRoutes registers console routes on r. The router must already run
// the session middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.workspaceMiddleware)

		r.Get("/", h.showShell)
		r.Post("/nav/activate", h.activateForm)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", h.showLogin)
			r.Post("/login", h.handleLogin)
			r.Post("/logout", h.handleLogout)
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/session", h.apiSession)
			r.Get("/nav", h.apiNav)
			r.With(h.requireIdentity).Get("/modules", h.apiModules)
			r.With(h.requireIdentity).Post("/nav/activate", h.apiActivate)
		})
	})
}

func (h *Handler) workspaceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			h.logger.Error("workspace without session", slog.String("path", r.URL.Path))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		ws := newWorkspace(r.Context(), workspaceDeps{
			logger:   h.logger,
			client:   h.logins.Scoped(sess.ID, h.client),
			metrics:  h.metrics,
			recorder: h.recorder,
		}, sess)
		next.ServeHTTP(w, r.WithContext(contextWithWorkspace(r.Context(), ws)))
	})
}

// requireIdentity rejects JSON callers without a restored identity.
func (h *Handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := WorkspaceFromContext(r.Context())
		if ws == nil || !ws.Store.Snapshot().Authenticated() {
			httpx.RespondError(w, fmt.Errorf("%s: %w", r.URL.Path, httpx.ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type navTab struct {
	access.Module
	Active bool
}

type navData struct {
	Tabs      []navTab
	CSRFToken string
}

type shellPage struct {
	User          *access.Identity
	Nav           navData
	Modules       []access.Module
	ActiveTab     string
	ActiveSubPage string
}

func (h *Handler) showShell(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	snap := ws.Store.Snapshot()
	if !snap.Authenticated() {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	state := ws.Navigator.State()
	policy := state.Policy()
	csrfToken, _ := h.csrfManager.EnsureToken(ws.session)

	tabs := make([]navTab, 0)
	for _, m := range policy.VisibleTabs() {
		tabs = append(tabs, navTab{Module: m, Active: m.Key == state.ActiveTab})
	}
	page := shellPage{
		User:          snap.Identity,
		Nav:           navData{Tabs: tabs, CSRFToken: csrfToken},
		Modules:       policy.AvailableModules(),
		ActiveTab:     state.ActiveTab,
		ActiveSubPage: state.ActiveSubPage,
	}
	h.render(w, r, "pages/shell.html", access.Label(state.ActiveTab), page, http.StatusOK)
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	if ws.Store.Snapshot().Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/login.html", "Sign in", loginPageData("", nil), http.StatusOK)
}

func loginPageData(email string, errs map[string]string) map[string]any {
	if errs == nil {
		errs = map[string]string{}
	}
	return map[string]any{"Email": email, "Errors": errs}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	asJSON := httpx.WantsJSON(r)

	var form loginForm
	if asJSON {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			h.metrics.ObserveLogin(observability.LoginInvalid)
			httpx.Result(w, http.StatusBadRequest, false, "Invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		form = loginForm{Email: r.PostFormValue("email"), Password: r.PostFormValue("password")}
	}
	form.Email = strings.TrimSpace(form.Email)

	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = validationMessage(fieldErr)
			}
		}
	}
	if len(errs) > 0 {
		h.metrics.ObserveLogin(observability.LoginInvalid)
		if asJSON {
			httpx.Result(w, http.StatusBadRequest, false, "Email and password are required")
			return
		}
		h.render(w, r, "pages/login.html", "Sign in", loginPageData(form.Email, errs), http.StatusBadRequest)
		return
	}

	identity, err := ws.Store.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		outcome := observability.LoginRejected
		if errors.Is(err, auth.ErrNetwork) {
			outcome = observability.LoginNetwork
		}
		h.metrics.ObserveLogin(outcome)
		_ = h.recorder.Record(r.Context(), audit.Event{Action: audit.ActionLoginFailed, Meta: map[string]any{"email": form.Email, "outcome": outcome}})
		message := auth.UserMessage(err)
		if asJSON {
			status := http.StatusUnauthorized
			if outcome == observability.LoginNetwork {
				status = http.StatusBadGateway
			}
			httpx.Result(w, status, false, message)
			return
		}
		h.render(w, r, "pages/login.html", "Sign in", loginPageData(form.Email, map[string]string{"general": message}), http.StatusBadRequest)
		return
	}

	h.metrics.ObserveLogin(observability.LoginSucceeded)
	_ = h.recorder.Record(r.Context(), audit.Event{Action: audit.ActionLoginSucceeded, ActorID: string(identity.ID), Role: string(identity.Role)})

	h.sessionManager.Regenerate(ws.session)
	csrfToken, _ := h.csrfManager.Rotate(ws.session)

	if asJSON {
		state := ws.Navigator.State()
		httpx.JSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"user":          identity,
			"activeTab":     state.ActiveTab,
			"activeSubPage": state.ActiveSubPage,
			"csrfToken":     csrfToken,
		})
		return
	}
	ws.session.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Welcome back"})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	actor, role := actorOf(ws.Store.Snapshot().Identity)

	ws.Store.Logout(r.Context())
	h.sessionManager.Destroy(ws.session)
	h.metrics.ObserveLogout()
	if actor != "" {
		_ = h.recorder.Record(r.Context(), audit.Event{Action: audit.ActionLogout, ActorID: actor, Role: role})
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "reload": true})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) activateForm(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	if !ws.Store.Snapshot().Authenticated() {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ws.Navigator.RequestActivate(strings.TrimSpace(r.PostFormValue("tab")), strings.TrimSpace(r.PostFormValue("sub_page")))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type sessionView struct {
	Authenticated bool             `json:"authenticated"`
	Loading       bool             `json:"loading"`
	User          *access.Identity `json:"user"`
	IsAdmin       bool             `json:"isAdmin"`
	CSRFToken     string           `json:"csrfToken"`
}

func (h *Handler) apiSession(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	snap := ws.Store.Snapshot()
	csrfToken, _ := h.csrfManager.EnsureToken(ws.session)
	httpx.JSON(w, http.StatusOK, sessionView{
		Authenticated: snap.Authenticated(),
		Loading:       snap.Loading,
		User:          snap.Identity,
		IsAdmin:       ws.Store.IsAdmin(),
		CSRFToken:     csrfToken,
	})
}

func (h *Handler) apiModules(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	policy := ws.Store.Policy()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"modules": policy.AvailableModules(),
		"tabs":    policy.VisibleTabs(),
	})
}

func (h *Handler) apiNav(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	state := ws.Navigator.State()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"authenticated": state.Authenticated(),
		"activeTab":     state.ActiveTab,
		"activeSubPage": state.ActiveSubPage,
	})
}

type activateRequest struct {
	Tab     string `json:"tab" validate:"required"`
	SubPage string `json:"subPage"`
}

func (h *Handler) apiActivate(w http.ResponseWriter, r *http.Request) {
	ws := WorkspaceFromContext(r.Context())
	var req activateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Result(w, http.StatusBadRequest, false, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Result(w, http.StatusBadRequest, false, "tab is required")
		return
	}
	res := ws.Navigator.Dispatch(access.ActivateRequested{Tab: strings.TrimSpace(req.Tab), SubPage: strings.TrimSpace(req.SubPage)})
	if !res.Accepted {
		message := "Access denied"
		if res.Notice != nil {
			message = res.Notice.Message
		}
		httpx.Result(w, http.StatusForbidden, false, message)
		return
	}
	state := ws.Navigator.State()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"activeTab":     state.ActiveTab,
		"activeSubPage": state.ActiveSubPage,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	ws := WorkspaceFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(ws.session)
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       ws.session.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Enter a valid email address"
	default:
		return fe.Error()
	}
}
