package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/odyssey-erp/odyssey-console/internal/access"
	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/view"
)

// Exit codes returned by session commands.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitDenied  = 3
)

// Keys holding the navigation target next to the session in the state file.
const (
	navTabKey     = "nav_tab"
	navSubPageKey = "nav_subpage"
)

const passwordEnv = "ODYSSEY_PASSWORD"

// SessionCLI runs `odyssey session ...` against a state file on disk.
type SessionCLI struct {
	Client auth.Authenticator
	Logger *slog.Logger
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// SessionOptions carries the flags shared by every session command.
type SessionOptions struct {
	StatePath  string
	JSONOutput bool
}

// DefaultStatePath returns $XDG_CONFIG_HOME/odyssey/session.json, falling
// back to the platform config directory.
func DefaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "odyssey", "session.json")
}

// Run parses args (everything after `session`) and dispatches.
func (c *SessionCLI) Run(ctx context.Context, args []string) int {
	c.defaults()

	flags := pflag.NewFlagSet("odyssey session", pflag.ContinueOnError)
	flags.SetOutput(c.Stderr)
	flags.SetInterspersed(true)
	var opts SessionOptions
	var email, password, subPage string
	var passwordStdin bool
	flags.StringVar(&opts.StatePath, "state", DefaultStatePath(), "path of the session state file")
	flags.BoolVar(&opts.JSONOutput, "json", false, "print JSON instead of text")
	flags.StringVar(&email, "email", "", "login email")
	flags.StringVar(&password, "password", "", "login password")
	flags.BoolVar(&passwordStdin, "password-stdin", false, "read the login password from stdin instead of $"+passwordEnv)
	flags.StringVar(&subPage, "sub", "", "sub-page to open inside the tab")
	flags.Usage = func() { c.usage(flags) }
	_ = flags.MarkDeprecated("password", "it leaks into the process list; use $"+passwordEnv+" or --password-stdin")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitFailure
	}
	rest := flags.Args()
	if len(rest) == 0 {
		c.usage(flags)
		return ExitFailure
	}

	switch rest[0] {
	case "login":
		if password == "" && passwordStdin {
			var err error
			if password, err = c.readPassword(); err != nil {
				_, _ = fmt.Fprintf(c.Stderr, "session login: read password: %v\n", err)
				return ExitFailure
			}
		}
		if password == "" {
			password = os.Getenv(passwordEnv)
		}
		return c.LoginCommand(ctx, opts, email, password)
	case "logout":
		return c.LogoutCommand(ctx, opts)
	case "whoami":
		return c.WhoamiCommand(opts)
	case "modules":
		return c.ModulesCommand(opts)
	case "open":
		if len(rest) < 2 {
			_, _ = fmt.Fprintln(c.Stderr, "session open: tab is required")
			return ExitFailure
		}
		return c.OpenCommand(opts, rest[1], subPage)
	default:
		_, _ = fmt.Fprintf(c.Stderr, "session: unknown command %q\n", rest[0])
		c.usage(flags)
		return ExitFailure
	}
}

// LoginCommand authenticates and saves the session in the state file.
func (c *SessionCLI) LoginCommand(ctx context.Context, opts SessionOptions, email, password string) int {
	c.defaults()
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		_, _ = fmt.Fprintln(c.Stderr, "session login: --email and a password ($"+passwordEnv+" or --password-stdin) are required")
		return ExitFailure
	}
	ws := c.open(opts)
	identity, err := ws.store.Login(ctx, email, password)
	if err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "session login: %s\n", auth.UserMessage(err))
		return ExitFailure
	}
	state := ws.nav.State()
	if opts.JSONOutput {
		return c.writeJSON(map[string]any{
			"success":   true,
			"user":      identity,
			"activeTab": state.ActiveTab,
		})
	}
	_, _ = fmt.Fprintf(c.Stdout, "Logged in as %s (%s)\n", displayName(identity), view.RoleLabel(identity.Role))
	_, _ = fmt.Fprintf(c.Stdout, "Active tab: %s\n", access.Label(state.ActiveTab))
	return ExitOK
}

// LogoutCommand clears the saved session. It succeeds even when the
// backend cannot be reached.
func (c *SessionCLI) LogoutCommand(ctx context.Context, opts SessionOptions) int {
	c.defaults()
	ws := c.open(opts)
	ws.store.Logout(ctx)
	if opts.JSONOutput {
		return c.writeJSON(map[string]any{"success": true})
	}
	_, _ = fmt.Fprintln(c.Stdout, "Logged out")
	return ExitOK
}

// WhoamiCommand prints the saved identity.
func (c *SessionCLI) WhoamiCommand(opts SessionOptions) int {
	c.defaults()
	ws := c.open(opts)
	snap := ws.store.Snapshot()
	if !snap.Authenticated() {
		_, _ = fmt.Fprintln(c.Stderr, "session whoami: not logged in")
		return ExitFailure
	}
	state := ws.nav.State()
	if opts.JSONOutput {
		return c.writeJSON(map[string]any{
			"user":          snap.Identity,
			"isAdmin":       ws.store.IsAdmin(),
			"activeTab":     state.ActiveTab,
			"activeSubPage": state.ActiveSubPage,
		})
	}
	identity := snap.Identity
	_, _ = fmt.Fprintf(c.Stdout, "%s <%s>\n", displayName(*identity), identity.Email)
	_, _ = fmt.Fprintf(c.Stdout, "Role: %s\n", view.RoleLabel(identity.Role))
	if identity.Branch != "" {
		_, _ = fmt.Fprintf(c.Stdout, "Branch: %s\n", identity.Branch)
	}
	_, _ = fmt.Fprintf(c.Stdout, "Active tab: %s\n", access.Label(state.ActiveTab))
	return ExitOK
}

// ModulesCommand lists the tabs the saved identity may open.
func (c *SessionCLI) ModulesCommand(opts SessionOptions) int {
	c.defaults()
	ws := c.open(opts)
	policy := ws.store.Policy()
	if !policy.Authenticated() {
		_, _ = fmt.Fprintln(c.Stderr, "session modules: not logged in")
		return ExitFailure
	}
	active := ws.nav.State().ActiveTab
	if opts.JSONOutput {
		return c.writeJSON(map[string]any{
			"modules":   policy.AvailableModules(),
			"tabs":      policy.VisibleTabs(),
			"activeTab": active,
		})
	}
	for _, tab := range policy.VisibleTabs() {
		marker := " "
		if tab.Key == active {
			marker = "*"
		}
		_, _ = fmt.Fprintf(c.Stdout, "%s %-16s %s\n", marker, tab.Key, tab.Label)
	}
	return ExitOK
}

// OpenCommand asks the navigator to activate tab. A denied request leaves
// the saved tab unchanged and exits with ExitDenied.
func (c *SessionCLI) OpenCommand(opts SessionOptions, tab, subPage string) int {
	c.defaults()
	ws := c.open(opts)
	if !ws.store.Snapshot().Authenticated() {
		_, _ = fmt.Fprintln(c.Stderr, "session open: not logged in")
		return ExitFailure
	}
	res := ws.nav.Dispatch(access.ActivateRequested{Tab: strings.TrimSpace(tab), SubPage: strings.TrimSpace(subPage)})
	state := ws.nav.State()
	if opts.JSONOutput {
		out := map[string]any{"success": res.Accepted, "activeTab": state.ActiveTab}
		if res.Notice != nil {
			out["message"] = res.Notice.Message
		}
		if code := c.writeJSON(out); code != ExitOK {
			return code
		}
	} else if res.Accepted {
		_, _ = fmt.Fprintf(c.Stdout, "Active tab: %s\n", access.Label(state.ActiveTab))
	}
	if !res.Accepted {
		return ExitDenied
	}
	return ExitOK
}

type sessionWorkspace struct {
	store *auth.Store
	nav   *access.Navigator
}

// open restores the session from the state file and wires the navigator
// to it, saving the navigation target after every change.
func (c *SessionCLI) open(opts SessionOptions) sessionWorkspace {
	path := opts.StatePath
	if path == "" {
		path = DefaultStatePath()
	}
	storage := auth.NewFileStorage(path)
	tab, _, _ := storage.Get(navTabKey)
	sub, _, _ := storage.Get(navSubPageKey)

	store := auth.NewStore(c.Client, storage, c.Logger)
	nav := access.NewNavigator(access.State{ActiveTab: tab, ActiveSubPage: sub}, access.NotifierFunc(func(n access.Notice) {
		_, _ = fmt.Fprintln(c.Stderr, n.Message)
	}))
	nav.Observe(func(access.Event, access.Result) {
		state := nav.State()
		if !state.Authenticated() {
			_ = storage.Delete(navTabKey)
			_ = storage.Delete(navSubPageKey)
			return
		}
		if err := storage.Set(navTabKey, state.ActiveTab); err != nil {
			c.Logger.Warn("save navigation", slog.String("path", storage.Path()), slog.Any("error", err))
		}
		if state.ActiveSubPage == "" {
			_ = storage.Delete(navSubPageKey)
		} else {
			_ = storage.Set(navSubPageKey, state.ActiveSubPage)
		}
	})
	store.Subscribe(nav.IdentityChanged)
	store.Restore()
	return sessionWorkspace{store: store, nav: nav}
}

func (c *SessionCLI) writeJSON(v any) int {
	enc := json.NewEncoder(c.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "session: encode json: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}

func (c *SessionCLI) defaults() {
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(c.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
}

// readPassword takes the first line of stdin without its line ending.
func (c *SessionCLI) readPassword() (string, error) {
	line, err := bufio.NewReader(c.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *SessionCLI) usage(flags *pflag.FlagSet) {
	_, _ = fmt.Fprintln(c.Stderr, "usage: odyssey session [flags] login|logout|whoami|modules|open <tab>")
	_, _ = fmt.Fprintln(c.Stderr)
	_, _ = fmt.Fprint(c.Stderr, flags.FlagUsages())
}

func displayName(identity access.Identity) string {
	if identity.Username != "" {
		return identity.Username
	}
	return identity.Email
}
