// Package audit keeps a trail of console access events.
package audit

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Actions recorded by the console.
const (
	ActionLoginSucceeded = "login_succeeded"
	ActionLoginFailed    = "login_failed"
	ActionLogout         = "logout"
	ActionAccessDenied   = "access_denied"
	ActionReconciled     = "reconciled"
)

//go:embed schema.sql
var schemaSQL string

// Event is one access event.
type Event struct {
	Action  string
	ActorID string
	Role    string
	Tab     string
	Meta    map[string]any
	At      time.Time
}

// Recorder stores access events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(context.Context, Event) error { return nil }

// Execer is the subset of pgxpool.Pool used by PGRecorder.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRecorder writes events into console_access_events.
type PGRecorder struct {
	db Execer
}

// NewPGRecorder returns a recorder backed by db.
func NewPGRecorder(db Execer) *PGRecorder {
	return &PGRecorder{db: db}
}

// EnsureSchema creates the events table when missing.
func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("audit: recorder not initialised")
	}
	_, err := r.db.Exec(ctx, schemaSQL)
	return err
}

// Record persists the event.
func (r *PGRecorder) Record(ctx context.Context, event Event) error {
	if r == nil || r.db == nil {
		return errors.New("audit: recorder not initialised")
	}
	if event.Action == "" {
		return errors.New("audit: event requires action")
	}
	meta := event.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO console_access_events (action, actor_id, role, tab, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.Action, event.ActorID, event.Role, event.Tab, metaJSON, at)
	return err
}

// Logged wraps a Recorder so failures are logged and never returned.
type Logged struct {
	Recorder Recorder
	Logger   *slog.Logger
	Timeout  time.Duration
}

// Record forwards event and swallows the error.
func (l Logged) Record(ctx context.Context, event Event) error {
	if l.Recorder == nil {
		return nil
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := l.Recorder.Record(ctx, event); err != nil && l.Logger != nil {
		l.Logger.Warn("audit record", slog.String("action", event.Action), slog.Any("error", err))
	}
	return nil
}

var (
	_ Recorder = NopRecorder{}
	_ Recorder = (*PGRecorder)(nil)
	_ Recorder = Logged{}
)
