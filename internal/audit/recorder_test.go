package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type stubExecer struct {
	calls []execCall
	err   error
}

func (s *stubExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), s.err
}

func TestPGRecorderInsertsEvent(t *testing.T) {
	db := &stubExecer{}
	rec := NewPGRecorder(db)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := rec.Record(context.Background(), Event{
		Action:  ActionAccessDenied,
		ActorID: "12",
		Role:    "dashboard_user",
		Tab:     "hr-payroll",
		Meta:    map[string]any{"bucket": "module"},
		At:      at,
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.True(t, strings.HasPrefix(db.calls[0].sql, "INSERT INTO console_access_events"))
	args := db.calls[0].args
	require.Len(t, args, 6)
	assert.Equal(t, ActionAccessDenied, args[0])
	assert.Equal(t, "hr-payroll", args[3])
	var meta map[string]any
	require.NoError(t, json.Unmarshal(args[4].([]byte), &meta))
	assert.Equal(t, "module", meta["bucket"])
	assert.Equal(t, at, args[5])
}

func TestPGRecorderRequiresAction(t *testing.T) {
	rec := NewPGRecorder(&stubExecer{})
	require.Error(t, rec.Record(context.Background(), Event{}))
}

func TestEnsureSchema(t *testing.T) {
	db := &stubExecer{}
	require.NoError(t, NewPGRecorder(db).EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS console_access_events")
}

func TestLoggedSwallowsErrors(t *testing.T) {
	db := &stubExecer{err: errors.New("connection refused")}
	logged := Logged{Recorder: NewPGRecorder(db), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	require.NoError(t, logged.Record(context.Background(), Event{Action: ActionLogout}))
	require.Len(t, db.calls, 1)
}
