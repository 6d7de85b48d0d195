package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 15*time.Second, cfg.AuthTimeout)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.False(t, cfg.AuditEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_BASE_URL", "https://erp.example.com/api")
	t.Setenv("AUTH_TIMEOUT", "3s")
	t.Setenv("AUDIT_PG_DSN", "postgres://audit@localhost/audit")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.AuditEnabled())
	assert.Equal(t, "https://erp.example.com/api", cfg.AuthBaseURL)
	assert.Equal(t, 3*time.Second, cfg.AuthTimeout)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "csrf-secret")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsRelativeAuthURL(t *testing.T) {
	setRequired(t)
	t.Setenv("AUTH_BASE_URL", "/api")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadAuthConfigNeedsNoSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	t.Setenv("AUTH_BASE_URL", "http://erp.internal/api")

	cfg, err := LoadAuthConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://erp.internal/api", cfg.AuthBaseURL)
	assert.Equal(t, "pretty", cfg.LogFormat)
}
