package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CORE_DATABASE_DSN", "postgres://localhost/core_test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Bus.URL)
	assert.Equal(t, "coreplane", cfg.Bus.QueueGroup)
	assert.Equal(t, 5*time.Minute, cfg.Access.ContextTTL.Std())
	assert.Equal(t, 10*time.Minute, cfg.Connection.StateTTL.Std())
	assert.Equal(t, "@every 10m", cfg.Connection.SweepSchedule)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("CORE_DATABASE_DSN", "postgres://localhost/core_test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
access:
  context_ttl: 2m
  decision_ttl: 90
connection:
  providers:
    whatsapp:
      client_id: client-1
      auth_url: https://provider.example.com/oauth/authorize
      token_url: https://provider.example.com/oauth/token
      redirect_url: https://core.example.com/callback
      scopes: [whatsapp_business_management]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Access.ContextTTL.Std())
	// Bare numbers are seconds.
	assert.Equal(t, 90*time.Second, cfg.Access.DecisionTTL.Std())

	provider, ok := cfg.Connection.Providers["whatsapp"]
	require.True(t, ok)
	assert.Equal(t, "client-1", provider.ClientID)
	assert.Equal(t, []string{"whatsapp_business_management"}, provider.Scopes)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("CORE_DATABASE_DSN", "postgres://localhost/core_test")
	t.Setenv("CORE_PORT", "7070")
	t.Setenv("CORE_ACCESS_CONTEXT_TTL", "30s")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Access.ContextTTL.Std())
}

func TestLoad_MissingDSNFails(t *testing.T) {
	cfg, err := Load("")
	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestLoad_MissingFileFails(t *testing.T) {
	t.Setenv("CORE_DATABASE_DSN", "postgres://localhost/core_test")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.Database.DSN = "postgres://localhost/core"
	require.NoError(t, cfg.Validate())

	cfg.Access.ContextTTL = 0
	assert.Error(t, cfg.Validate())
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("CORE_TEST_BOOL", "no")
	assert.False(t, getEnvBool("CORE_TEST_BOOL", true))

	t.Setenv("CORE_TEST_BOOL", "1")
	assert.True(t, getEnvBool("CORE_TEST_BOOL", false))

	t.Setenv("CORE_TEST_BOOL", "garbage")
	assert.True(t, getEnvBool("CORE_TEST_BOOL", true))
}
