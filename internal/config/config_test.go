package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults with secret from env", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s3cret")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
		assert.Equal(t, 12*time.Hour, cfg.Auth.AccessTokenTTL)
		assert.Equal(t, 300*time.Second, cfg.Dashboard.StatsTTL)
		assert.Equal(t, 600*time.Second, cfg.Dashboard.ChartTTL)
		assert.Equal(t, "enforce", cfg.Policy.Mode)
	})

	t.Run("Bare PostgreSQL variables", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "x")
		t.Setenv("POSTGRES_HOST", "testhost")
		t.Setenv("POSTGRES_PORT", "54321")
		t.Setenv("POSTGRES_DB", "testdb")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "testhost", cfg.Database.Host)
		assert.Equal(t, 54321, cfg.Database.Port)
		assert.Equal(t, "testdb", cfg.Database.Name)
		assert.Contains(t, cfg.Database.DSN(), "host=testhost port=54321")
	})

	t.Run("Prefixed variable wins", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "x")
		t.Setenv("POSTGRES_HOST", "bare")
		t.Setenv("FLEET_DATABASE_HOST", "prefixed")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "prefixed", cfg.Database.Host)
	})

	t.Run("YAML file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fleet.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
auth:
  skip_auth: true
policy:
  mode: dry-run
dashboard:
  stats_ttl: 1m
`), 0o600))
		t.Setenv("CONFIG_PATH", path)

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Auth.SkipAuth)
		assert.Equal(t, "dry-run", cfg.Policy.Mode)
		assert.Equal(t, time.Minute, cfg.Dashboard.StatsTTL)
	})

	t.Run("Missing secret is rejected", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("Unknown policy mode is rejected", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "x")
		t.Setenv("FLEET_POLICY_MODE", "sometimes")
		_, err := Load()
		assert.Error(t, err)
	})
}
