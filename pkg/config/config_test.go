package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Dedup.TTL)
	assert.False(t, cfg.Rules.ApplyChanges, "dry run by default")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
baseUrl: "https://addon.example.com"
storage:
  backend: bolt
  boltPath: /var/lib/addon/data.db
security:
  jwksUrl: "https://app.clockify.me/.well-known/jwks.json"
rules:
  applyChanges: true
dedup:
  ttl: 30m
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, BackendBolt, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/addon/data.db", cfg.Storage.BoltPath)
	assert.True(t, cfg.Rules.ApplyChanges)
	assert.Equal(t, 30*time.Minute, cfg.Dedup.TTL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\n"), 0600))

	t.Setenv("ADDON_ADDR", ":7070")
	t.Setenv("ADDON_STORAGE_BACKEND", "postgres")
	t.Setenv("ADDON_STORAGE_POSTGRES", "postgres://addon@localhost/addon?sslmode=disable")
	t.Setenv("ADDON_RULES_APPLY_CHANGES", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.True(t, cfg.Rules.ApplyChanges)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"bolt without path", func(c *Config) {
			c.Storage.Backend = BackendBolt
			c.Storage.BoltPath = ""
		}},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/addon.yaml")
	assert.Error(t, err)
}
