package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
env: "dev"
storage_path: "storage.db"
catalog_path: "catalog.yaml"
http_server:
  address: "localhost:8082"
session:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8082", cfg.HTTPServer.Addr)
	assert.Equal(t, "/auth/login", cfg.Registration.RedirectTo)
	assert.Equal(t, 3*time.Second, cfg.Registration.RedirectAfter)
	assert.Equal(t, 64, cfg.Chat.SubscriberBuffer)
	assert.False(t, cfg.Chat.Muted)
	assert.Equal(t, 5*time.Second, cfg.HTTPServer.ShutdownTimeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
env: "dev"
storage_path: "storage.db"
catalog_path: "catalog.yaml"
http_server:
  address: "localhost:8082"
session:
  jwt_secret: "secret"
registration:
  redirect_after: 3s
`)
	t.Setenv("REGISTRATION_REDIRECT_AFTER", "1s")
	t.Setenv("CHAT_MUTED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Registration.RedirectAfter)
	assert.True(t, cfg.Chat.Muted)
}

func TestLoadMissingRequired(t *testing.T) {
	path := writeConfig(t, `
env: "dev"
storage_path: "storage.db"
catalog_path: "catalog.yaml"
http_server:
  address: "localhost:8082"
`)
	t.Setenv("JWT_SECRET", "")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBlankSecret(t *testing.T) {
	path := writeConfig(t, `
env: "dev"
storage_path: "storage.db"
catalog_path: "catalog.yaml"
http_server:
  address: "localhost:8082"
session:
  jwt_secret: "secret"
`)
	t.Setenv("JWT_SECRET", "   ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
