package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "v5", cfg.Store.KeyVersion)
	assert.Empty(t, cfg.Remote.Driver)
	assert.Equal(t, 350*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Sync.TokenTTL)
	assert.False(t, cfg.Debug.Statsviz)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	file := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http:
  addr: ":9090"
remote:
  driver: postgres
  dsn: postgres://file
sync:
  debounce: 500ms
`), 0o600))
	t.Setenv("JUDGEMENT_REMOTE_DSN", "postgres://env")
	t.Setenv("JUDGEMENT_STORE_KEYVERSION", "v6")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Remote.Driver)
	assert.Equal(t, "postgres://env", cfg.Remote.DSN, "env wins over file")
	assert.Equal(t, "v6", cfg.Store.KeyVersion)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.Debounce)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JUDGEMENT_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("JUDGEMENT_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{Store: StoreConfig{KeyVersion: "v5"}}

	tests := []struct {
		name    string
		remote  RemoteConfig
		wantErr bool
	}{
		{"disabled", RemoteConfig{}, false},
		{"memory", RemoteConfig{Driver: "memory"}, false},
		{"postgres", RemoteConfig{Driver: "postgres", DSN: "x", Feed: "postgres"}, false},
		{"postgres without dsn", RemoteConfig{Driver: "postgres", Feed: "postgres"}, true},
		{"nats feed", RemoteConfig{Driver: "postgres", DSN: "x", Feed: "nats", NatsURL: "nats://n"}, false},
		{"nats without url", RemoteConfig{Driver: "postgres", DSN: "x", Feed: "nats"}, true},
		{"unknown feed", RemoteConfig{Driver: "postgres", DSN: "x", Feed: "kafka"}, true},
		{"unknown driver", RemoteConfig{Driver: "mongo"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.Remote = tc.remote
			if tc.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}

	assert.Error(t, Config{}.Validate(), "empty key version")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
