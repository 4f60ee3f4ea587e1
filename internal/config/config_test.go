package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "./instances", cfg.InstancesDir)
	assert.Equal(t, "sqlite:pieces.db", cfg.Store.DSN)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Poll.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pieces.yaml")
	content := `
store:
  dsn: "redis://localhost:6379/2"
server:
  port: 9090
  public_url: "https://hooks.example.com"
poll:
  interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("PIECES_LOG_LEVEL", "debug")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/2", cfg.Store.DSN)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://hooks.example.com", cfg.Server.PublicURL)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadInterval(t *testing.T) {
	v := viper.New()
	v.Set("poll.interval", "0s")
	_, err := LoadFrom(v)
	assert.Error(t, err)
}
