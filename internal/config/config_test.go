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

func TestParseAPIKeys(t *testing.T) {
	keys := parseAPIKeys("k1:alice, k2:bob ,broken,:nokey,k3:")

	assert.Equal(t, map[string]string{"k1": "alice", "k2": "bob"}, keys)
	assert.Empty(t, parseAPIKeys(""))
}

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 6, cfg.ShortID.Length)
	assert.Equal(t, 10, cfg.ShortID.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.GeoIP.FallbackTimeout)
	assert.Equal(t, 45, cfg.GeoIP.FallbackPerMin)
	assert.Equal(t, 30, cfg.Analytics.DefaultDays)
	assert.Equal(t, 5, cfg.Analytics.TopValues)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Auth.APIKeys)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	chdir(t, dir)

	env := "APP_PORT=9090\nAPP_BASE_URL=https://s.example.com/\nAPI_KEYS=secret:alice\nSHORT_ID_LENGTH=8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Setenv("GEOIP_FALLBACK_TIMEOUT", "1500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "https://s.example.com", cfg.App.BaseURL)
	assert.Equal(t, map[string]string{"secret": "alice"}, cfg.Auth.APIKeys)
	assert.Equal(t, 8, cfg.ShortID.Length)
	assert.Equal(t, 1500*time.Millisecond, cfg.GeoIP.FallbackTimeout)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
