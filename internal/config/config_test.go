package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Greater(t, cfg.Cache.TokensTTLSec, 0)
	require.Greater(t, cfg.Cache.HistoryClosedTTLSec, cfg.Cache.HistoryLiveTTLSec,
		"closed ranges are immutable and should outlive live ones")
	require.Greater(t, cfg.Cache.Capacity, 0)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": "9090"},
		"cache": {"tokens_ttl_sec": 7},
		"gateway": {"retry_attempts": 4}
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, 7, cfg.Cache.TokensTTLSec)
	require.Equal(t, 4, cfg.Gateway.RetryAttempts)
	// untouched sections keep defaults
	require.Equal(t, Default().Upstream.CryptocompareURL, cfg.Upstream.CryptocompareURL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": "9090"}}`), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("TOKENS_TTL_SEC", "99")
	t.Setenv("DEXSWAP_URL", "http://localhost:1234")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "7070", cfg.Server.Port)
	require.Equal(t, 99, cfg.Cache.TokensTTLSec)
	require.Equal(t, "http://localhost:1234", cfg.Upstream.DexswapURL)
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
