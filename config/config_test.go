package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lendingd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"
DataDir = "memory"
Admins = ["0x00000000000000000000000000000000000000aa"]
BorrowQuotaOps = 4

[lending]
MaxLTVBps = 5000
InterestRateBps = 250
LoanDurationSeconds = 86400
PriceStaleSeconds = 600
MaxSupportedTokens = 8
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "memory", cfg.DataDir)
	require.Equal(t, []string{"0x00000000000000000000000000000000000000aa"}, cfg.Admins)
	require.Equal(t, uint32(4), cfg.BorrowQuotaOps)
	require.Equal(t, uint64(5000), cfg.Lending.MaxLTVBps)
	require.Equal(t, uint64(250), cfg.Lending.InterestRateBps)
	// Untouched defaults survive a partial file.
	require.Equal(t, ":9440", cfg.MetricsAddress)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"
ListenAdress = ":9001"
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown keys")
}

func TestLoadRejectsInvalidParams(t *testing.T) {
	path := writeConfig(t, `
[lending]
MaxLTVBps = 12000
InterestRateBps = 300
LoanDurationSeconds = 86400
PriceStaleSeconds = 600
MaxSupportedTokens = 8
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRequiresListenAddress(t *testing.T) {
	cfg := Default()
	cfg.ListenAddress = "  "
	require.Error(t, cfg.Validate())
}
