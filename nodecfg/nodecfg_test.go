package nodecfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().DataDir, cfg.DataDir)
	require.Equal(t, Default().SyncStallTimeout, cfg.SyncStallTimeout)
}

func TestLoadDecodesAndResolvesDerivedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gnode.toml")
	body := `
datadir = "/var/lib/gnode"
listen_addr = "0.0.0.0:40000"
mining = true
coinbase = "0x0102030405060708090a0b0c0d0e0f1011121314"
sync_stall_timeout_seconds = 5
bootnodes = ["ws://10.0.0.1:30900"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/gnode", cfg.DataDir)
	require.True(t, cfg.Mining)
	require.Equal(t, []string{"ws://10.0.0.1:30900"}, cfg.Bootnodes)
	require.False(t, cfg.Coinbase.IsZero())
	require.Equal(t, int64(5), cfg.SyncStallTimeoutSeconds)
}

func TestLoadRejectsEmptyDataDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gnode.toml")
	require.NoError(t, os.WriteFile(path, []byte(`datadir = ""`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
