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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "drop", cfg.Action)
	assert.Equal(t, []string{"OUTPUT", "FORWARD"}, cfg.Chains)
	assert.Equal(t, 5*time.Second, cfg.ResolveTimeout)
	assert.False(t, cfg.Strict)
	require.Contains(t, cfg.Lists, "speedtest")
	assert.Contains(t, cfg.Lists["speedtest"].Domains, "speedtest.net")
	assert.Contains(t, cfg.Lists["speedtest"].Domains, "fast.com")
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
action: reject
chains: [OUTPUT]
log_level: debug
lists:
  gamedl:
    domains: [dl.example.com]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "reject", cfg.Action)
	assert.Equal(t, []string{"OUTPUT"}, cfg.Chains)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Contains(t, cfg.Lists, "gamedl")
	assert.Equal(t, []string{"dl.example.com"}, cfg.Lists["gamedl"].Domains)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NETBAN_ACTION", "reject")
	t.Setenv("NETBAN_STRICT", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "reject", cfg.Action)
	assert.True(t, cfg.Strict)
}

func TestLoadRejectsBadAction(t *testing.T) {
	t.Setenv("NETBAN_ACTION", "shun")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validating config")
}

func TestLoadRejectsBadListID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
lists:
  "Bad_Name":
    domains: [example.com]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid list id")
}

func TestValidListID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"speedtest", true},
		{"geo-ru", true},
		{"list2", true},
		{"", false},
		{"UPPER", false},
		{"under_score", false},
		{"waaaaaaaaaaaaaaaaaaaaaaaaaaay-too-long", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, validListID(tt.id), tt.id)
	}
}
