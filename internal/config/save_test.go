package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/impel-dev/impel/internal/tracing"
)

func tracingConfig(enabled bool, exporter, endpoint string) tracing.Config {
	c := tracing.DefaultConfig()
	c.Enabled = enabled
	c.Exporter = exporter
	c.OTLPEndpoint = endpoint
	return c
}

func load(t *testing.T, path string) Config {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg := Defaults()
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg
}

func TestSaveValue_PreservesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	require.NoError(t, SaveValue(path, "temperature.half_life", "6h"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# Impel Configuration")
	require.Contains(t, string(data), "# Time for a temperature to halve")

	cfg := load(t, path)
	require.Equal(t, 6*time.Hour, cfg.Temperature.HalfLife)
	require.Equal(t, Defaults().Temperature.ActivityBoost, cfg.Temperature.ActivityBoost)
}

func TestSaveValue_CreatesMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, SaveValue(path, "flags.verify-on-open", "true"))
	require.NoError(t, SaveValue(path, "ranking.tie_break", "newest"))

	cfg := load(t, path)
	require.True(t, cfg.Flags["verify-on-open"])
	require.Equal(t, "newest", cfg.Ranking.TieBreak)
}

func TestSaveValue_OverwritesQuotedScalar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("snapshots:\n  interval: \"10\"\n"), 0o600))

	require.NoError(t, SaveValue(path, "snapshots.interval", "25"))

	cfg := load(t, path)
	require.Equal(t, 25, cfg.Snapshots.Interval)
}

func TestSaveValue_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		key     string
		wantErr string
	}{
		{"", "invalid config key"},
		{"temperature..half_life", "invalid config key"},
		{"temperature", "is a section"},
		{"ranking.tie_break.extra", "is a value"},
	}
	for _, tt := range tests {
		err := SaveValue(path, tt.key, "x")
		require.Error(t, err, tt.key)
		require.Contains(t, err.Error(), tt.wantErr)
	}

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestSaveValue_NonMappingRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))

	err := SaveValue(path, "db_path", "x")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "not a mapping"))
}

func TestSaveValue_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveValue(path, "log.level", "debug"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
