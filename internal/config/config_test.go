package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, src, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, src)

	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, -1, cfg.Refresh.MaxDays)
	assert.Equal(t, 1440, cfg.Refresh.RefreshCooldownMinutes)
	assert.Equal(t, "any", cfg.Refresh.MissingImage)
	assert.False(t, cfg.Jellyfin.Enabled())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  port: 9000
refresh:
  max_days: 30
  bad_names: "auto_scan, untitled"
jellyfin:
  url: http://jellyfin:8096
`)
	t.Setenv("REFRESHSPARSE_REFRESH_MINIMUM_PROVIDER_IDS", "3")

	cfg, src, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Refresh.MaxDays)
	assert.Equal(t, "auto_scan, untitled", cfg.Refresh.BadNames)
	assert.Equal(t, 3, cfg.Refresh.MinimumProviderIDs)
	assert.True(t, cfg.Jellyfin.Enabled())

	opts, err := src.RefreshOptions()
	require.NoError(t, err)
	assert.Equal(t, 3, opts.MinimumProviderIDs)
}

func TestSource_RefreshOptionsPicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "refresh:\n  max_days: 10\n  replace_all_images: false\n")

	_, src, err := Load(path)
	require.NoError(t, err)

	opts, err := src.RefreshOptions()
	require.NoError(t, err)
	assert.Equal(t, 10, opts.MaxDays)
	assert.False(t, src.ReplaceAllImages())

	writeConfig(t, dir, "refresh:\n  max_days: 20\n  replace_all_images: true\n")

	opts, err = src.RefreshOptions()
	require.NoError(t, err)
	assert.Equal(t, 20, opts.MaxDays)
	assert.True(t, src.ReplaceAllImages())
	assert.False(t, src.ReplaceAllMetadata())
}

func TestSource_RefreshOptionsUnreadable(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "refresh:\n  max_days: 10\n")

	_, src, err := Load(path)
	require.NoError(t, err)

	writeConfig(t, dir, "refresh: [unterminated\n")

	_, err = src.RefreshOptions()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestLoad_BadNamesAsList(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
refresh:
  bad_names:
    - auto_scan
    - untitled, draft
`)

	cfg, src, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "auto_scan\nuntitled, draft", cfg.Refresh.BadNames)

	opts, err := src.RefreshOptions()
	require.NoError(t, err)
	assert.Equal(t, "auto_scan\nuntitled, draft", opts.BadNames)
}

func TestSource_RemovedFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "refresh:\n  max_days: 10\n  replace_all_metadata: true\n")

	_, src, err := Load(path)
	require.NoError(t, err)
	assert.True(t, src.ReplaceAllMetadata())

	require.NoError(t, os.Remove(path))

	opts, err := src.RefreshOptions()
	require.NoError(t, err)
	assert.Equal(t, -1, opts.MaxDays)
	assert.False(t, src.ReplaceAllMetadata())

	writeConfig(t, dir, "refresh:\n  max_days: 5\n")
	opts, err = src.RefreshOptions()
	require.NoError(t, err)
	assert.Equal(t, 5, opts.MaxDays, "a recreated file is picked up again")
}

func TestServerConfig_Address(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8097}
	assert.Equal(t, "127.0.0.1:8097", c.Address())
}
