package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polycrop.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "gg"
max_points = 12

[view]
width = 640
height = 480
min_scale = 0.0

[log]
level = "debug"
file = "/var/log/polycrop.log"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendGG, cfg.Backend)
	require.Equal(t, 12, cfg.MaxPoints)
	require.Equal(t, 640, cfg.View.Width)
	require.Equal(t, 480, cfg.View.Height)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "/var/log/polycrop.log", cfg.Log.File)

	// Unset keys keep their defaults, invalid ones are reset.
	d := Default()
	require.Equal(t, d.MaxPixels, cfg.MaxPixels)
	require.Equal(t, d.View.Margin, cfg.View.Margin)
	require.Equal(t, d.View.MinScale, cfg.View.MinScale)
	require.Equal(t, d.Log.MaxBackups, cfg.Log.MaxBackups)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`backend = `), 0644))
	_, err := Load(bad)
	require.Error(t, err)

	typo := filepath.Join(dir, "typo.toml")
	require.NoError(t, os.WriteFile(typo, []byte("backnd = \"gg\"\n"), 0644))
	_, err = Load(typo)
	require.ErrorContains(t, err, "backnd")

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("backend = \"opengl\"\n"), 0644))
	_, err = Load(unknown)
	require.ErrorContains(t, err, "opengl")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := Default()
	cfg.Backend = BackendVips
	cfg.View.Margin = 4
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
