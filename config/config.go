// Package config holds the settings of the polycrop command. Values come
// from an optional TOML file; command-line flags override them.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/sebnyberg/polycrop"
	"github.com/sebnyberg/polycrop/polygon"
	"github.com/sebnyberg/polycrop/viewport"
)

// Backends that can be selected.
const (
	BackendVector = "vector"
	BackendGG     = "gg"
	BackendVips   = "vips"
)

type Config struct {
	// Backend picks the rasterizer for the whole run.
	Backend   string `toml:"backend"`
	MaxPoints int    `toml:"max_points"`
	MaxPixels int    `toml:"max_pixels"`

	View View `toml:"view"`
	Log  Log  `toml:"log"`
}

// View configures the simulated container.
type View struct {
	Width    int     `toml:"width"`
	Height   int     `toml:"height"`
	Margin   float64 `toml:"margin"`
	MinScale float64 `toml:"min_scale"`
	MaxScale float64 `toml:"max_scale"`
}

// Log configures the zap logger and, when File is set, its rotation.
type Log struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		Backend:   BackendVector,
		MaxPoints: polygon.DefaultMaxPoints,
		MaxPixels: polycrop.DefaultMaxPixels,
		View: View{
			Width:    1024,
			Height:   768,
			Margin:   viewport.DefaultMargin,
			MinScale: viewport.DefaultMinScale,
			MaxScale: viewport.DefaultMaxScale,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Validate rejects unknown backends and resets out of range values to
// their defaults.
func (c *Config) Validate() error {
	d := Default()
	switch c.Backend {
	case BackendVector, BackendGG, BackendVips:
	case "":
		c.Backend = d.Backend
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.MaxPoints <= 0 {
		c.MaxPoints = d.MaxPoints
	}
	if c.MaxPixels < 0 {
		c.MaxPixels = d.MaxPixels
	}
	if c.View.Width <= 0 || c.View.Height <= 0 {
		c.View.Width, c.View.Height = d.View.Width, d.View.Height
	}
	if c.View.Margin < 0 {
		c.View.Margin = d.View.Margin
	}
	if c.View.MinScale <= 0 || c.View.MaxScale < c.View.MinScale {
		c.View.MinScale, c.View.MaxScale = d.View.MinScale, d.View.MaxScale
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	return nil
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error. Keys the Config does not know are reported, since they are
// most likely typos.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return cfg, fmt.Errorf("decode config %q err, %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("config %q: unknown key %q", path, undecoded[0].String())
	}
	return cfg, cfg.Validate()
}

// Save writes the configuration to path in TOML format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config err, %w", err)
	}
	return f.Close()
}
