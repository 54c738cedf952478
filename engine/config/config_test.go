package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Renderer.FramesInFlight != 2 || cfg.Descriptors.AttributeCapacity != 1024 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quartz.toml")
	data := []byte(`
[log]
level = "debug"

[renderer]
frames_in_flight = 3
headless = true

[render_settings]
sky_color = [0.1, 0.2, 0.3]
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" || cfg.Renderer.FramesInFlight != 3 || !cfg.Renderer.Headless {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Renderer.Width != 1280 {
		t.Fatalf("default width lost: %d", cfg.Renderer.Width)
	}
	if cfg.RenderSettings.SkyColor != [3]float32{0.1, 0.2, 0.3} {
		t.Fatalf("sky color %v", cfg.RenderSettings.SkyColor)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"frames", func(c *Config) { c.Renderer.FramesInFlight = 0 }, ErrInvalidFramesInFlight},
		{"extent", func(c *Config) { c.Renderer.Width = 0 }, ErrInvalidExtent},
		{"capacity", func(c *Config) { c.Descriptors.IndexCapacity = 0 }, ErrInvalidCapacity},
		{"workers", func(c *Config) { c.Jobs.Workers = 0 }, ErrInvalidWorkers},
		{"format", func(c *Config) { c.Output.Format = "jpeg" }, ErrInvalidImageFormat},
		{"driver", func(c *Config) { c.Renderer.Driver = "metal" }, ErrInvalidDriver},
		{"valid", func(c *Config) { c.Renderer.Driver = DriverHeadless }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quartz.toml")
	cfg := Default()
	cfg.Output.Format = "tiff"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Output.Format != "tiff" {
		t.Fatalf("format %q", loaded.Output.Format)
	}
}
