package config

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrInvalidFramesInFlight = errors.New("frames_in_flight must be between 1 and 8")
	ErrInvalidExtent         = errors.New("render width and height must be positive")
	ErrInvalidCapacity       = errors.New("descriptor capacities must be positive")
	ErrInvalidWorkers        = errors.New("job workers must be positive")
	ErrInvalidImageFormat    = errors.New("output format must be png, tiff or bmp")
	ErrInvalidDriver         = errors.New("renderer driver must be vulkan or headless")
)

const (
	DriverVulkan   = "vulkan"
	DriverHeadless = "headless"
)

type Config struct {
	Log            LogConfig            `toml:"log"`
	Renderer       RendererConfig       `toml:"renderer"`
	Descriptors    DescriptorConfig     `toml:"descriptors"`
	Jobs           JobConfig            `toml:"jobs"`
	RenderSettings RenderSettingsConfig `toml:"render_settings"`
	Output         OutputConfig         `toml:"output"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	// DriverVulkan or DriverHeadless, which renders in host memory without a GPU.
	Driver            string `toml:"driver"`
	FramesInFlight    uint32 `toml:"frames_in_flight"`
	Width             uint32 `toml:"width"`
	Height            uint32 `toml:"height"`
	Headless          bool   `toml:"headless"`
	ShaderDir         string `toml:"shader_dir"`
	MaxRecursionDepth uint32 `toml:"max_recursion_depth"`
	EnableValidation  bool   `toml:"enable_validation"`
	WatchShaders      bool   `toml:"watch_shaders"`
	// Frames to render before exiting in headless mode. Zero renders until interrupted.
	FrameCount uint32 `toml:"frame_count"`
}

type DescriptorConfig struct {
	AttributeCapacity uint32 `toml:"attribute_capacity"`
	IndexCapacity     uint32 `toml:"index_capacity"`
	TextureCapacity   uint32 `toml:"texture_capacity"`
}

type JobConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

type RenderSettingsConfig struct {
	PrimarySamples   uint32     `toml:"primary_samples"`
	SecondarySamples uint32     `toml:"secondary_samples"`
	MaxDepth         uint32     `toml:"max_depth"`
	SkyColor         [3]float32 `toml:"sky_color"`
	SkyIntensity     float32    `toml:"sky_intensity"`
}

type OutputConfig struct {
	Path   string `toml:"path"`
	Format string `toml:"format"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Renderer: RendererConfig{
			Driver:            DriverVulkan,
			FramesInFlight:    2,
			Width:             1280,
			Height:            720,
			ShaderDir:         "./shaders",
			MaxRecursionDepth: 1,
			EnableValidation:  true,
			WatchShaders:      true,
		},
		Descriptors: DescriptorConfig{
			AttributeCapacity: 1024,
			IndexCapacity:     1024,
			TextureCapacity:   1024,
		},
		Jobs: JobConfig{
			Workers:   4,
			QueueSize: 256,
		},
		RenderSettings: RenderSettingsConfig{
			PrimarySamples:   1,
			SecondarySamples: 1,
			MaxDepth:         4,
			SkyColor:         [3]float32{0, 0, 0},
			SkyIntensity:     1,
		},
		Output: OutputConfig{
			Path:   "render.png",
			Format: "png",
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	switch c.Renderer.Driver {
	case DriverVulkan, DriverHeadless:
	default:
		return ErrInvalidDriver
	}
	if c.Renderer.FramesInFlight == 0 || c.Renderer.FramesInFlight > 8 {
		return ErrInvalidFramesInFlight
	}
	if c.Renderer.Width == 0 || c.Renderer.Height == 0 {
		return ErrInvalidExtent
	}
	if c.Descriptors.AttributeCapacity == 0 || c.Descriptors.IndexCapacity == 0 || c.Descriptors.TextureCapacity == 0 {
		return ErrInvalidCapacity
	}
	if c.Jobs.Workers <= 0 {
		return ErrInvalidWorkers
	}
	switch c.Output.Format {
	case "png", "tiff", "bmp":
	default:
		return ErrInvalidImageFormat
	}
	if c.Renderer.MaxRecursionDepth == 0 {
		c.Renderer.MaxRecursionDepth = 1
	}
	if c.Jobs.QueueSize <= 0 {
		c.Jobs.QueueSize = 256
	}
	return nil
}
