package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
)

const (
	MinFramesInFlight uint32 = 1
	MaxFramesInFlight uint32 = 3
	MaxMSAASamples    uint32 = 8
)

// Config is the on-disk configuration of the engine.
type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Shadows  ShadowConfig   `toml:"shadows"`
	Log      LogConfig      `toml:"log"`
	Assets   AssetsConfig   `toml:"assets"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// Number of frames the CPU may record before waiting on the GPU.
	FramesInFlight uint32 `toml:"frames_in_flight"`
	// Sample count of the forward pass color and depth attachments.
	MSAASamples uint32     `toml:"msaa_samples"`
	VSync       bool       `toml:"vsync"`
	Validation  bool       `toml:"validation"`
	ClearColor  [4]float32 `toml:"clear_color"`
	// Sleep between polls while the window has no drawable area.
	IdleSleepMS uint32 `toml:"idle_sleep_ms"`
}

type ShadowConfig struct {
	MapSize              uint32 `toml:"map_size"`
	MaxDirectionalLights uint32 `toml:"max_directional_lights"`
	MaxSpotLights        uint32 `toml:"max_spot_lights"`
	MaxPointLights       uint32 `toml:"max_point_lights"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type AssetsConfig struct {
	// Root of the asset tree: shaders/, materials/ and textures/ live below it.
	Dir string `toml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Prism",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			FramesInFlight: 2,
			MSAASamples:    4,
			VSync:          true,
			Validation:     false,
			ClearColor:     [4]float32{0.05, 0.05, 0.08, 1.0},
			IdleSleepMS:    10,
		},
		Shadows: ShadowConfig{
			MapSize:              1024,
			MaxDirectionalLights: 2,
			MaxSpotLights:        8,
			MaxPointLights:       4,
		},
		Log: LogConfig{
			Level: "info",
		},
		Assets: AssetsConfig{
			Dir: "assets",
		},
	}
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file `%s`: %w", path, err)
		core.LogError("%s", err.Error())
		return nil, err
	}
	return Parse(data)
}

// Parse decodes TOML data on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		err = fmt.Errorf("failed to decode config: %w", err)
		core.LogError("%s", err.Error())
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes values that have a safe fallback and rejects the ones
// that don't.
func (c *Config) Validate() error {
	fif := math.Clamp(c.Renderer.FramesInFlight, MinFramesInFlight, MaxFramesInFlight)
	if fif != c.Renderer.FramesInFlight {
		core.LogWarn("frames_in_flight %d out of range, using %d", c.Renderer.FramesInFlight, fif)
		c.Renderer.FramesInFlight = fif
	}
	if !math.IsPowerOfTwo(c.Renderer.MSAASamples) || c.Renderer.MSAASamples > MaxMSAASamples {
		err := fmt.Errorf("msaa_samples must be a power of two up to %d, have %d", MaxMSAASamples, c.Renderer.MSAASamples)
		core.LogError("%s", err.Error())
		return err
	}
	if c.Shadows.MapSize == 0 {
		err := fmt.Errorf("shadows.map_size must be greater than zero")
		core.LogError("%s", err.Error())
		return err
	}
	return nil
}

// ShadowLayers returns how many layers the shadow map needs: one per
// directional and spot light and six per point light.
func (s ShadowConfig) ShadowLayers() uint32 {
	return s.MaxDirectionalLights + s.MaxSpotLights + 6*s.MaxPointLights
}

// IdleSleep returns the poll interval used while the window is minimized.
func (r RendererConfig) IdleSleep() time.Duration {
	return time.Duration(r.IdleSleepMS) * time.Millisecond
}

// Marshal encodes the configuration back to TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
