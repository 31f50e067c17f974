package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/SharedCam/internal/hw/ar"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 << 10

// CameraConfig selects the camera service implementation.
type CameraConfig struct {
	Type       string `yaml:"type"`        // "sim"
	ThreadName string `yaml:"thread_name"` // camera worker name
}

// ARConfig holds the AR session settings as written in YAML.
type ARConfig struct {
	LightEstimation string `yaml:"light_estimation"` // disabled, ambient_intensity, environmental_hdr
	FocusMode       string `yaml:"focus_mode"`       // fixed, auto
	UpdateMode      string `yaml:"update_mode"`      // blocking, latest_camera_image
}

// SnapshotConfig controls still captures.
type SnapshotConfig struct {
	RotationDeg *int `yaml:"rotation_deg"` // clockwise, multiple of 90; unset = -90
	JPEGQuality int  `yaml:"jpeg_quality"` // 1-100
	TimeoutMs   int  `yaml:"timeout_ms"`   // how long hosts wait for a still
}

// IndicatorConfig wires the tally LED.
type IndicatorConfig struct {
	Pin int `yaml:"pin"` // BCM, 0 = no LED
}

// SimConfig tunes the simulated camera and AR runtime.
type SimConfig struct {
	CameraID        string `yaml:"camera_id"`
	TextureWidth    int    `yaml:"texture_width"`
	TextureHeight   int    `yaml:"texture_height"`
	OpenDelayMs     int    `yaml:"open_delay_ms"`
	CloseDelayMs    int    `yaml:"close_delay_ms"`
	FrameIntervalMs int    `yaml:"frame_interval_ms"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // 0=off, 1=info, 2=live, 3=verbose, 4=trace
	MockGPIO   bool `yaml:"mock_gpio"`   // true=dev/test, false=real Raspberry Pi
}

// Config aggregates all application configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	AR        ARConfig        `yaml:"ar"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Sim       SimConfig       `yaml:"sim"`
	Defaults  DefaultsConfig  `yaml:"defaults"`

	ar ar.Config
}

// ValidateConfigPath accepts only .yaml files directly inside a
// directory named "configs", with no ".." elements.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file %q must live in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	switch c.Camera.Type {
	case "":
		return errors.New("camera.type is required")
	case "sim":
	default:
		return fmt.Errorf("unsupported camera.type %q", c.Camera.Type)
	}
	if c.Camera.ThreadName == "" {
		c.Camera.ThreadName = "CameraThread"
	}

	if c.AR.LightEstimation == "" {
		c.AR.LightEstimation = ar.LightEstimationDisabled.String()
	}
	if c.AR.FocusMode == "" {
		c.AR.FocusMode = ar.FocusAuto.String()
	}
	if c.AR.UpdateMode == "" {
		c.AR.UpdateMode = ar.UpdateLatestCameraImage.String()
	}
	var err error
	if c.ar.LightEstimation, err = ar.ParseLightEstimationMode(c.AR.LightEstimation); err != nil {
		return fmt.Errorf("ar.light_estimation: %w", err)
	}
	if c.ar.Focus, err = ar.ParseFocusMode(c.AR.FocusMode); err != nil {
		return fmt.Errorf("ar.focus_mode: %w", err)
	}
	if c.ar.Update, err = ar.ParseUpdateMode(c.AR.UpdateMode); err != nil {
		return fmt.Errorf("ar.update_mode: %w", err)
	}

	if c.Snapshot.RotationDeg == nil {
		deg := -90
		c.Snapshot.RotationDeg = &deg
	}
	if *c.Snapshot.RotationDeg%90 != 0 {
		return fmt.Errorf("snapshot.rotation_deg must be a multiple of 90, got %d", *c.Snapshot.RotationDeg)
	}
	if c.Snapshot.JPEGQuality == 0 {
		c.Snapshot.JPEGQuality = 95
	}
	if c.Snapshot.JPEGQuality < 1 || c.Snapshot.JPEGQuality > 100 {
		return fmt.Errorf("snapshot.jpeg_quality must be between 1 and 100, got %d", c.Snapshot.JPEGQuality)
	}
	if c.Snapshot.TimeoutMs <= 0 {
		c.Snapshot.TimeoutMs = 2000
	}

	if c.Indicator.Pin < 0 {
		return fmt.Errorf("indicator.pin must be >= 0, got %d", c.Indicator.Pin)
	}

	if c.Sim.CameraID == "" {
		c.Sim.CameraID = "0"
	}
	if c.Sim.TextureWidth < 0 || c.Sim.TextureHeight < 0 {
		return fmt.Errorf("sim texture size must be positive, got %dx%d", c.Sim.TextureWidth, c.Sim.TextureHeight)
	}
	if c.Sim.TextureWidth == 0 {
		c.Sim.TextureWidth = 640
	}
	if c.Sim.TextureHeight == 0 {
		c.Sim.TextureHeight = 480
	}
	if c.Sim.OpenDelayMs < 0 || c.Sim.CloseDelayMs < 0 {
		return errors.New("sim delays must be >= 0")
	}
	if c.Sim.FrameIntervalMs <= 0 {
		c.Sim.FrameIntervalMs = 33
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ARSession returns the parsed AR session settings.
func (c *Config) ARSession() ar.Config {
	return c.ar
}

// Rotation returns the still rotation in clockwise degrees.
func (c *Config) Rotation() int {
	if c.Snapshot.RotationDeg == nil {
		return -90
	}
	return *c.Snapshot.RotationDeg
}

// SnapshotTimeout returns how long a host waits for a still.
func (c *Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.Snapshot.TimeoutMs) * time.Millisecond
}

func (c *Config) OpenDelay() time.Duration {
	return time.Duration(c.Sim.OpenDelayMs) * time.Millisecond
}

func (c *Config) CloseDelay() time.Duration {
	return time.Duration(c.Sim.CloseDelayMs) * time.Millisecond
}

func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Sim.FrameIntervalMs) * time.Millisecond
}
