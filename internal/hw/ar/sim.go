package ar

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/hw/camera"
	"github.com/cjeanneret/SharedCam/internal/hw/surface"
)

// SimProvider creates SimSessions.
type SimProvider struct {
	CameraID    string
	TextureSize surface.Size
	ImageSize   surface.Size
	// Unavailable makes NewSession fail with ErrUnavailable.
	Unavailable bool
	// NoConfigs makes SupportedCameraConfigs return nothing.
	NoConfigs bool
}

// NewSession implements Provider.
func (p *SimProvider) NewSession(features ...Feature) (Session, error) {
	if p.Unavailable {
		return nil, fmt.Errorf("%w: camera held by another process", ErrUnavailable)
	}

	id := p.CameraID
	if id == "" {
		id = "0"
	}
	tex := p.TextureSize
	if tex.Empty() {
		tex = surface.Size{Width: 640, Height: 480}
	}
	img := p.ImageSize
	if img.Empty() {
		img = tex
	}

	s := &SimSession{
		features: features,
		cfg: Config{
			LightEstimation: LightEstimationAmbientIntensity,
			Focus:           FocusFixed,
			Update:          UpdateBlocking,
		},
		camera: CameraConfig{CameraID: id, ImageSize: img, TextureSize: tex},
	}
	if !p.NoConfigs {
		s.supported = []CameraConfig{s.camera}
	}
	for _, f := range features {
		if f == FeatureSharedCamera {
			s.shared = &SimSharedCamera{
				surfaces: []surface.Surface{
					surface.NewCanvas("ar-gpu-texture"),
					surface.NewCanvas("ar-cpu-image"),
				},
			}
		}
	}
	debug.Verbose("AR: session created (camera %s, texture %s)", id, tex)
	return s, nil
}

// SimSession is a software AR session.
type SimSession struct {
	features  []Feature
	camera    CameraConfig
	supported []CameraConfig
	shared    *SimSharedCamera

	mu  sync.Mutex
	cfg Config
}

func (s *SimSession) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *SimSession) Configure(cfg Config) error {
	if cfg.LightEstimation == LightEstimationEnvironmentalHDR && cfg.Update == UpdateLatestCameraImage {
		return fmt.Errorf("%w: environmental HDR requires blocking updates", ErrUnsupportedConfig)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	debug.Verbose("AR: configured light=%s focus=%s update=%s", cfg.LightEstimation, cfg.Focus, cfg.Update)
	return nil
}

func (s *SimSession) SupportedCameraConfigs() []CameraConfig {
	return s.supported
}

func (s *SimSession) CameraConfig() CameraConfig {
	return s.camera
}

func (s *SimSession) SharedCamera() SharedCamera {
	if s.shared == nil {
		return nil
	}
	return s.shared
}

// SimSharedCamera exposes canvases as AR surfaces and tracks the camera
// life cycle it observes through the wrapped callbacks.
type SimSharedCamera struct {
	surfaces []surface.Surface

	mu           sync.Mutex
	deviceOpen   bool
	sessionReady bool
}

func (c *SimSharedCamera) Surfaces() []surface.Surface {
	return c.surfaces
}

// DeviceOpen reports whether the observed device is open.
func (c *SimSharedCamera) DeviceOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceOpen
}

// SessionReady reports whether the observed capture session is active.
func (c *SimSharedCamera) SessionReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionReady
}

func (c *SimSharedCamera) setDeviceOpen(v bool) {
	c.mu.Lock()
	c.deviceOpen = v
	if !v {
		c.sessionReady = false
	}
	c.mu.Unlock()
}

func (c *SimSharedCamera) setSessionReady(v bool) {
	c.mu.Lock()
	c.sessionReady = v
	c.mu.Unlock()
}

func (c *SimSharedCamera) WrapDeviceCallback(cb camera.DeviceStateCallback) camera.DeviceStateCallback {
	return &observedDevice{shared: c, next: cb}
}

func (c *SimSharedCamera) WrapSessionCallback(cb camera.SessionStateCallback) camera.SessionStateCallback {
	return &observedSession{shared: c, next: cb}
}

type observedDevice struct {
	shared *SimSharedCamera
	next   camera.DeviceStateCallback
}

func (o *observedDevice) OnOpened(dev camera.Device) {
	o.shared.setDeviceOpen(true)
	o.next.OnOpened(dev)
}

func (o *observedDevice) OnDisconnected(dev camera.Device) {
	o.shared.setDeviceOpen(false)
	o.next.OnDisconnected(dev)
}

func (o *observedDevice) OnError(dev camera.Device, code camera.ErrorCode) {
	o.shared.setDeviceOpen(false)
	o.next.OnError(dev, code)
}

func (o *observedDevice) OnClosed(dev camera.Device) {
	o.shared.setDeviceOpen(false)
	o.next.OnClosed(dev)
}

type observedSession struct {
	shared *SimSharedCamera
	next   camera.SessionStateCallback
}

func (o *observedSession) OnConfigured(s camera.CaptureSession) {
	o.next.OnConfigured(s)
}

func (o *observedSession) OnConfigureFailed(s camera.CaptureSession) {
	o.shared.setSessionReady(false)
	o.next.OnConfigureFailed(s)
}

func (o *observedSession) OnActive(s camera.CaptureSession) {
	o.shared.setSessionReady(true)
	o.next.OnActive(s)
}
