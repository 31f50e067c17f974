package ar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cjeanneret/SharedCam/internal/hw/camera"
	"github.com/cjeanneret/SharedCam/internal/hw/surface"
)

// Feature is an optional AR session capability requested at creation.
type Feature int

const (
	FeatureSharedCamera Feature = iota + 1
	FeatureFrontCamera
)

// LightEstimationMode controls lighting estimation per frame.
type LightEstimationMode int

const (
	LightEstimationDisabled LightEstimationMode = iota
	LightEstimationAmbientIntensity
	LightEstimationEnvironmentalHDR
)

// FocusMode controls camera focus.
type FocusMode int

const (
	FocusFixed FocusMode = iota
	FocusAuto
)

// UpdateMode controls how the session hands out camera frames.
type UpdateMode int

const (
	UpdateBlocking UpdateMode = iota
	UpdateLatestCameraImage
)

// Config is the AR session configuration.
type Config struct {
	LightEstimation LightEstimationMode
	Focus           FocusMode
	Update          UpdateMode
}

// CameraConfig describes one camera configuration the session supports.
type CameraConfig struct {
	CameraID    string
	ImageSize   surface.Size // CPU image size
	TextureSize surface.Size // GPU texture size
}

// Provider creates AR sessions.
type Provider interface {
	NewSession(features ...Feature) (Session, error)
}

// Session is an AR tracking session.
type Session interface {
	Config() Config
	Configure(cfg Config) error
	// SupportedCameraConfigs lists configurations usable with the session's
	// camera, best first.
	SupportedCameraConfigs() []CameraConfig
	CameraConfig() CameraConfig
	// SharedCamera is nil unless the session was created with
	// FeatureSharedCamera.
	SharedCamera() SharedCamera
}

// SharedCamera lets an application own the camera device while the AR
// session observes its life cycle and consumes frames.
type SharedCamera interface {
	// Surfaces returns the surfaces the AR session needs as capture targets.
	Surfaces() []surface.Surface
	WrapDeviceCallback(cb camera.DeviceStateCallback) camera.DeviceStateCallback
	WrapSessionCallback(cb camera.SessionStateCallback) camera.SessionStateCallback
}

var (
	// ErrUnavailable is returned when a session cannot be created
	// (unsupported device, camera held by another process, ...).
	ErrUnavailable = errors.New("ar: session unavailable")
	// ErrUnsupportedConfig is returned by Configure for invalid settings.
	ErrUnsupportedConfig = errors.New("ar: unsupported configuration")
)

// ParseLightEstimationMode parses "disabled", "ambient_intensity" or
// "environmental_hdr".
func ParseLightEstimationMode(s string) (LightEstimationMode, error) {
	switch strings.ToLower(s) {
	case "disabled":
		return LightEstimationDisabled, nil
	case "ambient_intensity":
		return LightEstimationAmbientIntensity, nil
	case "environmental_hdr":
		return LightEstimationEnvironmentalHDR, nil
	}
	return 0, fmt.Errorf("unknown light estimation mode: %q", s)
}

// ParseFocusMode parses "fixed" or "auto".
func ParseFocusMode(s string) (FocusMode, error) {
	switch strings.ToLower(s) {
	case "fixed":
		return FocusFixed, nil
	case "auto":
		return FocusAuto, nil
	}
	return 0, fmt.Errorf("unknown focus mode: %q", s)
}

// ParseUpdateMode parses "blocking" or "latest_camera_image".
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch strings.ToLower(s) {
	case "blocking":
		return UpdateBlocking, nil
	case "latest_camera_image":
		return UpdateLatestCameraImage, nil
	}
	return 0, fmt.Errorf("unknown update mode: %q", s)
}

func (m LightEstimationMode) String() string {
	switch m {
	case LightEstimationDisabled:
		return "disabled"
	case LightEstimationAmbientIntensity:
		return "ambient_intensity"
	case LightEstimationEnvironmentalHDR:
		return "environmental_hdr"
	}
	return fmt.Sprintf("light_estimation(%d)", int(m))
}

func (m FocusMode) String() string {
	switch m {
	case FocusFixed:
		return "fixed"
	case FocusAuto:
		return "auto"
	}
	return fmt.Sprintf("focus(%d)", int(m))
}

func (m UpdateMode) String() string {
	switch m {
	case UpdateBlocking:
		return "blocking"
	case UpdateLatestCameraImage:
		return "latest_camera_image"
	}
	return fmt.Sprintf("update(%d)", int(m))
}
