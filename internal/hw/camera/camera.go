package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/SharedCam/internal/hw/surface"
	"github.com/cjeanneret/SharedCam/internal/looper"
)

// Manager is the platform camera service.
// All callbacks of a device opened through it are posted to exec.
type Manager interface {
	OpenCamera(id string, cb DeviceStateCallback, exec looper.Executor) error
}

// Device is an opened camera device.
type Device interface {
	ID() string
	CreateCaptureRequest(t Template) (*RequestBuilder, error)
	CreateCaptureSession(targets []surface.Surface, cb SessionStateCallback, exec looper.Executor) error
	// Close releases the device asynchronously; OnClosed fires once done.
	Close()
}

// CaptureSession is a configured set of output surfaces on a device.
type CaptureSession interface {
	// SetRepeatingRequest replaces any repeating request and returns its id.
	SetRepeatingRequest(req Request, cb CaptureCallback, exec looper.Executor) (int, error)
	StopRepeating() error
	Close()
}

// DeviceStateCallback receives device life cycle notifications.
type DeviceStateCallback interface {
	OnOpened(dev Device)
	OnDisconnected(dev Device)
	OnError(dev Device, code ErrorCode)
	OnClosed(dev Device)
}

// SessionStateCallback receives capture session notifications.
type SessionStateCallback interface {
	OnConfigured(s CaptureSession)
	OnConfigureFailed(s CaptureSession)
	OnActive(s CaptureSession)
}

// CaptureCallback receives per-frame notifications of a repeating request.
type CaptureCallback interface {
	OnCaptureCompleted(s CaptureSession, req Request, result CaptureResult)
}

// Template selects the platform preset for a capture request.
type Template int

const (
	TemplatePreview      Template = 1
	TemplateStillCapture Template = 2
	TemplateRecord       Template = 3
)

func (t Template) String() string {
	switch t {
	case TemplatePreview:
		return "preview"
	case TemplateStillCapture:
		return "still_capture"
	case TemplateRecord:
		return "record"
	default:
		return fmt.Sprintf("template(%d)", int(t))
	}
}

// RequestBuilder accumulates output targets for a capture request.
type RequestBuilder struct {
	template Template
	targets  []surface.Surface
}

// NewRequestBuilder returns an empty builder for t.
func NewRequestBuilder(t Template) *RequestBuilder {
	return &RequestBuilder{template: t}
}

// AddTarget appends an output surface.
func (b *RequestBuilder) AddTarget(s surface.Surface) {
	b.targets = append(b.targets, s)
}

// Build returns an immutable request.
func (b *RequestBuilder) Build() Request {
	targets := make([]surface.Surface, len(b.targets))
	copy(targets, b.targets)
	return Request{Template: b.template, Targets: targets}
}

// Request is a built capture request.
type Request struct {
	Template Template
	Targets  []surface.Surface
}

// CaptureResult describes one completed frame.
type CaptureResult struct {
	FrameNumber int64
	Timestamp   time.Time
}

// ErrorCode is a device error reported through OnError.
// Values follow the platform device state callback codes.
type ErrorCode int

const (
	ErrorCameraInUse     ErrorCode = 1
	ErrorMaxCamerasInUse ErrorCode = 2
	ErrorCameraDisabled  ErrorCode = 3
	ErrorCameraDevice    ErrorCode = 4
	ErrorCameraService   ErrorCode = 5
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCameraInUse:
		return "camera in use"
	case ErrorMaxCamerasInUse:
		return "max cameras in use"
	case ErrorCameraDisabled:
		return "camera disabled"
	case ErrorCameraDevice:
		return "camera device"
	case ErrorCameraService:
		return "camera service"
	default:
		return fmt.Sprintf("error(%d)", int(c))
	}
}

var (
	// ErrAccessDenied is returned when the platform rejects a device open
	// (missing or revoked permission).
	ErrAccessDenied = errors.New("camera: access denied")
	// ErrUnknownCamera is returned for an id the service does not expose.
	ErrUnknownCamera = errors.New("camera: unknown camera id")
	// ErrClosed is returned by operations on a closed device or session.
	ErrClosed = errors.New("camera: device closed")
)
