package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceUnavailable means the AR session or the camera could not be
	// acquired. It is returned once, without retry.
	ErrResourceUnavailable = errors.New("shared camera: resource unavailable")
	// ErrAccessDenied means the platform refused to open the camera.
	ErrAccessDenied = errors.New("shared camera: access denied")
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("shared camera: already initialized")
)

// DeviceStateError is a failure reported by an asynchronous camera callback.
// It is logged and recorded; the coordinator stays at Stage.
type DeviceStateError struct {
	Stage  Stage
	Code   int // platform error code, 0 if none
	Reason string
}

func (e *DeviceStateError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("device state error at %s: %s (code %d)", e.Stage, e.Reason, e.Code)
	}
	return fmt.Sprintf("device state error at %s: %s", e.Stage, e.Reason)
}
