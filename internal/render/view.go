// Package render holds the AR view state driven by the capture coordinator.
package render

import (
	"sync"
	"sync/atomic"

	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/hw/ar"
	"github.com/cjeanneret/SharedCam/internal/looper"
)

// View is the headless AR surface view. It only tracks what the renderer
// was told; drawing itself happens in the AR runtime.
type View struct {
	sharedMode atomic.Bool
	resumed    atomic.Bool
	drawFrame  atomic.Bool

	mu      sync.Mutex
	session ar.Session
}

func NewView() *View {
	return &View{}
}

func (v *View) SetSharedCameraMode(enabled bool) {
	debug.Verbose("View: shared camera mode=%t", enabled)
	v.sharedMode.Store(enabled)
}

func (v *View) SetupSession(s ar.Session) {
	v.mu.Lock()
	v.session = s
	v.mu.Unlock()
	debug.Verbose("View: AR session attached")
}

// ResumeAsync resumes rendering on exec.
func (v *View) ResumeAsync(exec looper.Executor) {
	if !exec.Post(func() {
		v.resumed.Store(true)
		debug.Live("View: rendering resumed")
	}) {
		debug.Verbose("View: resume dropped, UI context gone")
	}
}

// SetShouldDrawFrame gates drawing until the camera delivers frames.
func (v *View) SetShouldDrawFrame(draw bool) {
	if v.drawFrame.Swap(draw) != draw {
		debug.Verbose("View: draw frames=%t", draw)
	}
}

// Pause stops rendering.
func (v *View) Pause() {
	v.resumed.Store(false)
	v.drawFrame.Store(false)
}

func (v *View) SharedCameraMode() bool { return v.sharedMode.Load() }
func (v *View) Resumed() bool          { return v.resumed.Load() }
func (v *View) DrawingFrames() bool    { return v.drawFrame.Load() }

func (v *View) Session() ar.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session
}
