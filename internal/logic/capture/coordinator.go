package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/hw/ar"
	"github.com/cjeanneret/SharedCam/internal/hw/camera"
	"github.com/cjeanneret/SharedCam/internal/hw/surface"
	"github.com/cjeanneret/SharedCam/internal/logic/snapshot"
	"github.com/cjeanneret/SharedCam/internal/looper"
)

// Renderer is the view drawing AR frames on the UI context.
type Renderer interface {
	SetSharedCameraMode(enabled bool)
	SetupSession(s ar.Session)
	// ResumeAsync resumes rendering; the work is posted to exec.
	ResumeAsync(exec looper.Executor)
	SetShouldDrawFrame(draw bool)
}

// Deps are the external subsystems the coordinator sequences.
type Deps struct {
	Cameras  camera.Manager
	Sessions ar.Provider
	Renderer Renderer
	UI       looper.Executor // rendering context; still captures run here
}

// Config holds coordinator settings.
type Config struct {
	ThreadName string
	AR         ar.Config
	Snapshot   snapshot.Options
}

// DefaultConfig returns the stock shared camera setup: no light estimation,
// continuous auto focus, latest camera image.
func DefaultConfig() Config {
	return Config{
		ThreadName: "CameraThread",
		AR: ar.Config{
			LightEstimation: ar.LightEstimationDisabled,
			Focus:           ar.FocusAuto,
			Update:          ar.UpdateLatestCameraImage,
		},
		Snapshot: snapshot.DefaultOptions(),
	}
}

// sessionState is owned by the camera worker. surfaces is written once
// before the Active stage is published and is read-only afterwards.
type sessionState struct {
	cameraID    string
	device      camera.Device
	session     camera.CaptureSession
	request     *camera.RequestBuilder
	surfaces    []surface.Surface
	repeatingID int

	openPending    bool // open requested, no OnOpened/OnError yet
	closeRequested bool
}

// Coordinator shares one camera device between the app and an AR session.
// All device operations and callbacks are serialized on a dedicated worker.
type Coordinator struct {
	deps   Deps
	cfg    Config
	worker *looper.Looper

	stage  atomic.Int32
	frames atomic.Int64
	state  sessionState

	arSession ar.Session
	shared    ar.SharedCamera

	closed *looper.Latch

	mu             sync.Mutex
	textureSize    surface.Size
	initialized    bool
	closing        bool
	shutdownDone   bool
	lastErr        error
	onClosed       func()
	onStage        func(from, to Stage)
	onSessionError func(error)
}

// NewCoordinator creates a coordinator and starts its camera worker.
func NewCoordinator(deps Deps, cfg Config) *Coordinator {
	if cfg.ThreadName == "" {
		cfg.ThreadName = "CameraThread"
	}
	return &Coordinator{
		deps:   deps,
		cfg:    cfg,
		worker: looper.New(cfg.ThreadName),
		closed: looper.NewLatch(true),
	}
}

// SetOnClosedListener registers the callback fired at the end of Shutdown.
func (c *Coordinator) SetOnClosedListener(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}

// SetStageListener registers a hook called on every stage entry, on the
// goroutine making the transition.
func (c *Coordinator) SetStageListener(fn func(from, to Stage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStage = fn
}

// SetOnSessionErrorListener registers the hook receiving Initialize failures.
func (c *Coordinator) SetOnSessionErrorListener(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSessionError = fn
}

// Stage returns the current stage.
func (c *Coordinator) Stage() Stage {
	return Stage(c.stage.Load())
}

// Err returns the last recorded failure, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Frames returns the number of completed capture frames.
func (c *Coordinator) Frames() int64 {
	return c.frames.Load()
}

// TextureSize returns the GPU texture size selected at Initialize.
func (c *Coordinator) TextureSize() surface.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textureSize
}

// OnViewCreated is the view life cycle entry point.
func (c *Coordinator) OnViewCreated() error {
	return c.Initialize()
}

// OnDestroy is the view life cycle exit point.
func (c *Coordinator) OnDestroy() {
	c.Shutdown()
}

// Initialize creates the shared AR session, selects the texture size and
// requests the camera open. The rest of the life cycle proceeds
// asynchronously on the camera worker.
func (c *Coordinator) Initialize() error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.mu.Unlock()

	debug.Section("Shared camera initialization")
	c.deps.Renderer.SetSharedCameraMode(true)

	session, err := c.createSharedSession()
	if err != nil {
		return c.sessionFailed(err)
	}
	shared := session.SharedCamera()
	if shared == nil {
		return c.sessionFailed(fmt.Errorf("%w: session has no shared camera", ErrResourceUnavailable))
	}
	configs := session.SupportedCameraConfigs()
	if len(configs) == 0 {
		return c.sessionFailed(fmt.Errorf("%w: no supported camera configuration", ErrResourceUnavailable))
	}

	c.arSession = session
	c.shared = shared
	c.state.cameraID = session.CameraConfig().CameraID
	c.mu.Lock()
	c.textureSize = configs[0].TextureSize
	c.mu.Unlock()

	debug.Value("Camera id", c.state.cameraID)
	debug.Value("GPU texture size", configs[0].TextureSize)
	debug.Value("AR surfaces", len(shared.Surfaces()))

	return c.openCamera()
}

func (c *Coordinator) createSharedSession() (ar.Session, error) {
	session, err := c.deps.Sessions.NewSession(ar.FeatureSharedCamera)
	if err != nil {
		return nil, fmt.Errorf("%w: create AR session: %w", ErrResourceUnavailable, err)
	}
	cfg := session.Config()
	cfg.LightEstimation = c.cfg.AR.LightEstimation
	cfg.Focus = c.cfg.AR.Focus
	cfg.Update = c.cfg.AR.Update
	if err := session.Configure(cfg); err != nil {
		return nil, fmt.Errorf("%w: configure AR session: %w", ErrResourceUnavailable, err)
	}
	debug.PrintStruct("AR session config", cfg)
	return session, nil
}

// openCamera requests the open from the camera worker and waits for the
// request to be accepted. DeviceOpening is entered there, only once the
// platform took the request, and always before any device callback runs.
func (c *Coordinator) openCamera() error {
	id := c.state.cameraID
	cb := c.shared.WrapDeviceCallback(deviceCallbacks{c})

	result := make(chan error, 1)
	posted := c.worker.Post(func() {
		if c.state.closeRequested {
			result <- fmt.Errorf("%w: open camera %s: shut down", ErrResourceUnavailable, id)
			return
		}
		if err := c.deps.Cameras.OpenCamera(id, cb, c.worker); err != nil {
			if errors.Is(err, camera.ErrAccessDenied) {
				result <- fmt.Errorf("%w: open camera %s: %w", ErrAccessDenied, id, err)
				return
			}
			result <- fmt.Errorf("%w: open camera %s: %w", ErrResourceUnavailable, id, err)
			return
		}
		c.state.openPending = true
		c.transition(StageDeviceOpening)
		result <- nil
	})
	if !posted {
		return c.sessionFailed(fmt.Errorf("%w: open camera %s: worker stopped", ErrResourceUnavailable, id))
	}
	if err := <-result; err != nil {
		return c.sessionFailed(err)
	}
	debug.Live("Camera %s: open requested", id)
	return nil
}

func (c *Coordinator) sessionFailed(err error) error {
	debug.Error(err)
	c.mu.Lock()
	c.lastErr = err
	hook := c.onSessionError
	c.mu.Unlock()
	if hook != nil {
		hook(err)
	}
	return err
}

// stall records a mid-pipeline failure. Nothing is closed or retried.
func (c *Coordinator) stall(reason string, code int) {
	err := &DeviceStateError{Stage: c.Stage(), Code: code, Reason: reason}
	debug.Error(err)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// transition moves forward to the given stage; backward moves are ignored.
func (c *Coordinator) transition(to Stage) bool {
	for {
		from := Stage(c.stage.Load())
		if to <= from {
			debug.Verbose("Ignoring stage %s while at %s", to, from)
			return false
		}
		if c.stage.CompareAndSwap(int32(from), int32(to)) {
			debug.Stage(from.String(), to.String())
			c.mu.Lock()
			hook := c.onStage
			c.mu.Unlock()
			if hook != nil {
				hook(from, to)
			}
			return true
		}
	}
}

// --- camera worker: stage entry ---

func (c *Coordinator) onDeviceOpened(dev camera.Device) {
	debug.Live("Camera %s: opened", dev.ID())
	c.state.openPending = false
	if c.state.closeRequested {
		// Shutdown is waiting on this device's OnClosed
		debug.Live("Camera %s: opened after close was requested, closing", dev.ID())
		dev.Close()
		return
	}
	c.state.device = dev
	c.deps.Renderer.SetupSession(c.arSession)
	c.enterSessionConfiguring()
}

// enterSessionConfiguring binds every AR surface as a capture target and
// creates the capture session.
func (c *Coordinator) enterSessionConfiguring() {
	req, err := c.state.device.CreateCaptureRequest(camera.TemplateRecord)
	if err != nil {
		c.stall(fmt.Sprintf("create capture request: %v", err), 0)
		return
	}
	targets := c.shared.Surfaces()
	for _, s := range targets {
		req.AddTarget(s)
	}
	c.state.request = req
	c.state.surfaces = targets
	debug.Verbose("Capture request: template=%s targets=%d", camera.TemplateRecord, len(targets))

	cb := c.shared.WrapSessionCallback(sessionCallbacks{c})
	if err := c.state.device.CreateCaptureSession(targets, cb, c.worker); err != nil {
		c.stall(fmt.Sprintf("create capture session: %v", err), 0)
		return
	}
	c.transition(StageSessionConfiguring)
}

func (c *Coordinator) onConfigured(s camera.CaptureSession) {
	debug.Live("Capture session configured")
	if c.state.session != nil {
		debug.Info("Capture session configured again, keeping repeating request %d", c.state.repeatingID)
		return
	}
	c.state.session = s
	c.enterActive()
}

// enterActive starts the single repeating request.
func (c *Coordinator) enterActive() {
	id, err := c.state.session.SetRepeatingRequest(c.state.request.Build(), captureCallbacks{c}, c.worker)
	if err != nil {
		c.stall(fmt.Sprintf("set repeating request: %v", err), 0)
		return
	}
	c.state.repeatingID = id
	debug.Verbose("Repeating request %d started", id)
	c.transition(StageActive)
}

func (c *Coordinator) onSessionActive() {
	debug.Live("Capture session active, resuming renderer")
	c.deps.Renderer.ResumeAsync(c.deps.UI)
}

func (c *Coordinator) onCaptureCompleted(result camera.CaptureResult) {
	c.frames.Add(1)
	debug.Frame(result.FrameNumber)
	c.deps.Renderer.SetShouldDrawFrame(true)
}

// openSettled resolves a pending open that produced no usable device.
func (c *Coordinator) openSettled() {
	if !c.state.openPending {
		return
	}
	c.state.openPending = false
	if c.state.closeRequested {
		debug.Live("Shutdown: open failed, no device to close")
		c.closed.Open()
	}
}

func (c *Coordinator) onDeviceClosed(dev camera.Device) {
	debug.Live("Camera %s: closed", dev.ID())
	c.closed.Open()
}

// --- still capture ---

// CaptureStill reads back the first AR surface and hands the JPEG to fn on
// the UI context. It does nothing until the session is Active. Calls are
// independent: no ordering or de-duplication between them.
func (c *Coordinator) CaptureStill(fn func([]byte)) {
	if stage := c.Stage(); stage != StageActive {
		debug.Verbose("CaptureStill ignored at stage %s", stage)
		return
	}
	if len(c.state.surfaces) == 0 {
		return
	}
	snap := snapshot.New(c.state.surfaces[0], c.TextureSize(), c.deps.UI, fn, c.cfg.Snapshot)
	if !c.deps.UI.Post(snap.Run) {
		debug.Verbose("CaptureStill %s dropped, UI context gone", snap.ID)
		return
	}
	debug.Capture(snap.ID, "dispatched")
}

// --- teardown ---

// Shutdown closes the camera and blocks, with no time limit, until the
// device reports closed. It then stops the worker and fires the closed
// listener. Later calls return immediately.
func (c *Coordinator) Shutdown() {
	_ = c.ShutdownContext(context.Background())
}

// ShutdownContext is Shutdown with the wait bounded by ctx. On expiry the
// close keeps going, the worker stays up and the closed listener is not
// fired; a later call resumes waiting.
func (c *Coordinator) ShutdownContext(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdownDone {
		c.mu.Unlock()
		debug.Verbose("Shutdown: already done")
		return nil
	}
	issued := c.closing
	c.closing = true
	c.mu.Unlock()

	if !issued {
		debug.Section("Shared camera shutdown")
		// reset before close is requested so a stale open cannot release us
		c.closed.Close()
		posted := c.worker.Post(func() {
			c.state.closeRequested = true
			switch {
			case c.state.device != nil:
				debug.Live("Camera %s: close requested", c.state.device.ID())
				c.state.device.Close()
			case c.state.openPending:
				debug.Live("Shutdown: open in flight, closing once it opens")
			default:
				debug.Live("Shutdown: no device to close")
				c.closed.Open()
			}
		})
		if !posted {
			c.closed.Open()
		}
	}

	if ctx.Done() == nil {
		c.closed.Block()
	} else if err := c.closed.Wait(ctx); err != nil {
		debug.Error(fmt.Errorf("shutdown: waiting for camera close: %w", err))
		return err
	}

	c.mu.Lock()
	if c.shutdownDone {
		c.mu.Unlock()
		return nil
	}
	c.shutdownDone = true
	onClosed := c.onClosed
	c.mu.Unlock()

	c.worker.QuitSafely()
	c.transition(StageClosed)
	if onClosed != nil {
		onClosed()
	}
	return nil
}

// --- platform callback adapters ---

type deviceCallbacks struct{ c *Coordinator }

func (d deviceCallbacks) OnOpened(dev camera.Device) { d.c.onDeviceOpened(dev) }

func (d deviceCallbacks) OnDisconnected(dev camera.Device) {
	debug.Live("Camera %s: disconnected", dev.ID())
	d.c.stall("camera disconnected", 0)
	d.c.openSettled()
}

func (d deviceCallbacks) OnError(dev camera.Device, code camera.ErrorCode) {
	d.c.stall(fmt.Sprintf("camera error: %s", code), int(code))
	d.c.openSettled()
}

func (d deviceCallbacks) OnClosed(dev camera.Device) { d.c.onDeviceClosed(dev) }

type sessionCallbacks struct{ c *Coordinator }

func (s sessionCallbacks) OnConfigured(cs camera.CaptureSession) { s.c.onConfigured(cs) }

func (s sessionCallbacks) OnConfigureFailed(cs camera.CaptureSession) {
	s.c.stall("capture session configure failed", 0)
}

func (s sessionCallbacks) OnActive(cs camera.CaptureSession) { s.c.onSessionActive() }

type captureCallbacks struct{ c *Coordinator }

func (cc captureCallbacks) OnCaptureCompleted(s camera.CaptureSession, req camera.Request, result camera.CaptureResult) {
	cc.c.onCaptureCompleted(result)
}
