package camera

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/hw/surface"
	"github.com/cjeanneret/SharedCam/internal/looper"
)

// SimConfig tunes the simulated camera service.
type SimConfig struct {
	CameraIDs     []string      // exposed ids; empty = accept any id
	FrameSize     surface.Size  // size of generated frames (default 640x480)
	OpenDelay     time.Duration // latency before OnOpened
	CloseDelay    time.Duration // latency before OnClosed
	FrameInterval time.Duration // repeating request period (default 33ms)
	DenyAccess    bool          // OpenCamera fails with ErrAccessDenied
	OpenError     ErrorCode     // non-zero: report OnError instead of OnOpened
	FailConfigure bool          // sessions report OnConfigureFailed
}

// Drawer is implemented by surfaces that accept generated frames.
type Drawer interface {
	Draw(img image.Image)
}

// SimManager is a Manager that fakes a camera device in software.
// Used for development without camera hardware, and for tests.
type SimManager struct {
	cfg SimConfig
}

// NewSimManager creates a simulated camera service.
func NewSimManager(cfg SimConfig) *SimManager {
	if cfg.FrameSize.Empty() {
		cfg.FrameSize = surface.Size{Width: 640, Height: 480}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 33 * time.Millisecond
	}
	debug.Info("Using SIM camera service (development mode)")
	return &SimManager{cfg: cfg}
}

// OpenCamera implements Manager.
func (m *SimManager) OpenCamera(id string, cb DeviceStateCallback, exec looper.Executor) error {
	if m.cfg.DenyAccess {
		return ErrAccessDenied
	}
	if !m.knows(id) {
		return ErrUnknownCamera
	}

	dev := &simDevice{id: id, cfg: m.cfg, cb: cb, exec: exec}
	debug.Verbose("Camera %s: opening (delay %v)", id, m.cfg.OpenDelay)
	time.AfterFunc(m.cfg.OpenDelay, func() {
		exec.Post(func() {
			if m.cfg.OpenError != 0 {
				cb.OnError(dev, m.cfg.OpenError)
				return
			}
			cb.OnOpened(dev)
		})
	})
	return nil
}

func (m *SimManager) knows(id string) bool {
	if len(m.cfg.CameraIDs) == 0 {
		return true
	}
	for _, known := range m.cfg.CameraIDs {
		if known == id {
			return true
		}
	}
	return false
}

type simDevice struct {
	id   string
	cfg  SimConfig
	cb   DeviceStateCallback
	exec looper.Executor

	mu      sync.Mutex
	closed  bool
	session *simSession
}

func (d *simDevice) ID() string { return d.id }

func (d *simDevice) CreateCaptureRequest(t Template) (*RequestBuilder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return NewRequestBuilder(t), nil
}

func (d *simDevice) CreateCaptureSession(targets []surface.Surface, cb SessionStateCallback, exec looper.Executor) error {
	if len(targets) == 0 {
		return errors.New("camera: capture session needs at least one target")
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.session != nil {
		d.session.Close()
	}
	s := &simSession{dev: d, targets: targets, cb: cb, exec: exec}
	d.session = s
	d.mu.Unlock()

	exec.Post(func() {
		if d.cfg.FailConfigure {
			cb.OnConfigureFailed(s)
			return
		}
		cb.OnConfigured(s)
	})
	return nil
}

// Close stops any session and reports OnClosed after CloseDelay.
// Closing twice reports nothing the second time.
func (d *simDevice) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	s := d.session
	d.mu.Unlock()

	if s != nil {
		s.Close()
	}
	debug.Verbose("Camera %s: closing (delay %v)", d.id, d.cfg.CloseDelay)
	time.AfterFunc(d.cfg.CloseDelay, func() {
		d.exec.Post(func() { d.cb.OnClosed(d) })
	})
}

type simSession struct {
	dev     *simDevice
	targets []surface.Surface
	cb      SessionStateCallback
	exec    looper.Executor

	mu      sync.Mutex
	closed  bool
	active  bool
	nextID  int
	stop    chan struct{}
	stopped chan struct{}
}

func (s *simSession) SetRepeatingRequest(req Request, cb CaptureCallback, exec looper.Executor) (int, error) {
	s.StopRepeating()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if !s.active {
		s.active = true
		s.exec.Post(func() { s.cb.OnActive(s) })
	}

	s.nextID++
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.repeat(req, cb, exec, s.stop, s.stopped)
	return s.nextID, nil
}

func (s *simSession) StopRepeating() error {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
	return nil
}

func (s *simSession) Close() {
	s.StopRepeating()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *simSession) repeat(req Request, cb CaptureCallback, exec looper.Executor, stop, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.dev.cfg.FrameInterval)
	defer ticker.Stop()

	var frame int64
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			frame++
			img := testPattern(s.dev.cfg.FrameSize, frame)
			for _, target := range req.Targets {
				if d, ok := target.(Drawer); ok {
					d.Draw(img)
				}
			}
			result := CaptureResult{FrameNumber: frame, Timestamp: now}
			exec.Post(func() { cb.OnCaptureCompleted(s, req, result) })
		}
	}
}

// testPattern renders a diagonal gradient that scrolls with the frame number.
func testPattern(size surface.Size, frame int64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	shift := int(frame % 256)
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x + shift) & 0xff),
				G: uint8(y & 0xff),
				B: uint8((x + y) & 0xff),
				A: 0xff,
			})
		}
	}
	return img
}
