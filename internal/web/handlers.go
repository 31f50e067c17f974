package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/logic/capture"
)

// Camera is the part of the capture coordinator the web layer drives.
type Camera interface {
	Stage() capture.Stage
	Err() error
	Frames() int64
	CaptureStill(fn func([]byte))
}

var (
	// ErrNotActive means the camera session is not streaming yet.
	ErrNotActive = errors.New("camera session not active")
	// ErrNoStill means no still arrived before the deadline. A failed
	// readback is never reported, so it also ends here.
	ErrNoStill = errors.New("no still delivered")
)

// firstFramePoll is how often TakeStill checks for the first frame.
const firstFramePoll = 5 * time.Millisecond

// TakeStill requests one still and waits for it until ctx is done. A
// session that is Active but has not completed a frame yet has nothing to
// read back, so the request is held until the first frame lands.
func TakeStill(ctx context.Context, cam Camera) ([]byte, error) {
	if stage := cam.Stage(); stage != capture.StageActive {
		return nil, fmt.Errorf("%w (stage %s)", ErrNotActive, stage)
	}
	if err := waitFirstFrame(ctx, cam); err != nil {
		return nil, err
	}
	got := make(chan []byte, 1)
	cam.CaptureStill(func(b []byte) {
		select {
		case got <- b:
		default:
		}
	})
	select {
	case b := <-got:
		return b, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNoStill, ctx.Err())
	}
}

func waitFirstFrame(ctx context.Context, cam Camera) error {
	if cam.Frames() > 0 {
		return nil
	}
	debug.Verbose("Still held until the first frame")
	ticker := time.NewTicker(firstFramePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: no frame yet: %w", ErrNoStill, ctx.Err())
		case <-ticker.C:
			if cam.Frames() > 0 {
				return nil
			}
		}
	}
}

// Status is the JSON body of GET /status.
type Status struct {
	Stage  capture.Stage `json:"stage"`
	Frames int64         `json:"frames"`
	Error  string        `json:"error,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Camera      Camera
	Timeout     time.Duration // per still
	Snapshots   *SnapshotHub
	staticFS    fs.FS
}

// NewHandlers creates handlers. With a nil camera, capture endpoints
// answer 503.
func NewHandlers(broadcaster *StatusBroadcaster, cam Camera, timeout time.Duration, staticFS fs.FS) *Handlers {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	h := &Handlers{
		Broadcaster: broadcaster,
		Camera:      cam,
		Timeout:     timeout,
		staticFS:    staticFS,
	}
	h.Snapshots = NewSnapshotHub(h)
	return h
}

// still takes one still bounded by the handler timeout and announces it.
func (h *Handlers) still(ctx context.Context) ([]byte, error) {
	if h.Camera == nil {
		return nil, ErrNotActive
	}
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	data, err := TakeStill(ctx, h.Camera)
	if err != nil {
		h.Broadcaster.Broadcast(LevelError, "Capture failed: "+err.Error())
		return nil, err
	}
	h.Broadcaster.BroadcastStill(len(data))
	return data, nil
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture and answers with the JPEG still.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := h.still(r.Context())
	switch {
	case errors.Is(err, ErrNotActive):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, ErrNoStill):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Snapshots.Broadcast(data)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// CurrentStatus snapshots the coordinator state.
func (h *Handlers) CurrentStatus() Status {
	if h.Camera == nil {
		return Status{Stage: capture.StageUninitialized}
	}
	st := Status{Stage: h.Camera.Stage(), Frames: h.Camera.Frames()}
	if err := h.Camera.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.CurrentStatus()); err != nil {
		debug.Verbose("status: encode: %v", err)
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
