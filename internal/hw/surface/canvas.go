package surface

import (
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/looper"
)

// Canvas is a software Surface. Producers Draw frames into it; readers
// get a scaled copy of the latest frame.
type Canvas struct {
	name string

	mu     sync.RWMutex
	frame  *image.NRGBA
	frames int64

	// Fail, when non-zero, forces every CopyPixels to report this result.
	Fail CopyResult
}

// NewCanvas creates an empty canvas.
func NewCanvas(name string) *Canvas {
	return &Canvas{name: name}
}

// Name returns the canvas name.
func (c *Canvas) Name() string {
	return c.name
}

// Draw replaces the current frame with a copy of img.
func (c *Canvas) Draw(img image.Image) {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	c.mu.Lock()
	c.frame = dst
	c.frames++
	c.mu.Unlock()
}

// Frames returns how many frames have been drawn.
func (c *Canvas) Frames() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

// CopyPixels implements Surface. The read and the done call both run on
// exec, the rendering context.
func (c *Canvas) CopyPixels(dst *image.NRGBA, done func(CopyResult), exec looper.Executor) {
	posted := exec.Post(func() {
		result := c.copyInto(dst)
		debug.Trace("Surface %s: pixel copy -> %s", c.name, result)
		done(result)
	})
	if !posted {
		debug.Verbose("Surface %s: copy dropped, executor gone", c.name)
	}
}

func (c *Canvas) copyInto(dst *image.NRGBA) CopyResult {
	if c.Fail != CopySuccess {
		return c.Fail
	}
	if dst == nil || dst.Bounds().Empty() {
		return CopyErrorDestinationInvalid
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.frame == nil {
		return CopyErrorSourceNoData
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), c.frame, c.frame.Bounds(), draw.Src, nil)
	return CopySuccess
}
