package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/cjeanneret/SharedCam/internal/debug"
	"github.com/cjeanneret/SharedCam/internal/hw/surface"
	"github.com/cjeanneret/SharedCam/internal/looper"
)

const (
	// DefaultRotationDeg counter-rotates the sensor mounting so stills match
	// the orientation of regular camera pictures. Clockwise-positive.
	DefaultRotationDeg = -90
	// DefaultQuality is the JPEG quality of encoded stills.
	DefaultQuality = 95
)

// Options holds the calibration of a snapshot.
type Options struct {
	RotationDeg int // multiple of 90, clockwise-positive
	Quality     int // JPEG quality 1-100
}

// DefaultOptions returns the stock calibration.
func DefaultOptions() Options {
	return Options{RotationDeg: DefaultRotationDeg, Quality: DefaultQuality}
}

// CopyError reports a failed pixel readback.
type CopyError struct {
	Code surface.CopyResult
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("cannot read back surface: code = %d (%s)", int(e.Code), e.Code)
}

// Snapshotter performs one asynchronous readback of a surface and delivers
// the result as JPEG bytes. Build one per still capture.
type Snapshotter struct {
	ID string

	source      surface.Surface
	size        surface.Size
	exec        looper.Executor
	onProcessed func([]byte)
	opts        Options
}

// New creates a snapshotter. exec must be the context allowed to read the
// surface (the UI looper); the copy completes on it too.
func New(source surface.Surface, size surface.Size, exec looper.Executor, onProcessed func([]byte), opts Options) *Snapshotter {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	return &Snapshotter{
		ID:          uuid.NewString(),
		source:      source,
		size:        size,
		exec:        exec,
		onProcessed: onProcessed,
		opts:        opts,
	}
}

// BufferSize is the readback buffer size for a nominal size: the sensor is
// mounted a quarter turn off, so width and height are swapped.
func BufferSize(size surface.Size) surface.Size {
	return size.Swapped()
}

// RotatedSize is the size of a buffer after rotating it by deg.
func RotatedSize(buf surface.Size, deg int) surface.Size {
	if normalize(deg)%180 != 0 {
		return buf.Swapped()
	}
	return buf
}

// Run requests the pixel copy. On success the rotated, encoded image is
// passed to the callback; on failure the error is logged and the callback
// never fires. Run does nothing without a source surface.
func (s *Snapshotter) Run() {
	if s.source == nil {
		return
	}
	buf := BufferSize(s.size)
	bitmap := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	debug.Capture(s.ID, fmt.Sprintf("readback %s", buf))

	s.source.CopyPixels(bitmap, func(result surface.CopyResult) {
		if result != surface.CopySuccess {
			debug.Error(fmt.Errorf("snapshot %s: %w", s.ID, &CopyError{Code: result}))
			return
		}
		data, err := s.encode(bitmap)
		if err != nil {
			debug.Error(fmt.Errorf("snapshot %s: encode: %w", s.ID, err))
			return
		}
		debug.Capture(s.ID, fmt.Sprintf("encoded %d bytes", len(data)))
		if s.onProcessed != nil {
			s.onProcessed(data)
		}
	}, s.exec)
}

func (s *Snapshotter) encode(bitmap *image.NRGBA) ([]byte, error) {
	rotated := Rotate(bitmap, s.opts.RotationDeg)
	var out bytes.Buffer
	if err := imaging.Encode(&out, rotated, imaging.JPEG, imaging.JPEGQuality(s.opts.Quality)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Rotate turns img by deg degrees, clockwise-positive.
func Rotate(img image.Image, deg int) *image.NRGBA {
	switch normalize(deg) {
	case 0:
		return imaging.Clone(img)
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		// imaging rotates counter-clockwise
		return imaging.Rotate(img, float64(-deg), color.Transparent)
	}
}

func normalize(deg int) int {
	return ((deg % 360) + 360) % 360
}
