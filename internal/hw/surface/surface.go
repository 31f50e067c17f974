package surface

import (
	"fmt"
	"image"

	"github.com/cjeanneret/SharedCam/internal/looper"
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Swapped returns the size with width and height exchanged.
func (s Size) Swapped() Size {
	return Size{Width: s.Height, Height: s.Width}
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// CopyResult is the outcome of an asynchronous pixel copy.
// Values follow the platform PixelCopy result codes.
type CopyResult int

const (
	CopySuccess                 CopyResult = 0
	CopyErrorUnknown            CopyResult = 1
	CopyErrorTimeout            CopyResult = 2
	CopyErrorSourceNoData       CopyResult = 3
	CopyErrorSourceInvalid      CopyResult = 4
	CopyErrorDestinationInvalid CopyResult = 5
)

func (r CopyResult) String() string {
	switch r {
	case CopySuccess:
		return "success"
	case CopyErrorUnknown:
		return "unknown error"
	case CopyErrorTimeout:
		return "timeout"
	case CopyErrorSourceNoData:
		return "source has no data"
	case CopyErrorSourceInvalid:
		return "source invalid"
	case CopyErrorDestinationInvalid:
		return "destination invalid"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Surface is a render target whose current content can be read back.
// It is both a camera output target and a source for still captures.
type Surface interface {
	// CopyPixels asynchronously copies the current content into dst,
	// scaled to dst's bounds. The read happens on exec and done is called
	// there with the result.
	CopyPixels(dst *image.NRGBA, done func(CopyResult), exec looper.Executor)
}
