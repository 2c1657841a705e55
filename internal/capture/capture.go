// Package capture provides the frame capture port: sources that fill a
// caller-supplied buffer with the newest composited frame in 16-bit packed
// RGB (RGB565, little-endian). A source gives no indication whether the
// content changed since the last capture; an unchanged screen yields
// byte-identical results.
package capture

import (
	"errors"
	"fmt"
)

// BytesPerPixel is fixed by the RGB565 capture format.
const BytesPerPixel = 2

var (
	ErrClosed      = errors.New("capture: source closed")
	ErrUnsupported = errors.New("capture: source not supported on this platform")
)

// Geometry describes the capture rectangle. Sources report it once at open
// time and it never changes for the life of the source.
type Geometry struct {
	Width  int
	Height int
}

func (g Geometry) ByteSize() int {
	return g.Width * g.Height * BytesPerPixel
}

func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("capture: invalid geometry %dx%d", g.Width, g.Height)
	}
	return nil
}

// Source is the frame capture port. Capture blocks for roughly the
// platform's snapshot-plus-readback cost (on the order of a millisecond)
// and fills dst, which must be exactly Geometry().ByteSize() bytes, with
// the newest composited frame.
type Source interface {
	Geometry() Geometry
	Capture(dst []byte) error
	Close() error
}

// VsyncWaiter is implemented by sources that can block until the display's
// next refresh.
type VsyncWaiter interface {
	WaitVsync() error
}

// PackRGB565 packs 8-bit channels into one RGB565 pixel.
func PackRGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

func checkBufferSize(g Geometry, dst []byte) error {
	if len(dst) != g.ByteSize() {
		return fmt.Errorf("capture: buffer is %d bytes, geometry %dx%d needs %d", len(dst), g.Width, g.Height, g.ByteSize())
	}
	return nil
}
