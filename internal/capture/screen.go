package capture

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/vova616/screenshot"
)

// Screen captures the desktop through the platform screenshot API and packs
// it to RGB565 at the port boundary, the same way a GPU-side snapshot hands
// over pre-converted pixels. The core never sees the intermediate RGBA.
type Screen struct {
	geom Geometry
}

func NewScreen() (*Screen, error) {
	img, err := screenshot.CaptureScreen()
	if err != nil {
		return nil, fmt.Errorf("capture: screenshot: %w", err)
	}
	geom := Geometry{Width: img.Rect.Dx(), Height: img.Rect.Dy()}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	return &Screen{geom: geom}, nil
}

func (s *Screen) Geometry() Geometry { return s.geom }

func (s *Screen) Capture(dst []byte) error {
	if err := checkBufferSize(s.geom, dst); err != nil {
		return err
	}
	img, err := screenshot.CaptureScreen()
	if err != nil {
		return fmt.Errorf("capture: screenshot: %w", err)
	}
	if img.Rect.Dx() != s.geom.Width || img.Rect.Dy() != s.geom.Height {
		return fmt.Errorf("capture: screen resized to %dx%d, opened at %dx%d",
			img.Rect.Dx(), img.Rect.Dy(), s.geom.Width, s.geom.Height)
	}
	packRGBA(dst, img)
	return nil
}

func (s *Screen) Close() error { return nil }

func packRGBA(dst []byte, img *image.RGBA) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := PackRGB565(row[x*4], row[x*4+1], row[x*4+2])
			binary.LittleEndian.PutUint16(dst[(y*w+x)*BytesPerPixel:], px)
		}
	}
}
