package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"testing"
	"time"
)

func TestPackRGB565(t *testing.T) {
	cases := []struct {
		r, g, b uint8
		want    uint16
	}{
		{0, 0, 0, 0x0000},
		{255, 255, 255, 0xffff},
		{255, 0, 0, 0xf800},
		{0, 255, 0, 0x07e0},
		{0, 0, 255, 0x001f},
		{8, 4, 8, 0x0821},
	}
	for _, c := range cases {
		if got := PackRGB565(c.r, c.g, c.b); got != c.want {
			t.Fatalf("PackRGB565(%d,%d,%d) = %#04x, want %#04x", c.r, c.g, c.b, got, c.want)
		}
	}
}

func TestPackRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Pix[0], img.Pix[1], img.Pix[2], img.Pix[3] = 255, 0, 0, 255
	img.Pix[4], img.Pix[5], img.Pix[6], img.Pix[7] = 0, 0, 255, 255

	dst := make([]byte, 4)
	packRGBA(dst, img)

	if got := binary.LittleEndian.Uint16(dst[0:]); got != 0xf800 {
		t.Fatalf("pixel 0 = %#04x, want red", got)
	}
	if got := binary.LittleEndian.Uint16(dst[2:]); got != 0x001f {
		t.Fatalf("pixel 1 = %#04x, want blue", got)
	}
}

func TestGeometryValidate(t *testing.T) {
	if err := (Geometry{Width: 320, Height: 240}).Validate(); err != nil {
		t.Fatalf("valid geometry rejected: %v", err)
	}
	if err := (Geometry{Width: 0, Height: 240}).Validate(); err == nil {
		t.Fatal("zero width accepted")
	}
	if err := (Geometry{Width: 320, Height: -1}).Validate(); err == nil {
		t.Fatal("negative height accepted")
	}
}

func TestSimDeterministic(t *testing.T) {
	geom := Geometry{Width: 8, Height: 4}
	s := NewManualSim(geom)

	a := make([]byte, geom.ByteSize())
	b := make([]byte, geom.ByteSize())
	if err := s.Capture(a); err != nil {
		t.Fatalf("capture error: %v", err)
	}
	if err := s.Capture(b); err != nil {
		t.Fatalf("capture error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("two captures of the same frame differ")
	}

	s.Advance()
	if err := s.Capture(b); err != nil {
		t.Fatalf("capture error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("advanced frame identical to previous one")
	}
}

func TestSimConsecutiveIndexesAlwaysDiffer(t *testing.T) {
	geom := Geometry{Width: 4, Height: 2}
	prev := make([]byte, geom.ByteSize())
	cur := make([]byte, geom.ByteSize())
	renderPattern(prev, geom, 0)
	for index := uint64(1); index < 64; index++ {
		renderPattern(cur, geom, index)
		if bytes.Equal(prev, cur) {
			t.Fatalf("frames %d and %d are identical", index-1, index)
		}
		copy(prev, cur)
	}
}

func TestSimRateAdvancesWithClock(t *testing.T) {
	geom := Geometry{Width: 4, Height: 2}
	s := NewSim(geom, 60, 1)
	now := time.Unix(500, 0)
	s.now = func() time.Time { return now }
	s.start = now

	if s.Index() != 0 {
		t.Fatalf("index at start = %d", s.Index())
	}
	now = now.Add(10 * time.Millisecond)
	if s.Index() != 0 {
		t.Fatalf("index inside first period = %d", s.Index())
	}
	now = now.Add(10 * time.Millisecond)
	if s.Index() != 1 {
		t.Fatalf("index after one period = %d", s.Index())
	}
}

func TestSimHoldStretchesFrames(t *testing.T) {
	geom := Geometry{Width: 4, Height: 2}
	s := NewSim(geom, 60, 3)
	now := time.Unix(500, 0)
	s.now = func() time.Time { return now }
	s.start = now

	interval := time.Second / 60
	now = now.Add(2 * interval)
	if s.Index() != 0 {
		t.Fatalf("index after two periods with hold 3 = %d", s.Index())
	}
	now = now.Add(interval)
	if s.Index() != 1 {
		t.Fatalf("index after three periods with hold 3 = %d", s.Index())
	}
}

func TestSimBufferSizeChecked(t *testing.T) {
	s := NewManualSim(Geometry{Width: 4, Height: 2})
	if err := s.Capture(make([]byte, 3)); err == nil {
		t.Fatal("undersized buffer accepted")
	}
}

func TestSimCaptureAfterClose(t *testing.T) {
	s := NewManualSim(Geometry{Width: 4, Height: 2})
	if err := s.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	err := s.Capture(make([]byte, 16))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("capture after close returned %v, want ErrClosed", err)
	}
}
