package capture

import (
	"encoding/binary"
	"time"
)

// Sim is a synthetic source for tests and hardware-free runs. It renders a
// deterministic pattern keyed by a frame index. In rate mode the index
// advances with elapsed wall time, so captures inside one frame period
// return identical bytes, just like a real static screen. Hold stretches
// each distinct frame over that many periods.
type Sim struct {
	geom     Geometry
	interval time.Duration
	hold     uint64
	start    time.Time
	now      func() time.Time

	manual bool
	index  uint64
	closed bool
}

// NewSim returns a source producing a new frame every 1/fps seconds.
func NewSim(geom Geometry, fps float64, hold int) *Sim {
	if hold < 1 {
		hold = 1
	}
	s := &Sim{
		geom:     geom,
		interval: time.Duration(float64(time.Second) / fps),
		hold:     uint64(hold),
		now:      time.Now,
	}
	s.start = s.now()
	return s
}

// NewManualSim returns a source whose frame only changes on Advance.
func NewManualSim(geom Geometry) *Sim {
	return &Sim{geom: geom, hold: 1, manual: true, now: time.Now}
}

// Advance moves a manual source to its next frame.
func (s *Sim) Advance() {
	s.index++
}

// Index returns the frame index the next capture will render.
func (s *Sim) Index() uint64 {
	if s.manual {
		return s.index
	}
	elapsed := s.now().Sub(s.start)
	return uint64(elapsed/s.interval) / s.hold
}

func (s *Sim) Geometry() Geometry { return s.geom }

func (s *Sim) Capture(dst []byte) error {
	if s.closed {
		return ErrClosed
	}
	if err := checkBufferSize(s.geom, dst); err != nil {
		return err
	}
	renderPattern(dst, s.geom, s.Index())
	return nil
}

func (s *Sim) Close() error {
	s.closed = true
	return nil
}

// renderPattern draws a gradient that scrolls with the frame index. The
// shift stride stays above the 3 bits RGB565 drops per channel, so
// consecutive indexes always render at least one differing byte. The
// pattern repeats every 32 frames.
func renderPattern(dst []byte, g Geometry, index uint64) {
	shift := int(index%32) * 8
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			px := PackRGB565(uint8(x+shift), uint8(y+shift/2), uint8(shift))
			i := (y*g.Width + x) * BytesPerPixel
			binary.LittleEndian.PutUint16(dst[i:], px)
		}
	}
}
