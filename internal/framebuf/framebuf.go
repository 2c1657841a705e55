// Package framebuf owns the two copies of the mirrored frame and the publish
// counter that hands changed frames to consumers.
package framebuf

import (
	"bytes"
	"sync"
	"time"

	"fbmirror-go/internal/notify"
)

// BytesPerPixel is fixed by the capture format (16-bit packed RGB).
const BytesPerPixel = 2

// Pair holds the staging buffer the capture port writes into and the stable
// buffer holding the last frame that differed from its predecessor. The
// poller is the sole writer of both; consumers only ever get copies of
// stable, taken under the pair's lock, so a snapshot is never torn by the
// next promote.
type Pair struct {
	width   int
	height  int
	staging []byte
	counter *notify.Counter

	mu         sync.Mutex
	stable     []byte
	seq        uint64
	capturedAt time.Time
}

func NewPair(width, height int) *Pair {
	size := width * height * BytesPerPixel
	return &Pair{
		width:   width,
		height:  height,
		staging: make([]byte, size),
		stable:  make([]byte, size),
		counter: notify.NewCounter(),
	}
}

func (p *Pair) Width() int  { return p.width }
func (p *Pair) Height() int { return p.height }
func (p *Pair) Size() int   { return len(p.staging) }

// Staging returns the capture destination. Only the poller goroutine may
// touch it.
func (p *Pair) Staging() []byte { return p.staging }

// Changed reports whether staging differs from stable. Any byte difference
// counts; the scan stops at the first mismatch.
func (p *Pair) Changed() bool {
	return !bytes.Equal(p.staging, p.stable)
}

// Promote copies staging into stable in full and publishes the new frame,
// returning the publish count. The publish happens strictly after the copy
// has completed, so a consumer woken by it always snapshots the full frame.
func (p *Pair) Promote(capturedAt time.Time) uint64 {
	p.mu.Lock()
	copy(p.stable, p.staging)
	p.capturedAt = capturedAt
	// Single publisher: the publish below lands on exactly this value.
	p.seq = p.counter.Value() + 1
	p.mu.Unlock()
	return p.counter.Publish()
}

// Snapshot copies the stable frame into dst and returns the publish count
// and capture time of the copied frame. dst must be Size() bytes.
func (p *Pair) Snapshot(dst []byte) (uint64, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(dst, p.stable)
	return p.seq, p.capturedAt
}

// WaitFrame blocks until the publish count differs from lastSeen and
// returns the new count. Returns notify.ErrClosed after Close.
func (p *Pair) WaitFrame(lastSeen uint64) (uint64, error) {
	return p.counter.Wait(lastSeen)
}

// PublishCount returns the current publish count without blocking.
func (p *Pair) PublishCount() uint64 {
	return p.counter.Value()
}

// Close wakes all blocked consumers. The poller must not promote afterward.
func (p *Pair) Close() {
	p.counter.Close()
}
