// Package poll runs the frame acquisition loop: wait until a new frame is
// likely, capture it, and publish it if its bytes differ from the last
// published frame. The capture port never says whether content changed, so
// the comparison here is the only change detector in the pipeline.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"fbmirror-go/internal/capture"
	"fbmirror-go/internal/framebuf"
	"fbmirror-go/internal/notify"
	"fbmirror-go/internal/stats"
)

// Poller owns the steady-state cycle. It is the sole writer of the pair's
// buffers and of the pacer's timing observations.
type Poller struct {
	src      capture.Source
	pair     *framebuf.Pair
	pacer    Pacer
	stats    *stats.Stats
	trace    *stats.TraceWriter
	logger   *slog.Logger
	now      func() time.Time
	interval atomic.Int64
}

func New(src capture.Source, pair *framebuf.Pair, pacer Pacer, st *stats.Stats, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		src:    src,
		pair:   pair,
		pacer:  pacer,
		stats:  st,
		logger: logger,
		now:    time.Now,
	}
}

// SetTrace makes the poller record every poll outcome. Must be called
// before Run.
func (p *Poller) SetTrace(t *stats.TraceWriter) {
	p.trace = t
}

// IntervalEstimate reports the frame interval the pacer assumed on the
// most recent poll. Safe to read from other goroutines; the loop itself
// only ever consults the pacer directly.
func (p *Poller) IntervalEstimate() time.Duration {
	return time.Duration(p.interval.Load())
}

// Run drives the loop until ctx is canceled, the pacer is closed, or a
// capture fails. A capture failure is fatal: there is no degraded mode for
// a broken capture surface, so the error is returned for the daemon to die
// on. Cancellation returns nil.
func (p *Poller) Run(ctx context.Context) error {
	geom := p.src.Geometry()
	if p.pair.Size() != geom.ByteSize() {
		return fmt.Errorf("poll: pair holds %d bytes, source geometry %dx%d needs %d",
			p.pair.Size(), geom.Width, geom.Height, geom.ByteSize())
	}

	p.logger.Info("poller running", "width", geom.Width, "height", geom.Height)
	p.interval.Store(int64(p.pacer.Interval()))
	staging := p.pair.Staging()
	for {
		if err := p.pacer.AwaitFrame(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, notify.ErrClosed) {
				p.logger.Info("poller stopped")
				return nil
			}
			return fmt.Errorf("poll: await frame: %w", err)
		}

		t0 := p.now()
		if err := p.src.Capture(staging); err != nil {
			return fmt.Errorf("poll: capture: %w", err)
		}
		p.stats.AddPoll(p.now().Sub(t0))
		p.pacer.ObservePoll(t0)
		p.interval.Store(int64(p.pacer.Interval()))

		if p.pair.Changed() {
			seq := p.pair.Promote(t0)
			p.pacer.ObserveFrame(t0)
			p.stats.AddNewFrame()
			if p.trace != nil {
				_ = p.trace.Record(stats.KindNewFrame, t0, p.now().Sub(t0))
			}
			p.logger.Debug("frame published", "seq", seq)
		} else {
			wasted := p.now().Sub(t0)
			p.stats.AddWastedPoll(wasted)
			if p.trace != nil {
				_ = p.trace.Record(stats.KindDuplicate, t0, wasted)
			}
		}
	}
}
