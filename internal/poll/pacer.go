package poll

import (
	"context"
	"time"

	"fbmirror-go/internal/notify"
	"fbmirror-go/internal/predict"
)

// Pacer decides when the poller makes its next capture attempt. One
// implementation sleeps on a predicted arrival time, the other blocks on a
// display refresh notification; the poll loop does not care which.
type Pacer interface {
	// AwaitFrame blocks until the next capture attempt is due.
	AwaitFrame(ctx context.Context) error
	// ObservePoll is called after every capture attempt.
	ObservePoll(t time.Time)
	// ObserveFrame is called when an attempt promoted a new frame.
	ObserveFrame(t time.Time)
	// Interval is the pacer's current idea of the source frame interval.
	Interval() time.Duration
}

const (
	// sleepMargin is how far before the predicted arrival the sleep ends.
	// The remainder is absorbed by capture latency and loop overhead; a
	// remaining wait below the margin is not worth a sleep at all.
	sleepMargin = 2500 * time.Microsecond

	// earlyWake ends the pre-sleep this much before the earliest instant
	// the next frame could plausibly arrive.
	earlyWake = 500 * time.Microsecond
)

// PredictivePacer sleeps until just before the predictor expects the next
// frame. It never sleeps past the prediction. With preSleep enabled it
// first parks until one nominal interval after the last promoted frame,
// which keeps the loop from burning polls on a source that cannot have
// produced anything yet.
type PredictivePacer struct {
	predictor *predict.Predictor
	preSleep  bool
	lastFrame time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPredictivePacer(p *predict.Predictor, preSleep bool) *PredictivePacer {
	return &PredictivePacer{
		predictor: p,
		preSleep:  preSleep,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func (p *PredictivePacer) AwaitFrame(ctx context.Context) error {
	if p.preSleep && !p.lastFrame.IsZero() {
		earliest := p.lastFrame.Add(p.predictor.Nominal() - earlyWake)
		if d := earliest.Sub(p.now()); d > 0 {
			if err := p.sleep(ctx, d); err != nil {
				return err
			}
		}
	}
	next := p.predictor.PredictNext()
	if d := next.Sub(p.now()); d > sleepMargin {
		return p.sleep(ctx, d-sleepMargin)
	}
	return ctx.Err()
}

func (p *PredictivePacer) ObservePoll(t time.Time) {
	p.predictor.RecordPoll(t)
}

func (p *PredictivePacer) ObserveFrame(t time.Time) {
	p.lastFrame = t
	p.predictor.RecordFrame(t)
}

func (p *PredictivePacer) Interval() time.Duration {
	return p.predictor.EstimateInterval()
}

// VsyncPacer blocks until a display refresh notification arrives. Notify is
// safe to call from any goroutine; refreshes that land while the poller is
// busy collapse into a single wake, newest wins. The refresh interval
// stands in for the nominal frame interval since no prediction runs in
// this mode.
type VsyncPacer struct {
	ticks    *notify.Counter
	lastSeen uint64
	interval time.Duration
}

func NewVsyncPacer(refresh time.Duration) *VsyncPacer {
	return &VsyncPacer{ticks: notify.NewCounter(), interval: refresh}
}

// Notify wakes the poller for one refresh.
func (v *VsyncPacer) Notify() {
	v.ticks.Publish()
}

// Close permanently unblocks the poller; AwaitFrame then reports
// notify.ErrClosed, which the poll loop treats as a clean stop.
func (v *VsyncPacer) Close() {
	v.ticks.Close()
}

func (v *VsyncPacer) AwaitFrame(ctx context.Context) error {
	seen, err := v.ticks.Wait(v.lastSeen)
	if err != nil {
		return err
	}
	v.lastSeen = seen
	return ctx.Err()
}

func (v *VsyncPacer) ObservePoll(t time.Time) {}

func (v *VsyncPacer) ObserveFrame(t time.Time) {}

func (v *VsyncPacer) Interval() time.Duration { return v.interval }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
