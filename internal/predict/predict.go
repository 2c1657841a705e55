// Package predict estimates when the display source will produce its next
// frame, based on the arrival times of recently observed frames. The source
// never announces its output rate, so the estimate is re-derived from history
// on every query and degrades to coarse fixed intervals once the screen has
// been static for a while.
package predict

import (
	"sort"
	"time"
)

const (
	// HistoryCapacity is the number of recent frame arrivals retained for
	// interval estimation.
	HistoryCapacity = 30

	// Idle thresholds. Once the newest arrival is older than shortIdle the
	// estimator stops chasing the nominal rate; past longIdle it parks the
	// poll loop almost entirely and collapses the history.
	shortIdle = 100 * time.Millisecond
	longIdle  = 60 * time.Second

	shortIdleInterval = 100 * time.Millisecond
	longIdleInterval  = 500 * time.Millisecond

	// maxInterval caps every estimate so a static scene that starts moving
	// again is discovered within one poll of this much.
	maxInterval = 100 * time.Millisecond
)

// History is a bounded ring of frame arrival times. At(0) is the most recent
// arrival, At(Len()-1) the oldest retained one. Recording past capacity
// overwrites the oldest entry.
type History struct {
	times []time.Time
	tail  int
	size  int
}

func NewHistory(capacity int) *History {
	return &History{times: make([]time.Time, capacity)}
}

func (h *History) Record(t time.Time) {
	h.times[h.tail] = t
	h.tail = (h.tail + 1) % len(h.times)
	if h.size < len(h.times) {
		h.size++
	}
}

func (h *History) Len() int { return h.size }

func (h *History) Cap() int { return len(h.times) }

// At returns the i-th newest arrival. i must be below Len().
func (h *History) At(i int) time.Time {
	return h.times[(h.tail-1-i+len(h.times))%len(h.times)]
}

// TruncateToLatest drops everything but the most recent arrival, so the
// estimator relearns the rate from scratch when frames resume.
func (h *History) TruncateToLatest() {
	if h.size > 1 {
		h.size = 1
	}
}

// Predictor derives the source's current frame interval and the expected
// arrival time of the next frame. It is confined to the poller goroutine;
// recording and querying must not be called concurrently.
type Predictor struct {
	history  *History
	nominal  time.Duration
	lastPoll time.Time
	scratch  []time.Duration

	// now is the clock; tests pin it.
	now func() time.Time
}

// New returns a Predictor for a source nominally producing one frame every
// nominal duration (1/target-rate).
func New(nominal time.Duration) *Predictor {
	return &Predictor{
		history: NewHistory(HistoryCapacity),
		nominal: nominal,
		scratch: make([]time.Duration, 0, HistoryCapacity),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests use it to pin the clock.
func (p *Predictor) SetClock(now func() time.Time) { p.now = now }

// RecordFrame notes that a new frame arrived at t.
func (p *Predictor) RecordFrame(t time.Time) { p.history.Record(t) }

// RecordPoll notes that a capture attempt happened at t, whether or not it
// found a new frame.
func (p *Predictor) RecordPoll(t time.Time) { p.lastPoll = t }

func (p *Predictor) Nominal() time.Duration { return p.nominal }

func (p *Predictor) History() *History { return p.history }

// EstimateInterval returns the current best guess of the time between
// consecutive new frames, clamped to [nominal, 100ms].
func (p *Predictor) EstimateInterval() time.Duration {
	if p.history.Len() == 0 {
		return p.nominal
	}
	since := p.now().Sub(p.history.At(0))
	if since > longIdle {
		p.history.TruncateToLatest()
		return longIdleInterval
	}
	if since > shortIdle {
		return shortIdleInterval
	}
	if p.history.Len() < p.history.Cap() {
		// Not enough samples for a reliable percentile yet.
		return p.nominal
	}

	// 40th percentile of the sorted successive deltas. Picking below the
	// median prefers the fastest rate actually observed over outliers from
	// frames the poll loop missed.
	n := p.history.Len()
	p.scratch = p.scratch[:0]
	for i := 0; i+1 < n; i++ {
		p.scratch = append(p.scratch, p.history.At(i).Sub(p.history.At(i+1)))
	}
	sort.Slice(p.scratch, func(a, b int) bool { return p.scratch[a] < p.scratch[b] })
	interval := p.scratch[(n-1)*2/5]

	// An estimate near a multiple of the nominal interval usually means
	// every second frame went unobserved.
	if interval >= 2*p.nominal {
		interval /= 2
	}
	if interval > maxInterval {
		interval = maxInterval
	}
	if interval < p.nominal {
		interval = p.nominal
	}
	return interval
}

// PredictNext returns the expected arrival time of the next new frame: the
// first multiple of the estimated interval after the most recent arrival
// that lies at or past now.
func (p *Predictor) PredictNext() time.Time {
	now := p.now()
	if p.history.Len() == 0 {
		return now
	}
	newest := p.history.At(0)
	since := now.Sub(newest)
	if since > longIdle {
		p.history.TruncateToLatest()
		return p.lastPoll.Add(shortIdleInterval)
	}
	if since > shortIdle {
		return p.lastPoll.Add(shortIdleInterval)
	}

	interval := p.EstimateInterval()
	k := int64((since + interval - 1) / interval)
	candidate := newest.Add(time.Duration(k) * interval)

	// If the slot before the candidate came and went without a recorded
	// arrival, and we are still within a third of an interval of it, assume
	// that frame was produced but missed by polling jitter and is already
	// waiting to be captured.
	prev := candidate.Add(-interval)
	if prev.After(newest) && now.Sub(prev) < interval/3 {
		return now
	}
	return candidate
}
