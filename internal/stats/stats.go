// Package stats tracks what the pipeline actually did: capture attempts,
// new frames found, time burned on polls that found nothing, and the fate
// of frames pushed downstream.
package stats

import (
	"sync/atomic"
	"time"
)

type Stats struct {
	polls           atomic.Uint64
	newFrames       atomic.Uint64
	duplicatePolls  atomic.Uint64
	captureNanos    atomic.Uint64
	wastedPollNanos atomic.Uint64
	framesSent      atomic.Uint64
	framesDropped   atomic.Uint64
}

// AddPoll accounts one capture attempt and its capture latency.
func (s *Stats) AddPoll(captureTime time.Duration) {
	s.polls.Add(1)
	s.captureNanos.Add(uint64(captureTime))
}

// AddNewFrame accounts a poll that promoted a new frame.
func (s *Stats) AddNewFrame() {
	s.newFrames.Add(1)
}

// AddWastedPoll accounts a poll whose capture came back byte-identical to
// the stable frame.
func (s *Stats) AddWastedPoll(elapsed time.Duration) {
	s.duplicatePolls.Add(1)
	s.wastedPollNanos.Add(uint64(elapsed))
}

func (s *Stats) AddFrameSent()    { s.framesSent.Add(1) }
func (s *Stats) AddFrameDropped() { s.framesDropped.Add(1) }

func (s *Stats) Polls() uint64          { return s.polls.Load() }
func (s *Stats) NewFrames() uint64      { return s.newFrames.Load() }
func (s *Stats) DuplicatePolls() uint64 { return s.duplicatePolls.Load() }

// WastedPollTime is cumulative time spent on no-change polls. Diagnostic
// only; nothing in the pipeline keys off it.
func (s *Stats) WastedPollTime() time.Duration {
	return time.Duration(s.wastedPollNanos.Load())
}

func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"polls":           s.polls.Load(),
		"new_frames":      s.newFrames.Load(),
		"duplicate_polls": s.duplicatePolls.Load(),
		"capture_ns":      s.captureNanos.Load(),
		"wasted_poll_ns":  s.wastedPollNanos.Load(),
		"frames_sent":     s.framesSent.Load(),
		"frames_dropped":  s.framesDropped.Load(),
	}
}
