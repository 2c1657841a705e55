// Package output pushes published frames to downstream consumers over
// ZeroMQ.
package output

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pebbe/zmq4"

	"fbmirror-go/internal/framebuf"
	"fbmirror-go/internal/stats"
	"fbmirror-go/internal/wire"
)

// sendHWM bounds frames queued for a slow peer. A stalled consumer
// resumes on recent frames, not a backlog.
const sendHWM = 4

// Publisher forwards every publish over a PUSH socket. Sends never
// block: a frame nobody can take right now is dropped, the next
// publish carries the newest pixels anyway.
type Publisher struct {
	socket *zmq4.Socket
	stats  *stats.Stats
	logger *slog.Logger
}

func NewPublisher(endpoint string, st *stats.Stats, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return nil, fmt.Errorf("output: create socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("output: set linger: %w", err)
	}
	if err := socket.SetSndhwm(sendHWM); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("output: set send hwm: %w", err)
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("output: bind %s: %w", endpoint, err)
	}
	return &Publisher{socket: socket, stats: st, logger: logger}, nil
}

// Run forwards frames until the pair closes. Waking on publish n and
// snapshotting a later frame is fine, the skipped ones were already
// stale.
func (p *Publisher) Run(ctx context.Context, pair *framebuf.Pair) error {
	buf := make([]byte, pair.Size())
	var lastSeen uint64
	for {
		if _, err := pair.WaitFrame(lastSeen); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		seq, captured := pair.Snapshot(buf)
		lastSeen = seq
		payload, err := wire.EncodeEnvelope(&wire.Envelope{
			Seq:        seq,
			Width:      pair.Width(),
			Height:     pair.Height(),
			Format:     wire.FormatRGB565,
			CapturedNS: captured.UnixNano(),
			Data:       buf,
		})
		if err != nil {
			return fmt.Errorf("output: encode frame %d: %w", seq, err)
		}
		if _, err := p.socket.SendBytes(payload, zmq4.DONTWAIT); err != nil {
			p.stats.AddFrameDropped()
			p.logger.Debug("frame dropped", "seq", seq, "err", err)
			continue
		}
		p.stats.AddFrameSent()
	}
}

// Close releases the socket. Call after Run has returned.
func (p *Publisher) Close() error {
	return p.socket.Close()
}
