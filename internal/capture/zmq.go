package capture

import (
	"fmt"
	"time"

	"github.com/pebbe/zmq4"

	"fbmirror-go/internal/wire"
)

// Remote captures from a snapshot server over a ZeroMQ REQ socket: one
// request/reply exchange per capture. The server is expected to answer a
// frame request with its newest frame, whether or not it changed. Geometry
// is learned from a hello exchange at open time.
type Remote struct {
	socket   *zmq4.Socket
	geom     Geometry
	frameReq []byte
	closed   bool
}

// NewRemote connects to a snapshot server. timeout bounds every send and
// receive; a server that stops answering turns into a capture error and
// stops the poll loop.
func NewRemote(endpoint string, timeout time.Duration) (*Remote, error) {
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, fmt.Errorf("capture: zmq socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("capture: zmq linger: %w", err)
	}
	if timeout > 0 {
		if err := socket.SetRcvtimeo(timeout); err != nil {
			_ = socket.Close()
			return nil, fmt.Errorf("capture: zmq rcvtimeo: %w", err)
		}
		if err := socket.SetSndtimeo(timeout); err != nil {
			_ = socket.Close()
			return nil, fmt.Errorf("capture: zmq sndtimeo: %w", err)
		}
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("capture: connect %s: %w", endpoint, err)
	}

	r := &Remote{socket: socket}
	hello, err := r.hello()
	if err != nil {
		_ = socket.Close()
		return nil, err
	}
	r.geom = Geometry{Width: hello.Width, Height: hello.Height}
	if err := r.geom.Validate(); err != nil {
		_ = socket.Close()
		return nil, err
	}
	r.frameReq, err = wire.EncodeRequest(wire.Request{Op: wire.OpFrame})
	if err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("capture: encode frame request: %w", err)
	}
	return r, nil
}

func (r *Remote) hello() (wire.Hello, error) {
	req, err := wire.EncodeRequest(wire.Request{Op: wire.OpHello})
	if err != nil {
		return wire.Hello{}, fmt.Errorf("capture: encode hello: %w", err)
	}
	if _, err := r.socket.SendBytes(req, 0); err != nil {
		return wire.Hello{}, fmt.Errorf("capture: send hello: %w", err)
	}
	reply, err := r.socket.RecvBytes(0)
	if err != nil {
		return wire.Hello{}, fmt.Errorf("capture: recv hello: %w", err)
	}
	hello, err := wire.DecodeHello(reply)
	if err != nil {
		return wire.Hello{}, err
	}
	return hello, nil
}

func (r *Remote) Geometry() Geometry { return r.geom }

func (r *Remote) Capture(dst []byte) error {
	if r.closed {
		return ErrClosed
	}
	if err := checkBufferSize(r.geom, dst); err != nil {
		return err
	}
	if _, err := r.socket.SendBytes(r.frameReq, 0); err != nil {
		return fmt.Errorf("capture: send frame request: %w", err)
	}
	reply, err := r.socket.RecvBytes(0)
	if err != nil {
		return fmt.Errorf("capture: recv frame: %w", err)
	}
	env, err := wire.DecodeEnvelope(reply)
	if err != nil {
		return err
	}
	if env.Width != r.geom.Width || env.Height != r.geom.Height {
		return fmt.Errorf("capture: server geometry changed to %dx%d, opened at %dx%d",
			env.Width, env.Height, r.geom.Width, r.geom.Height)
	}
	copy(dst, env.Data)
	return nil
}

func (r *Remote) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.socket.Close()
}
