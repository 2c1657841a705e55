// Package wire defines the CBOR messages exchanged on the ZeroMQ surfaces:
// the snapshot request protocol spoken by a remote capture source and the
// frame envelope pushed to downstream consumers.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FormatRGB565 is the only pixel format the pipeline carries.
const FormatRGB565 = "rgb565"

// Snapshot protocol operations.
const (
	OpHello = "hello"
	OpFrame = "frame"
)

// Request is sent by a remote capture source to a snapshot server.
type Request struct {
	Op string `cbor:"op"`
}

// Hello is the snapshot server's reply to OpHello.
type Hello struct {
	Width  int    `cbor:"width"`
	Height int    `cbor:"height"`
	Format string `cbor:"format"`
}

// Envelope carries one frame: the reply to OpFrame, and the message pushed
// downstream on every publish.
type Envelope struct {
	Seq        uint64 `cbor:"seq"`
	Width      int    `cbor:"width"`
	Height     int    `cbor:"height"`
	Format     string `cbor:"format"`
	CapturedNS int64  `cbor:"captured_ns"`
	Data       []byte `cbor:"data"`
}

func (e *Envelope) Validate() error {
	if e.Width <= 0 || e.Height <= 0 {
		return fmt.Errorf("wire: invalid dimensions %dx%d", e.Width, e.Height)
	}
	if e.Format != FormatRGB565 {
		return fmt.Errorf("wire: unsupported format %q", e.Format)
	}
	if want := e.Width * e.Height * 2; len(e.Data) != want {
		return fmt.Errorf("wire: payload is %d bytes, %dx%d needs %d", len(e.Data), e.Width, e.Height, want)
	}
	return nil
}

func EncodeRequest(r Request) ([]byte, error) {
	return cbor.Marshal(r)
}

func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("wire: decode request: %w", err)
	}
	if r.Op != OpHello && r.Op != OpFrame {
		return Request{}, fmt.Errorf("wire: unknown op %q", r.Op)
	}
	return r, nil
}

func EncodeHello(h Hello) ([]byte, error) {
	return cbor.Marshal(h)
}

func DecodeHello(data []byte) (Hello, error) {
	var h Hello
	if err := cbor.Unmarshal(data, &h); err != nil {
		return Hello{}, fmt.Errorf("wire: decode hello: %w", err)
	}
	if h.Width <= 0 || h.Height <= 0 {
		return Hello{}, fmt.Errorf("wire: invalid hello dimensions %dx%d", h.Width, h.Height)
	}
	if h.Format != FormatRGB565 {
		return Hello{}, fmt.Errorf("wire: unsupported format %q", h.Format)
	}
	return h, nil
}

func EncodeEnvelope(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return cbor.Marshal(e)
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
