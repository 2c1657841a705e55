package wire

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data := make([]byte, 4*2*2)
	for i := range data {
		data[i] = byte(i)
	}
	e := &Envelope{
		Seq:        9,
		Width:      4,
		Height:     2,
		Format:     FormatRGB565,
		CapturedNS: 123456789,
		Data:       data,
	}

	raw, err := EncodeEnvelope(e)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.Seq != 9 || got.Width != 4 || got.Height != 2 || got.CapturedNS != 123456789 {
		t.Fatalf("decoded header mismatch: %+v", got)
	}
	if !bytes.Equal(got.Data, data) {
		t.Fatal("decoded payload mismatch")
	}
}

func TestEnvelopeRejectsWrongPayloadSize(t *testing.T) {
	e := &Envelope{
		Seq:    1,
		Width:  4,
		Height: 2,
		Format: FormatRGB565,
		Data:   make([]byte, 3),
	}
	if _, err := EncodeEnvelope(e); err == nil {
		t.Fatal("short payload accepted")
	}

	// Same mismatch arriving off the wire must be caught on decode.
	raw, err := cbor.Marshal(e)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if _, err := DecodeEnvelope(raw); err == nil {
		t.Fatal("short payload accepted on decode")
	}
}

func TestEnvelopeRejectsUnknownFormat(t *testing.T) {
	e := &Envelope{Seq: 1, Width: 2, Height: 2, Format: "rgba8888", Data: make([]byte, 8)}
	if _, err := EncodeEnvelope(e); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	for _, op := range []string{OpHello, OpFrame} {
		raw, err := EncodeRequest(Request{Op: op})
		if err != nil {
			t.Fatalf("encode %q: %v", op, err)
		}
		got, err := DecodeRequest(raw)
		if err != nil {
			t.Fatalf("decode %q: %v", op, err)
		}
		if got.Op != op {
			t.Fatalf("round trip changed op: %q -> %q", op, got.Op)
		}
	}
}

func TestRequestRejectsUnknownOp(t *testing.T) {
	raw, err := EncodeRequest(Request{Op: "reboot"})
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if _, err := DecodeRequest(raw); err == nil {
		t.Fatal("unknown op accepted")
	}
}

func TestHelloValidation(t *testing.T) {
	raw, err := EncodeHello(Hello{Width: 320, Height: 240, Format: FormatRGB565})
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	h, err := DecodeHello(raw)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if h.Width != 320 || h.Height != 240 {
		t.Fatalf("decoded geometry mismatch: %+v", h)
	}

	raw, err = EncodeHello(Hello{Width: 0, Height: 240, Format: FormatRGB565})
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if _, err := DecodeHello(raw); err == nil {
		t.Fatal("zero width accepted")
	}
}
