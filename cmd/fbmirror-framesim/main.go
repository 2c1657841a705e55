// fbmirror-framesim answers the snapshot protocol with synthetic frames so
// a mirror daemon can exercise the zmq source without real hardware.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"

	"fbmirror-go/internal/capture"
	"fbmirror-go/internal/wire"
)

func main() {
	var (
		bind   = flag.String("bind", "tcp://*:5555", "Snapshot server bind address")
		width  = flag.Int("width", 320, "Frame width in pixels")
		height = flag.Int("height", 240, "Frame height in pixels")
		fps    = flag.Float64("fps", 60, "Pattern frame rate")
		hold   = flag.Int("hold", 1, "Frames repeated per pattern step")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	geom := capture.Geometry{Width: *width, Height: *height}
	if err := geom.Validate(); err != nil {
		logger.Error("bad geometry", "err", err)
		os.Exit(2)
	}
	if *fps <= 0 || *hold < 1 {
		logger.Error("fps must be positive and hold at least 1")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := capture.NewSim(geom, *fps, *hold)

	socket, err := zmq4.NewSocket(zmq4.REP)
	if err != nil {
		logger.Error("create socket failed", "err", err)
		os.Exit(1)
	}
	defer socket.Close()
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		logger.Error("set recv timeout failed", "err", err)
		os.Exit(1)
	}
	if err := socket.Bind(*bind); err != nil {
		logger.Error("bind failed", "endpoint", *bind, "err", err)
		os.Exit(1)
	}

	logger.Info("serving frames", "bind", *bind,
		"width", geom.Width, "height", geom.Height, "fps", *fps)

	buf := make([]byte, geom.ByteSize())
	for ctx.Err() == nil {
		msg, err := socket.RecvBytes(0)
		if err != nil {
			// Recv timeouts land here too; the loop condition decides
			// whether to keep serving.
			continue
		}
		if _, err := socket.SendBytes(respond(sim, buf, msg, logger), 0); err != nil {
			logger.Warn("send failed", "err", err)
		}
	}
	logger.Info("stopped")
}

// respond always produces a reply; the REP socket cannot take another
// request before one is sent. An empty reply tells the client its
// request was bad.
func respond(sim *capture.Sim, buf []byte, msg []byte, logger *slog.Logger) []byte {
	req, err := wire.DecodeRequest(msg)
	if err != nil {
		logger.Warn("bad request", "err", err)
		return nil
	}
	switch req.Op {
	case wire.OpHello:
		payload, err := wire.EncodeHello(wire.Hello{
			Width:  sim.Geometry().Width,
			Height: sim.Geometry().Height,
			Format: wire.FormatRGB565,
		})
		if err != nil {
			logger.Warn("encode hello failed", "err", err)
			return nil
		}
		return payload
	case wire.OpFrame:
		if err := sim.Capture(buf); err != nil {
			logger.Warn("capture failed", "err", err)
			return nil
		}
		payload, err := wire.EncodeEnvelope(&wire.Envelope{
			Seq:        sim.Index(),
			Width:      sim.Geometry().Width,
			Height:     sim.Geometry().Height,
			Format:     wire.FormatRGB565,
			CapturedNS: time.Now().UnixNano(),
			Data:       buf,
		})
		if err != nil {
			logger.Warn("encode frame failed", "err", err)
			return nil
		}
		return payload
	}
	return nil
}
