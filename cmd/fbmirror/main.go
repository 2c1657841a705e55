package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fbmirror-go/internal/capture"
	"fbmirror-go/internal/config"
	"fbmirror-go/internal/framebuf"
	"fbmirror-go/internal/output"
	"fbmirror-go/internal/poll"
	"fbmirror-go/internal/predict"
	"fbmirror-go/internal/server"
	"fbmirror-go/internal/stats"
)

func main() {
	def := config.Default()
	var (
		source      = flag.String("source", def.Source, "Frame source: fbdev, screen, zmq or sim")
		device      = flag.String("device", def.Device, "Framebuffer device node for the fbdev source")
		endpoint    = flag.String("endpoint", def.Endpoint, "Snapshot server endpoint for the zmq source")
		ioTimeout   = flag.Duration("io-timeout", def.IOTimeout, "Send/recv bound for the zmq source")
		width       = flag.Int("width", def.Width, "Simulated source width in pixels")
		height      = flag.Int("height", def.Height, "Simulated source height in pixels")
		simFPS      = flag.Float64("sim-fps", def.SimFPS, "Simulated source frame rate")
		simHold     = flag.Int("sim-hold", def.Hold, "Simulated frames repeated per pattern step")
		targetFPS   = flag.Int("target-fps", def.TargetFPS, "Nominal source frame rate")
		vsync       = flag.Bool("vsync", def.Vsync, "Pace on display refresh instead of arrival prediction")
		preSleep    = flag.Bool("pre-sleep", def.PreSleep, "Park until one nominal interval after the last frame")
		publishAddr = flag.String("publish", def.PublishEndpoint, "Downstream push bind address, empty disables")
		httpAddr    = flag.String("http", def.HTTPAddr, "Status and preview listen address, empty disables")
		uiRate      = flag.Duration("ui-rate", def.UIRate, "Websocket update interval")
		statusEvery = flag.Duration("status-every", def.StatusEvery, "Interval between status log lines")
		tracePath   = flag.String("trace", def.TracePath, "Poll timing trace file, empty disables")
		logFormat   = flag.String("log-format", def.LogFormat, "Log output format: text or json")
		logLevel    = flag.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")
	)
	flag.Parse()

	cfg := config.Config{
		Source:          *source,
		Device:          *device,
		Endpoint:        *endpoint,
		IOTimeout:       *ioTimeout,
		Width:           *width,
		Height:          *height,
		SimFPS:          *simFPS,
		Hold:            *simHold,
		TargetFPS:       *targetFPS,
		Vsync:           *vsync,
		PreSleep:        *preSleep,
		PublishEndpoint: *publishAddr,
		HTTPAddr:        *httpAddr,
		UIRate:          *uiRate,
		StatusEvery:     *statusEvery,
		TracePath:       *tracePath,
		LogFormat:       *logFormat,
		LogLevel:        *logLevel,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openSource(cfg)
	if err != nil {
		logger.Error("source open failed", "source", cfg.Source, "err", err)
		os.Exit(1)
	}

	start := time.Now()
	geom := src.Geometry()
	pair := framebuf.NewPair(geom.Width, geom.Height)
	st := &stats.Stats{}
	logger.Info("mirroring", "source", cfg.Source, "width", geom.Width, "height", geom.Height,
		"target_fps", cfg.TargetFPS, "vsync", cfg.Vsync)

	var trace *stats.TraceWriter
	if cfg.TracePath != "" {
		trace, err = stats.NewTraceWriter(cfg.TracePath)
		if err != nil {
			logger.Error("trace open failed", "path", cfg.TracePath, "err", err)
			_ = src.Close()
			os.Exit(1)
		}
	}

	var publisher *output.Publisher
	if cfg.PublishEndpoint != "" {
		publisher, err = output.NewPublisher(cfg.PublishEndpoint, st, logger)
		if err != nil {
			logger.Error("publisher open failed", "endpoint", cfg.PublishEndpoint, "err", err)
			_ = src.Close()
			os.Exit(1)
		}
		logger.Info("publishing frames", "endpoint", cfg.PublishEndpoint)
	}

	var wg sync.WaitGroup

	var pacer poll.Pacer
	if cfg.Vsync {
		waiter, ok := src.(capture.VsyncWaiter)
		if !ok {
			logger.Error("source cannot wait for vsync", "source", cfg.Source)
			_ = src.Close()
			os.Exit(1)
		}
		vsyncPacer := poll.NewVsyncPacer(cfg.Nominal())
		pacer = vsyncPacer
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Closing the pacer here, after the last Notify, stops the
			// poller whether the pump exits on shutdown or on a dead
			// vsync ioctl.
			defer vsyncPacer.Close()
			for {
				if err := waiter.WaitVsync(); err != nil {
					if ctx.Err() == nil {
						logger.Warn("vsync wait failed", "err", err)
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
				vsyncPacer.Notify()
			}
		}()
	} else {
		pacer = poll.NewPredictivePacer(predict.New(cfg.Nominal()), cfg.PreSleep)
	}

	poller := poll.New(src, pair, pacer, st, logger)
	if trace != nil {
		poller.SetTrace(trace)
	}

	pollErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		pollErr <- poller.Run(ctx)
		stop()
	}()

	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := publisher.Run(ctx, pair); err != nil {
				logger.Error("publisher stopped", "err", err)
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(cfg.StatusEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("poll stats",
					"polls", st.Polls(),
					"new_frames", st.NewFrames(),
					"duplicate_polls", st.DuplicatePolls(),
					"wasted_poll_ms", st.WastedPollTime().Milliseconds(),
					"interval_ms", poller.IntervalEstimate().Milliseconds())
				if trace != nil {
					if err := trace.Flush(); err != nil {
						logger.Warn("trace flush failed", "err", err)
					}
				}
			}
		}
	}()

	statusFn := func() map[string]any {
		return map[string]any{
			"source":      cfg.Source,
			"width":       geom.Width,
			"height":      geom.Height,
			"uptime_s":    int64(time.Since(start).Seconds()),
			"publishes":   pair.PublishCount(),
			"interval_ns": poller.IntervalEstimate().Nanoseconds(),
			"metrics":     st.Snapshot(),
		}
	}

	if cfg.HTTPAddr != "" {
		events := make(chan any, 16)
		go func() {
			defer close(events)
			ticker := time.NewTicker(cfg.UIRate)
			defer ticker.Stop()
			var lastSeq uint64
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					seq := pair.PublishCount()
					if seq == lastSeq {
						continue
					}
					lastSeq = seq
					select {
					case events <- map[string]any{
						"type":            "frame",
						"seq":             seq,
						"interval_ns":     poller.IntervalEstimate().Nanoseconds(),
						"new_frames":      st.NewFrames(),
						"duplicate_polls": st.DuplicatePolls(),
					}:
					default:
					}
				}
			}
		}()
		logger.Info("serving preview", "addr", cfg.HTTPAddr)
		if err := server.Run(ctx, cfg, pair, events, statusFn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
		}
		stop()
	} else {
		<-ctx.Done()
	}

	// The poller stops on its own once ctx is canceled; the pair must stay
	// open until then because a promote may still be in flight.
	pollRunErr := <-pollErr
	pair.Close()
	wg.Wait()
	if publisher != nil {
		_ = publisher.Close()
	}
	if err := src.Close(); err != nil {
		logger.Warn("source close failed", "err", err)
	}
	if trace != nil {
		if err := trace.Close(); err != nil {
			logger.Warn("trace close failed", "err", err)
		}
	}

	if pollRunErr != nil {
		logger.Error("poller failed", "err", pollRunErr)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openSource(cfg config.Config) (capture.Source, error) {
	switch cfg.Source {
	case "fbdev":
		return capture.NewFBDev(cfg.Device)
	case "screen":
		return capture.NewScreen()
	case "zmq":
		return capture.NewRemote(cfg.Endpoint, cfg.IOTimeout)
	case "sim":
		geom := capture.Geometry{Width: cfg.Width, Height: cfg.Height}
		return capture.NewSim(geom, cfg.SimFPS, cfg.Hold), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
