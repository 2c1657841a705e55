package config

import (
	"fmt"
	"time"
)

// Config holds the daemon configuration. cmd/fbmirror binds one flag
// per field.
type Config struct {
	Source string // fbdev, screen, zmq or sim

	Device    string        // framebuffer device node
	Endpoint  string        // remote snapshot server endpoint
	IOTimeout time.Duration // send/recv bound for the remote source

	Width  int // simulated source geometry
	Height int
	SimFPS float64
	Hold   int // simulated frames repeated per pattern step

	TargetFPS int  // nominal source rate the interval estimator falls back to
	Vsync     bool // pace on display refresh instead of arrival prediction
	PreSleep  bool // park until one nominal interval after the last frame

	PublishEndpoint string // downstream push bind address, empty disables
	HTTPAddr        string // status and preview server, empty disables
	UIRate          time.Duration
	StatusEvery     time.Duration

	TracePath string // poll timing trace file, empty disables
	LogFormat string // text or json
	LogLevel  string // debug, info, warn or error
}

// Default returns the configuration cmd/fbmirror starts from before
// applying flags.
func Default() Config {
	return Config{
		Source:      "fbdev",
		Device:      "/dev/fb0",
		IOTimeout:   2 * time.Second,
		Width:       320,
		Height:      240,
		SimFPS:      60,
		Hold:        1,
		TargetFPS:   60,
		PreSleep:    true,
		HTTPAddr:    ":8888",
		UIRate:      250 * time.Millisecond,
		StatusEvery: 30 * time.Second,
		LogFormat:   "text",
		LogLevel:    "info",
	}
}

// Nominal is the expected frame interval derived from TargetFPS.
func (c Config) Nominal() time.Duration {
	return time.Duration(float64(time.Second) / float64(c.TargetFPS))
}

// Validate rejects configurations the daemon cannot run with. It is
// called once at startup so bad flags fail before any socket opens.
func (c Config) Validate() error {
	switch c.Source {
	case "fbdev":
		if c.Device == "" {
			return fmt.Errorf("config: fbdev source needs a device node")
		}
	case "screen":
	case "zmq":
		if c.Endpoint == "" {
			return fmt.Errorf("config: zmq source needs an endpoint")
		}
	case "sim":
		if c.Width < 1 || c.Height < 1 {
			return fmt.Errorf("config: sim geometry %dx%d invalid", c.Width, c.Height)
		}
		if c.SimFPS <= 0 {
			return fmt.Errorf("config: sim fps must be positive, got %v", c.SimFPS)
		}
		if c.Hold < 1 {
			return fmt.Errorf("config: sim hold must be at least 1, got %d", c.Hold)
		}
	default:
		return fmt.Errorf("config: unknown source %q", c.Source)
	}
	if c.TargetFPS < 1 {
		return fmt.Errorf("config: target fps must be at least 1, got %d", c.TargetFPS)
	}
	if c.Vsync && c.Source != "fbdev" {
		return fmt.Errorf("config: vsync pacing needs the fbdev source, got %q", c.Source)
	}
	if c.HTTPAddr != "" && c.UIRate <= 0 {
		return fmt.Errorf("config: ui rate must be positive, got %v", c.UIRate)
	}
	if c.StatusEvery <= 0 {
		return fmt.Errorf("config: status interval must be positive, got %v", c.StatusEvery)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}
