// Package viewer assembles a capture pool, a display session and the frame
// pipeline from configuration, and owns them for one run.
package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/faith0x7dc/wl-camera-shm/internal/capture"
	"github.com/faith0x7dc/wl-camera-shm/internal/config"
	"github.com/faith0x7dc/wl-camera-shm/internal/display"
	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
	"github.com/faith0x7dc/wl-camera-shm/internal/pipeline"
	"github.com/faith0x7dc/wl-camera-shm/internal/present"
	"github.com/faith0x7dc/wl-camera-shm/internal/stats"
	"github.com/faith0x7dc/wl-camera-shm/internal/v4l2"
)

var log = logging.L("viewer")

// InitError is a failure before the first frame: nothing was left open.
type InitError struct {
	Stage string
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("viewer: %s init: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Source is a started-on-demand frame source.
type Source interface {
	pipeline.FrameSource
	Start() error
	Capability() v4l2.Capability
	BufferCount() int
}

// Display is a compositor session able to allocate, present and pump.
type Display interface {
	present.Allocator
	present.Surface
	pipeline.EventPump
}

type deps struct {
	openCapture func(path string, opts capture.Options) (Source, error)
	openDisplay func(ctx context.Context, opts display.Options) (Display, error)
}

func defaultDeps() deps {
	return deps{
		openCapture: func(path string, opts capture.Options) (Source, error) {
			p, err := capture.Open(path, opts)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		openDisplay: func(ctx context.Context, opts display.Options) (Display, error) {
			s, err := display.Open(ctx, opts)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

// Run shows the camera at cfg.Device until ctx is cancelled or the window
// is closed, both of which return nil.
func Run(ctx context.Context, cfg *config.Config) error {
	return run(ctx, cfg, defaultDeps())
}

// captureOptions maps config onto capture options; a configured zero
// discard count disables discarding.
func captureOptions(cfg *config.Config) capture.Options {
	discard := cfg.Capture.DiscardFrames
	if discard == 0 {
		discard = -1
	}
	return capture.Options{
		BufferCount:   cfg.Capture.BufferCount,
		DiscardFrames: discard,
		ReadTimeout:   cfg.Capture.ReadTimeout,
	}
}

func run(ctx context.Context, cfg *config.Config, d deps) error {
	// Runs appending to the same rotated log file are told apart by session.
	logger := logging.WithDevice(log, cfg.Device).With(logging.KeySession, uuid.NewString())

	policy, err := pipeline.ParsePolicy(cfg.Pipeline.PublishPolicy)
	if err != nil {
		return &InitError{Stage: "config", Err: err}
	}

	src, err := d.openCapture(cfg.Device, captureOptions(cfg))
	if err != nil {
		return &InitError{Stage: "capture", Err: err}
	}
	if err := src.Start(); err != nil {
		closeQuietly("capture", src.Close)
		return &InitError{Stage: "capture", Err: err}
	}
	caps := src.Capability()
	logger.Info("capture started", "card", caps.Card, "driver", caps.Driver,
		"buffers", src.BufferCount(),
		"width", src.Width(), "height", src.Height(), "policy", policy.String())

	dsp, err := d.openDisplay(ctx, display.Options{Title: cfg.Display.Title, AppID: cfg.Display.AppID})
	if err != nil {
		closeQuietly("capture", src.Stop)
		closeQuietly("capture", src.Close)
		if ctx.Err() != nil {
			logger.Info("interrupted during startup")
			return nil
		}
		return &InitError{Stage: "display", Err: err}
	}

	pool := present.NewPool(dsp, src.Width(), src.Height())
	opts := pipeline.Options{Policy: policy}
	if !cfg.Quiet {
		opts.OnPresent = stats.New(cfg.Stats.Interval).Tick
	}
	p := pipeline.New(src, pool, dsp, dsp, opts)
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("teardown incomplete", logging.KeyError, err)
		}
	}()

	err = p.Run(ctx)
	if errors.Is(err, display.ErrWindowClosed) {
		logger.Info("window closed")
		return nil
	}
	if err == nil {
		logger.Info("interrupted")
	}
	return err
}

func closeQuietly(what string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn("cleanup failed", "resource", what, logging.KeyError, err)
	}
}
