// Package tracker runs the live try-on loop: detect a face on every frame and
// move a sticker overlay to follow it.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/geometry"
	"github.com/kozaktomas/stylemate/internal/logging"
)

// State of the tracker.
type State int

const (
	Idle State = iota
	Tracking
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrInvalidTransition is returned for Start, Stop or Reset in the wrong state.
var ErrInvalidTransition = errors.New("invalid tracker state transition")

// Transform positions the overlay in display space. Rotation is in degrees.
type Transform struct {
	Visible     bool    `json:"visible"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Rotation    float64 `json:"rotation"`
	Mirrored    bool    `json:"mirrored"`
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
}

// Overlay receives transform updates. Calls are never concurrent.
type Overlay interface {
	Show(Transform)
	Hide()
}

// Placer computes where a sticker goes for a face box.
type Placer interface {
	Place(box geometry.BoundingBox, spec geometry.StickerSpec) (geometry.Placement, error)
}

// LocatorLoader provides the face locator on first use.
type LocatorLoader func(ctx context.Context) (face.Locator, error)

// Config holds the live sticker and detection limits.
type Config struct {
	Spec       geometry.StickerSpec
	Mirror     bool
	Thresholds face.Thresholds
}

// Tracker owns one camera stream while Tracking. Start, Stop and Reset may
// be called from any goroutine.
type Tracker struct {
	camera      capture.Camera
	loadLocator LocatorLoader
	placer      Placer
	overlay     Overlay
	cfg         Config

	mu      sync.Mutex
	state   State
	locator face.Locator
	stream  capture.Stream
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error

	// gen changes on every start and stop; work from an older generation is dropped.
	gen       atomic.Uint64
	overlayMu sync.Mutex
	frames    atomic.Uint64
}

func New(camera capture.Camera, loader LocatorLoader, placer Placer, overlay Overlay, cfg Config) *Tracker {
	return &Tracker{
		camera:      camera,
		loadLocator: loader,
		placer:      placer,
		overlay:     overlay,
		cfg:         cfg,
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that ended the last tracking run, if any.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Frames returns the number of frames processed since creation.
func (t *Tracker) Frames() uint64 {
	return t.frames.Load()
}

// Start loads the locator if needed, opens a fresh camera stream and begins
// the per-frame loop. Only valid from Idle.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Idle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, t.state)
	}

	if t.locator == nil {
		loc, err := t.loadLocator(ctx)
		if err != nil {
			return fmt.Errorf("loading face locator: %w", err)
		}
		t.locator = loc
	}

	stream, err := t.camera.Open(ctx)
	if err != nil {
		return err
	}

	gen := t.gen.Add(1)
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.stream = stream
	t.cancel = cancel
	t.done = make(chan struct{})
	t.lastErr = nil
	t.state = Tracking

	logging.Info(logging.Fields{"generation": gen}, "tracker started")
	go t.loop(loopCtx, gen, stream, t.locator, t.done)
	return nil
}

// Stop ends tracking: no further overlay updates are applied, the camera
// stream is closed and the loop has exited when Stop returns.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Tracking {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, t.state)
	}

	t.teardownLocked()
	<-t.done
	t.hide()
	logging.Info(logging.Fields{"frames": t.frames.Load()}, "tracker stopped")
	return nil
}

// Reset returns a stopped tracker to Idle so it can be started again.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Stopped {
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, t.state)
	}
	t.state = Idle
	return nil
}

// Wait blocks until the current run's loop exits.
func (t *Tracker) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *Tracker) teardownLocked() {
	t.gen.Add(1)
	t.cancel()
	if err := t.stream.Close(); err != nil {
		logging.Warn(logging.Fields{"error": err}, "closing camera stream")
	}
	t.stream = nil
	t.state = Stopped
}

// finish handles a stream that ended on its own.
func (t *Tracker) finish(gen uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Tracking || t.gen.Load() != gen {
		return
	}
	t.lastErr = err
	t.teardownLocked()
	t.hide()
	logging.Warn(logging.Fields{"error": err}, "tracking ended")
}

func (t *Tracker) loop(ctx context.Context, gen uint64, stream capture.Stream, loc face.Locator, done chan struct{}) {
	defer close(done)

	errs := stream.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			go t.finish(gen, err)
			return
		case frame, ok := <-stream.Frames():
			if !ok {
				var err error
				if errs != nil {
					select {
					case err = <-errs:
					default:
					}
				}
				go t.finish(gen, err)
				return
			}
			t.step(ctx, gen, loc, frame)
			t.frames.Add(1)
		}
	}
}

// step runs detection for one frame and updates the overlay.
func (t *Tracker) step(ctx context.Context, gen uint64, loc face.Locator, frame image.Image) {
	if t.gen.Load() != gen {
		return
	}

	dets, err := loc.Detect(ctx, frame)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logging.Warn(logging.Fields{"error": err}, "face detection failed")
		t.apply(gen, nil)
		return
	}

	d, box, err := face.Select(dets, t.cfg.Thresholds)
	if err != nil {
		t.apply(gen, nil)
		return
	}

	p, err := t.placer.Place(box, t.cfg.Spec)
	if err != nil {
		logging.Warn(logging.Fields{"error": err, "asset": t.cfg.Spec.AssetPath}, "sticker placement failed")
		t.apply(gen, nil)
		return
	}

	b := frame.Bounds()
	tr := OverlayTransform(p, d.RotationDegrees(), b.Dx(), b.Dy(), t.cfg.Mirror)
	t.apply(gen, &tr)
}

// OverlayTransform converts a placement in frame space into a display
// transform. Mirroring flips x against the frame width and negates rotation.
func OverlayTransform(p geometry.Placement, rotationDeg float64, frameWidth, frameHeight int, mirror bool) Transform {
	tr := Transform{
		Visible:     true,
		X:           p.X,
		Y:           p.Y,
		Width:       p.Width,
		Height:      p.Height,
		Rotation:    rotationDeg,
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
	}
	if mirror {
		tr.X = float64(frameWidth) - (p.X + p.Width)
		if rotationDeg != 0 {
			tr.Rotation = -rotationDeg
		}
		tr.Mirrored = true
	}
	return tr
}

func (t *Tracker) apply(gen uint64, tr *Transform) {
	t.overlayMu.Lock()
	defer t.overlayMu.Unlock()
	if t.gen.Load() != gen {
		return
	}
	if tr == nil {
		t.overlay.Hide()
		return
	}
	t.overlay.Show(*tr)
}

func (t *Tracker) hide() {
	t.overlayMu.Lock()
	defer t.overlayMu.Unlock()
	t.overlay.Hide()
}
