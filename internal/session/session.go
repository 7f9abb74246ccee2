// Package session holds the per-user capture state: input source, active
// analysis model, the latest frame and detection, and the locked frame used
// for compositing.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/geometry"
)

// Source is the input mode.
type Source string

const (
	SourceWebcam Source = "webcam"
	SourceImage  Source = "image"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceWebcam, SourceImage:
		return Source(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
}

var (
	ErrInvalidSource = errors.New("invalid input source")
	// ErrFrozen is returned for frames observed while analysis is paused.
	ErrFrozen = errors.New("analysis is paused")
	// ErrStaleResult means the session changed while an analysis was running
	// and its result was discarded.
	ErrStaleResult = errors.New("analysis result is stale")
)

// ClassifierProvider returns the classifier for an analysis model.
type ClassifierProvider func(ctx context.Context, model catalog.Model) (classify.Classifier, error)

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Analyzer    *Analyzer
	Classifiers ClassifierProvider
	Compositor  *compositor.Compositor
	Catalog     *catalog.Catalog
}

// Session is safe for concurrent use. Transitions other than Observe bump an
// epoch; analyses started under an older epoch are discarded when they finish.
type Session struct {
	ID string

	deps Deps

	mu          sync.Mutex
	source      Source
	model       catalog.Model
	running     bool
	latestFrame image.Image
	latestBox   *geometry.BoundingBox
	latest      *Analysis
	captured    image.Image
	capturedBox *geometry.BoundingBox
	epoch       uint64
	lastUsed    time.Time
	// limiter throttles continuous classification for this session only.
	limiter *rate.Limiter
}

// New creates a session in webcam mode with the face-shape model.
func New(id string, deps Deps) *Session {
	return &Session{
		ID:       id,
		deps:     deps,
		source:   SourceWebcam,
		model:    catalog.ModelFaceShape,
		running:  true,
		lastUsed: time.Now(),
		limiter:  deps.Analyzer.NewLimiter(),
	}
}

// State is a read-only view of the session.
type State struct {
	ID          string                `json:"id"`
	Source      Source                `json:"source"`
	Model       catalog.Model         `json:"model"`
	ModelName   string                `json:"model_name"`
	Running     bool                  `json:"running"`
	HasFrame    bool                  `json:"has_frame"`
	Captured    bool                  `json:"captured"`
	CapturedBox *geometry.BoundingBox `json:"captured_box,omitempty"`
	Analysis    *Analysis             `json:"analysis,omitempty"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ID:        s.ID,
		Source:    s.source,
		Model:     s.model,
		ModelName: s.model.DisplayName(),
		Running:   s.running,
		HasFrame:  s.latestFrame != nil,
		Captured:  s.captured != nil,
		Analysis:  s.latest,
	}
	if s.capturedBox != nil {
		b := *s.capturedBox
		st.CapturedBox = &b
	}
	return st
}

// invalidateLocked clears everything derived from the previous source or model.
func (s *Session) invalidateLocked() {
	s.epoch++
	s.captured = nil
	s.capturedBox = nil
	s.latestBox = nil
	s.latest = nil
}

func (s *Session) touchLocked() {
	s.lastUsed = time.Now()
}

// LastUsed returns the time of the last transition.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SwitchSource changes the input mode. The webcam mode starts running; the
// image mode waits for an upload.
func (s *Session) SwitchSource(src Source) error {
	if _, err := ParseSource(string(src)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.invalidateLocked()
	s.source = src
	s.latestFrame = nil
	s.running = src == SourceWebcam
	return nil
}

// SwitchModel changes the active analysis model.
func (s *Session) SwitchModel(m catalog.Model) error {
	if m != catalog.ModelFaceShape && m != catalog.ModelTone {
		return fmt.Errorf("%w: %q", catalog.ErrUnknownModel, m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.invalidateLocked()
	s.model = m
	return nil
}

// Upload replaces the current image and switches to image mode.
func (s *Session) Upload(img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("%w: empty upload", compositor.ErrPreconditionViolation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.invalidateLocked()
	s.source = SourceImage
	s.running = false
	s.latestFrame = img
	return nil
}

// Observe records the newest camera frame. Frames are ignored while paused.
func (s *Session) Observe(frame image.Image) error {
	if frame == nil || frame.Bounds().Empty() {
		return fmt.Errorf("%w: empty frame", compositor.ErrPreconditionViolation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.source != SourceWebcam {
		return fmt.Errorf("%w: source is %s", ErrInvalidSource, s.source)
	}
	if !s.running {
		return ErrFrozen
	}
	s.latestFrame = frame
	return nil
}

// Analyze locates the face in the latest frame and classifies it with the
// active model. While the webcam is running, classification is rate limited.
// In image mode a successful detection also locks the uploaded image for
// compositing.
func (s *Session) Analyze(ctx context.Context) (*Analysis, error) {
	s.mu.Lock()
	frame := s.latestFrame
	paused := s.source == SourceWebcam && !s.running
	if paused {
		frame = s.captured
	}
	model := s.model
	epoch := s.epoch
	var limiter *rate.Limiter
	if s.source == SourceWebcam && s.running {
		limiter = s.limiter
	}
	s.touchLocked()
	s.mu.Unlock()

	if frame == nil {
		return nil, fmt.Errorf("%w: no frame to analyze", compositor.ErrPreconditionViolation)
	}

	clf, err := s.deps.Classifiers(ctx, model)
	if err != nil {
		return nil, err
	}

	result, err := s.deps.Analyzer.Run(ctx, frame, model, clf, limiter)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil, ErrStaleResult
	}

	if err != nil {
		if face.IsDetectionError(err) {
			s.latestBox = nil
			if s.source == SourceImage {
				s.captured = nil
			}
			if s.source == SourceImage || paused {
				s.capturedBox = nil
			}
		}
		return nil, err
	}

	box := result.Box
	s.latestBox = &box
	if result.Classified || s.latest == nil {
		s.latest = result
	} else {
		kept := *s.latest
		kept.Box = result.Box
		kept.Confidence = result.Confidence
		s.latest = &kept
	}
	if s.source == SourceImage {
		s.captured = frame
	}
	if s.source == SourceImage || paused {
		capturedBox := box
		s.capturedBox = &capturedBox
	}
	return s.latest, nil
}

// Pause locks the latest camera frame and its detection. Any previous
// capture is replaced.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.source != SourceWebcam {
		return fmt.Errorf("%w: pause needs the webcam source", ErrInvalidSource)
	}
	if s.latestFrame == nil {
		return fmt.Errorf("%w: no frame to capture", compositor.ErrPreconditionViolation)
	}
	s.epoch++
	s.running = false
	s.captured = s.latestFrame
	s.capturedBox = nil
	if s.latestBox != nil {
		b := *s.latestBox
		s.capturedBox = &b
	}
	return nil
}

// Resume unlocks the frame and continues live analysis.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	if s.source != SourceWebcam {
		return fmt.Errorf("%w: resume needs the webcam source", ErrInvalidSource)
	}
	s.epoch++
	s.running = true
	s.captured = nil
	s.capturedBox = nil
	return nil
}

// Composite renders a style onto the locked frame. tone selects the
// tone-tinted sticker and may be empty.
func (s *Session) Composite(styleKey, tone string) (*image.RGBA, error) {
	s.mu.Lock()
	frame := s.captured
	var box *geometry.BoundingBox
	if s.capturedBox != nil {
		b := *s.capturedBox
		box = &b
	}
	s.touchLocked()
	s.mu.Unlock()

	if frame == nil || box == nil {
		return nil, fmt.Errorf("%w: no locked frame with a detected face", compositor.ErrPreconditionViolation)
	}

	spec, err := s.deps.Catalog.StyleSpec(styleKey, tone)
	if err != nil {
		return nil, err
	}
	return s.deps.Compositor.Composite(frame, box, spec)
}

// CapturedFrame returns the locked frame, or nil.
func (s *Session) CapturedFrame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}
