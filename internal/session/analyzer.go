package session

import (
	"context"
	"image"
	"time"

	"golang.org/x/time/rate"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/geometry"
)

// Analysis is the outcome of one locate-then-classify pass.
type Analysis struct {
	Model       catalog.Model         `json:"model"`
	Box         geometry.BoundingBox  `json:"box"`
	Confidence  float64               `json:"confidence"`
	Classified  bool                  `json:"classified"`
	Predictions []classify.Prediction `json:"predictions,omitempty"`
	Top         *classify.Prediction  `json:"top,omitempty"`
	Shape       *catalog.Shape        `json:"shape,omitempty"`
	Tone        *catalog.Tone         `json:"tone,omitempty"`
	At          time.Time             `json:"at"`
}

// Analyzer runs the face locator and, for usable faces, the classifier.
// It is shared by all sessions; each caller brings its own limiter.
type Analyzer struct {
	locator    face.Locator
	thresholds face.Thresholds
	catalog    *catalog.Catalog
	limit      rate.Limit
}

// NewAnalyzer creates an analyzer whose limiters allow one continuous
// classification per interval. A non-positive interval disables the limit.
func NewAnalyzer(locator face.Locator, thresholds face.Thresholds, cat *catalog.Catalog, interval time.Duration) *Analyzer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Analyzer{
		locator:    locator,
		thresholds: thresholds,
		catalog:    cat,
		limit:      limit,
	}
}

// NewLimiter returns a classification limiter for one session.
func (a *Analyzer) NewLimiter() *rate.Limiter {
	if a == nil {
		return nil
	}
	return rate.NewLimiter(a.limit, 1)
}

// Run analyses frame. Detection-quality errors are returned as is and
// classification is skipped. A nil limiter classifies every frame; otherwise
// classification runs only when the limiter allows it. Detection always runs.
func (a *Analyzer) Run(ctx context.Context, frame image.Image, model catalog.Model, clf classify.Classifier, limiter *rate.Limiter) (*Analysis, error) {
	dets, err := a.locator.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	d, box, err := face.Select(dets, a.thresholds)
	if err != nil {
		return nil, err
	}

	result := &Analysis{
		Model:      model,
		Box:        box,
		Confidence: d.Confidence,
		At:         time.Now(),
	}

	if limiter != nil && !limiter.Allow() {
		return result, nil
	}

	preds, err := clf.Predict(ctx, frame)
	if err != nil {
		return nil, err
	}
	result.Classified = true
	result.Predictions = preds

	if top, ok := classify.Top(preds); ok {
		result.Top = &top
		switch model {
		case catalog.ModelTone:
			if t, err := a.catalog.Tone(top.ClassName); err == nil {
				result.Tone = t
			}
		default:
			if s, err := a.catalog.Shape(top.ClassName); err == nil {
				result.Shape = s
			}
		}
	}
	return result, nil
}
