package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/config"
	"github.com/kozaktomas/stylemate/internal/constants"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/geometry"
	"github.com/kozaktomas/stylemate/internal/session"
	"github.com/kozaktomas/stylemate/internal/tracker"
	"github.com/kozaktomas/stylemate/internal/web/middleware"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Locator: config.LocatorConfig{URL: "http://localhost:8000"},
		Detection: config.DetectionConfig{
			MinConfidence: constants.FaceDetectionThreshold,
			MinFaceSize:   constants.MinFaceSize,
		},
		Live: config.LiveConfig{
			StickerAsset: constants.LiveStickerAsset,
			ScaleFactor:  constants.LiveScaleFactor,
			YOffsetRatio: constants.LiveYOffsetRatio,
			Mirror:       true,
		},
	}
}

// fakeLocator returns whatever detections are currently stored.
type fakeLocator struct {
	dets atomic.Pointer[[]face.Detection]
}

func newFakeLocator(dets []face.Detection) *fakeLocator {
	l := &fakeLocator{}
	l.set(dets)
	return l
}

func (l *fakeLocator) set(dets []face.Detection) {
	l.dets.Store(&dets)
}

func (l *fakeLocator) Detect(context.Context, image.Image) ([]face.Detection, error) {
	return *l.dets.Load(), nil
}

func goodDetections() []face.Detection {
	return []face.Detection{{
		Confidence:  0.97,
		TopLeft:     geometry.Point{X: 100, Y: 60},
		BottomRight: geometry.Point{X: 300, Y: 280},
	}}
}

// fakeClassifier always ranks the first label highest.
type fakeClassifier struct {
	labels []string
}

func (f *fakeClassifier) Name() string      { return "fake" }
func (f *fakeClassifier) TotalClasses() int { return len(f.labels) }
func (f *fakeClassifier) Predict(context.Context, image.Image) ([]classify.Prediction, error) {
	return classify.Normalize([]classify.Prediction{{ClassName: f.labels[0], Probability: 0.9}}, f.labels), nil
}

func testDeps(loc face.Locator) session.Deps {
	cat := catalog.Default()
	return session.Deps{
		Analyzer: session.NewAnalyzer(loc, face.DefaultThresholds(), cat, 0),
		Classifiers: func(_ context.Context, m catalog.Model) (classify.Classifier, error) {
			return &fakeClassifier{labels: cat.Labels(m)}, nil
		},
		Compositor: compositor.New(compositor.NewFSLoader(catalog.Assets())),
		Catalog:    cat,
	}
}

func testTrackerConfig() tracker.Config {
	return tracker.Config{
		Spec: geometry.StickerSpec{
			AssetPath:    constants.LiveStickerAsset,
			ScaleFactor:  constants.LiveScaleFactor,
			YOffsetRatio: constants.LiveYOffsetRatio,
		},
		Thresholds: face.DefaultThresholds(),
	}
}

func locatorLoader(loc face.Locator) tracker.LocatorLoader {
	return func(context.Context) (face.Locator, error) { return loc, nil }
}

// requestWithSession adds a session to the request context
func requestWithSession(r *http.Request, s *session.Session) *http.Request {
	return r.WithContext(middleware.SetSessionInContext(r.Context(), s))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := range 300 {
		for x := range 400 {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return buf.Bytes()
}

// multipartImage builds a multipart body with img as a PNG file in field.
func multipartImage(t *testing.T, field string, img image.Image) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(field, "frame.png")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if err := png.Encode(part, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return body, mw.FormDataContentType()
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}
