package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/geometry"
)

type fakeClassifier struct {
	labels []string
	calls  atomic.Int32
}

func (f *fakeClassifier) Name() string      { return "fake" }
func (f *fakeClassifier) TotalClasses() int { return len(f.labels) }
func (f *fakeClassifier) Predict(ctx context.Context, img image.Image) ([]classify.Prediction, error) {
	f.calls.Add(1)
	return classify.Normalize([]classify.Prediction{{ClassName: f.labels[0], Probability: 0.8}}, f.labels), nil
}

func goodFace() []face.Detection {
	return []face.Detection{{
		Confidence:  0.98,
		TopLeft:     geometry.Point{X: 100, Y: 100},
		BottomRight: geometry.Point{X: 300, Y: 350},
	}}
}

type fixture struct {
	session *Session
	deps    Deps
	shape   *fakeClassifier
	tone    *fakeClassifier
	dets    atomic.Pointer[[]face.Detection]
}

func newFixture(t *testing.T, interval time.Duration) *fixture {
	t.Helper()
	cat := catalog.Default()
	f := &fixture{
		shape: &fakeClassifier{labels: cat.Labels(catalog.ModelFaceShape)},
		tone:  &fakeClassifier{labels: cat.Labels(catalog.ModelTone)},
	}
	d := goodFace()
	f.dets.Store(&d)

	locator := face.LocatorFunc(func(context.Context, image.Image) ([]face.Detection, error) {
		return *f.dets.Load(), nil
	})
	deps := Deps{
		Analyzer: NewAnalyzer(locator, face.DefaultThresholds(), cat, interval),
		Classifiers: func(_ context.Context, m catalog.Model) (classify.Classifier, error) {
			if m == catalog.ModelTone {
				return f.tone, nil
			}
			return f.shape, nil
		},
		Compositor: compositor.New(compositor.NewFSLoader(catalog.Assets())),
		Catalog:    cat,
	}
	f.deps = deps
	f.session = New("test", deps)
	return f
}

func (f *fixture) setDetections(d []face.Detection) {
	f.dets.Store(&d)
}

func photo() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 400, 400))
}

func TestSession_UploadAnalyzeComposite(t *testing.T) {
	f := newFixture(t, 0)
	s := f.session

	require.NoError(t, s.Upload(photo()))
	assert.Equal(t, SourceImage, s.State().Source)

	a, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.True(t, a.Classified)
	require.NotNil(t, a.Top)
	assert.Equal(t, "Oval", a.Top.ClassName)
	require.NotNil(t, a.Shape)
	assert.Equal(t, "Oval", a.Shape.Name)
	assert.True(t, s.State().Captured)

	out, err := s.Composite("Oval_Short", "")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 400), out.Bounds())

	_, err = s.Composite("Oval_Long", "warm")
	require.NoError(t, err)

	_, err = s.Composite("Triangle_Short", "")
	assert.ErrorIs(t, err, catalog.ErrUnknownCategory)
}

func TestSession_ModeSwitchInvalidates(t *testing.T) {
	transitions := []struct {
		name string
		fn   func(s *Session) error
	}{
		{"switch source", func(s *Session) error { return s.SwitchSource(SourceWebcam) }},
		{"switch model", func(s *Session) error { return s.SwitchModel(catalog.ModelTone) }},
		{"new upload", func(s *Session) error { return s.Upload(photo()) }},
	}

	for _, tt := range transitions {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			s := f.session
			require.NoError(t, s.Upload(photo()))
			_, err := s.Analyze(context.Background())
			require.NoError(t, err)
			_, err = s.Composite("Oval_Short", "")
			require.NoError(t, err)

			require.NoError(t, tt.fn(s))

			st := s.State()
			assert.False(t, st.Captured)
			assert.Nil(t, st.CapturedBox)
			assert.Nil(t, st.Analysis)

			_, err = s.Composite("Oval_Short", "")
			assert.ErrorIs(t, err, compositor.ErrPreconditionViolation)
		})
	}
}

func TestSession_CompositeBeforeCapture(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.session.Composite("Oval_Short", "")
	assert.ErrorIs(t, err, compositor.ErrPreconditionViolation)
}

func TestSession_PauseResume(t *testing.T) {
	f := newFixture(t, 0)
	s := f.session
	ctx := context.Background()

	assert.ErrorIs(t, s.Pause(), compositor.ErrPreconditionViolation, "nothing observed yet")

	first := photo()
	require.NoError(t, s.Observe(first))
	_, err := s.Analyze(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Pause())
	st := s.State()
	assert.False(t, st.Running)
	assert.True(t, st.Captured)
	require.NotNil(t, st.CapturedBox)
	assert.Same(t, first, s.CapturedFrame())

	assert.ErrorIs(t, s.Observe(photo()), ErrFrozen)
	assert.Same(t, first, s.CapturedFrame(), "paused frame does not change")

	_, err = s.Composite("Heart_Long", "")
	require.NoError(t, err)

	require.NoError(t, s.Resume())
	assert.True(t, s.State().Running)
	_, err = s.Composite("Heart_Long", "")
	assert.ErrorIs(t, err, compositor.ErrPreconditionViolation)
}

func TestSession_PauseReplacesPreviousCapture(t *testing.T) {
	f := newFixture(t, 0)
	s := f.session
	ctx := context.Background()

	a := photo()
	require.NoError(t, s.Observe(a))
	_, err := s.Analyze(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume())

	b := photo()
	require.NoError(t, s.Observe(b))
	require.NoError(t, s.Pause())
	assert.Same(t, b, s.CapturedFrame())
}

func TestSession_AnalyzeWhilePausedUpdatesCapturedBox(t *testing.T) {
	f := newFixture(t, 0)
	s := f.session
	ctx := context.Background()

	require.NoError(t, s.Observe(photo()))
	require.NoError(t, s.Pause())
	assert.Nil(t, s.State().CapturedBox, "no detection before pause")

	_, err := s.Analyze(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.State().CapturedBox)

	_, err = s.Composite("Square_Short", "")
	require.NoError(t, err)
}

func TestSession_DetectionErrors(t *testing.T) {
	tests := []struct {
		name    string
		dets    []face.Detection
		wantErr error
	}{
		{"no face", nil, face.ErrNoFaceDetected},
		{"small face", []face.Detection{{
			Confidence:  0.99,
			TopLeft:     geometry.Point{X: 10, Y: 10},
			BottomRight: geometry.Point{X: 40, Y: 200},
		}}, face.ErrFaceTooSmallOrLowConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			s := f.session
			require.NoError(t, s.Upload(photo()))
			f.setDetections(tt.dets)

			_, err := s.Analyze(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotEmpty(t, Hint(err))
			assert.Equal(t, int32(0), f.shape.calls.Load(), "classifier must not run")

			_, err = s.Composite("Oval_Short", "")
			assert.ErrorIs(t, err, compositor.ErrPreconditionViolation)
		})
	}
}

func TestSession_AnalyzeWithoutFrame(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.session.Analyze(context.Background())
	assert.ErrorIs(t, err, compositor.ErrPreconditionViolation)
}

func TestSession_ModelSelectsClassifier(t *testing.T) {
	f := newFixture(t, 0)
	s := f.session
	require.NoError(t, s.SwitchModel(catalog.ModelTone))
	require.NoError(t, s.Upload(photo()))

	a, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.ModelTone, a.Model)
	require.NotNil(t, a.Tone)
	assert.Equal(t, "Cool", a.Tone.Name)
	assert.Equal(t, int32(1), f.tone.calls.Load())
	assert.Equal(t, int32(0), f.shape.calls.Load())

	assert.Error(t, s.SwitchModel("age"))
	assert.Error(t, s.SwitchSource("screen"))
}

func TestSession_ContinuousClassificationIsRateLimited(t *testing.T) {
	f := newFixture(t, time.Hour)
	s := f.session
	ctx := context.Background()

	require.NoError(t, s.Observe(photo()))
	a, err := s.Analyze(ctx)
	require.NoError(t, err)
	assert.True(t, a.Classified)

	require.NoError(t, s.Observe(photo()))
	a, err = s.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.shape.calls.Load())
	assert.NotEmpty(t, a.Predictions, "previous predictions are kept")

	// explicit analysis on an uploaded image is never limited
	require.NoError(t, s.Upload(photo()))
	a, err = s.Analyze(ctx)
	require.NoError(t, err)
	assert.True(t, a.Classified)
	assert.Equal(t, int32(2), f.shape.calls.Load())
}

func TestSession_ContinuousLimitIsPerSession(t *testing.T) {
	f := newFixture(t, time.Hour)
	other := New("other", f.deps)
	ctx := context.Background()

	for _, s := range []*Session{f.session, other} {
		require.NoError(t, s.Observe(photo()))
		a, err := s.Analyze(ctx)
		require.NoError(t, err)
		assert.True(t, a.Classified, "session %s", s.ID)
		assert.NotEmpty(t, a.Predictions, "session %s", s.ID)
	}
	assert.Equal(t, int32(2), f.shape.calls.Load())

	// each session is still limited on its own
	require.NoError(t, other.Observe(photo()))
	_, err := other.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.shape.calls.Load())
}

func TestAnalyzer_NilLimiterAlwaysClassifies(t *testing.T) {
	f := newFixture(t, time.Hour)
	clf := f.shape
	for range 3 {
		a, err := f.deps.Analyzer.Run(context.Background(), photo(), catalog.ModelFaceShape, clf, nil)
		require.NoError(t, err)
		assert.True(t, a.Classified)
	}
	assert.Equal(t, int32(3), clf.calls.Load())
}

func TestSession_StaleResultDiscarded(t *testing.T) {
	cat := catalog.Default()
	entered := make(chan struct{})
	release := make(chan struct{})
	locator := face.LocatorFunc(func(context.Context, image.Image) ([]face.Detection, error) {
		close(entered)
		<-release
		return goodFace(), nil
	})
	clf := &fakeClassifier{labels: cat.Labels(catalog.ModelFaceShape)}
	s := New("stale", Deps{
		Analyzer:    NewAnalyzer(locator, face.DefaultThresholds(), cat, 0),
		Classifiers: func(context.Context, catalog.Model) (classify.Classifier, error) { return clf, nil },
		Compositor:  compositor.New(compositor.NewFSLoader(catalog.Assets())),
		Catalog:     cat,
	})
	require.NoError(t, s.Upload(photo()))

	errc := make(chan error)
	go func() {
		_, err := s.Analyze(context.Background())
		errc <- err
	}()

	<-entered
	require.NoError(t, s.SwitchModel(catalog.ModelTone))
	close(release)

	assert.ErrorIs(t, <-errc, ErrStaleResult)
	st := s.State()
	assert.Nil(t, st.Analysis)
	assert.False(t, st.Captured)
}

func TestHint(t *testing.T) {
	tests := []struct {
		err   error
		empty bool
	}{
		{nil, true},
		{errors.New("something else"), true},
		{face.ErrNoFaceDetected, false},
		{fmt.Errorf("wrapped: %w", face.ErrFaceTooSmallOrLowConfidence), false},
		{compositor.ErrAssetLoadFailure, false},
		{compositor.ErrPreconditionViolation, false},
		{capture.ErrDeviceAccess, false},
		{capture.ErrDeviceBusy, false},
		{classify.ErrClassifierFailure, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.empty, Hint(tt.err) == "", "Hint(%v)", tt.err)
	}
	assert.NotEqual(t, Hint(face.ErrNoFaceDetected), Hint(face.ErrFaceTooSmallOrLowConfidence))
}
