package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/config"
)

var shapeLabels = []string{"Oval", "Round", "Square", "Heart", "Oblong"}

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNormalize(t *testing.T) {
	raw := []Prediction{
		{ClassName: "round", Probability: 0.2},
		{ClassName: "OVAL", Probability: 0.7},
		{ClassName: "Diamond", Probability: 0.9}, // unknown label
		{ClassName: "Oval", Probability: 0.1},    // duplicate, lower
		{ClassName: "Heart", Probability: 1.4},   // clamped
		{ClassName: "Square", Probability: -0.3}, // clamped
	}

	got := Normalize(raw, shapeLabels)
	require.Len(t, got, len(shapeLabels))

	assert.Equal(t, Prediction{ClassName: "Heart", Probability: 1}, got[0])
	assert.Equal(t, Prediction{ClassName: "Oval", Probability: 0.7}, got[1])
	assert.Equal(t, Prediction{ClassName: "Round", Probability: 0.2}, got[2])
	// ties keep label order
	assert.Equal(t, "Square", got[3].ClassName)
	assert.Equal(t, "Oblong", got[4].ClassName)
	assert.Zero(t, got[4].Probability)
}

func TestNormalize_Empty(t *testing.T) {
	got := Normalize(nil, []string{"Cool", "Warm"})
	require.Len(t, got, 2)
	assert.Equal(t, "Cool", got[0].ClassName)

	top, ok := Top(got)
	assert.True(t, ok)
	assert.Equal(t, "Cool", top.ClassName)

	_, ok = Top(nil)
	assert.False(t, ok)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"Sure! Here it is:\n{\"a\":{\"b\":2}}\nDone.", `{"a":{"b":2}}`},
		{"no json", "no json"},
		{`{"a":`, `{"a":`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractJSON(tt.input))
	}
}

func TestParseReply(t *testing.T) {
	preds, err := parseReply(`{"predictions":[{"className":"Warm","probability":0.8},{"className":"Cool","probability":0.2}]}`, []string{"Cool", "Warm"})
	require.NoError(t, err)
	assert.Equal(t, "Warm", preds[0].ClassName)

	_, err = parseReply(`{"predictions":[]}`, []string{"Cool", "Warm"})
	assert.Error(t, err)

	_, err = parseReply(`{"predictions": [`, []string{"Cool", "Warm"})
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt(catalog.ModelFaceShape, shapeLabels)
	assert.Contains(t, p, "Oval, Round, Square, Heart, Oblong")
	assert.NotContains(t, p, "{{LABELS}}")

	p = buildPrompt(catalog.ModelTone, []string{"Cool", "Warm"})
	assert.Contains(t, p, "Cool, Warm")
	assert.Contains(t, p, "colour")
}

func TestResizeImage(t *testing.T) {
	data, err := ResizeImage(createTestImage(2000, 1000, color.White), 500)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 500, img.Bounds().Dx())
	assert.Equal(t, 250, img.Bounds().Dy())

	data, err = ResizeImage(createTestImage(100, 200, color.Black), 500)
	require.NoError(t, err)
	img, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())

	_, err = ResizeImage(nil, 500)
	assert.Error(t, err)
}

func TestUsageMeter(t *testing.T) {
	m := usageMeter{pricing: RequestPricing{Input: 1, Output: 2}}
	m.trackUsage(1_000_000, 500_000)

	u := m.GetUsage()
	assert.Equal(t, 1_000_000, u.InputTokens)
	assert.Equal(t, 500_000, u.OutputTokens)
	assert.InDelta(t, 2.0, u.TotalCost, 1e-9)

	m.ResetUsage()
	assert.Equal(t, Usage{}, m.GetUsage())
}

func ollamaServer(t *testing.T, replies []string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("expected /api/chat, got %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		n := int(calls.Add(1))
		// every retry appends the bad reply and the parse error
		if want := 2 + 2*(n-1); len(req.Messages) != want {
			t.Errorf("call %d: expected %d messages, got %d", n, want, len(req.Messages))
		}
		if len(req.Messages) > 1 && len(req.Messages[1].Images) != 1 {
			t.Error("expected the image on the first user message")
		}

		content := replies[min(n-1, len(replies)-1)]
		resp := map[string]any{
			"model":             req.Model,
			"message":           map[string]string{"role": "assistant", "content": content},
			"done":              true,
			"prompt_eval_count": 100,
			"eval_count":        20,
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOllamaClassifier_Predict(t *testing.T) {
	var calls atomic.Int32
	server := ollamaServer(t, []string{
		`{"predictions":[{"className":"Oval","probability":0.6},{"className":"Heart","probability":0.3}]}`,
	}, &calls)
	defer server.Close()

	c := NewOllamaClassifier(server.URL, "", catalog.ModelFaceShape, shapeLabels)
	assert.Equal(t, "ollama", c.Name())
	assert.Equal(t, 5, c.TotalClasses())

	preds, err := c.Predict(context.Background(), createTestImage(64, 64, color.White))
	require.NoError(t, err)
	require.Len(t, preds, 5)
	assert.Equal(t, "Oval", preds[0].ClassName)
	assert.Equal(t, "Heart", preds[1].ClassName)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 100, c.GetUsage().InputTokens)
}

func TestOllamaClassifier_RetriesOnBadJSON(t *testing.T) {
	var calls atomic.Int32
	server := ollamaServer(t, []string{
		`{"predictions": [oops`,
		`{"predictions":[{"className":"Warm","probability":0.9}]}`,
	}, &calls)
	defer server.Close()

	c := NewOllamaClassifier(server.URL, "llava", catalog.ModelTone, []string{"Cool", "Warm"})
	preds, err := c.Predict(context.Background(), createTestImage(32, 32, color.White))
	require.NoError(t, err)
	assert.Equal(t, "Warm", preds[0].ClassName)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 200, c.GetUsage().InputTokens)
}

func TestOllamaClassifier_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := ollamaServer(t, []string{`never json`}, &calls)
	defer server.Close()

	c := NewOllamaClassifier(server.URL, "", catalog.ModelTone, []string{"Cool", "Warm"})
	_, err := c.Predict(context.Background(), createTestImage(32, 32, color.White))
	assert.ErrorIs(t, err, ErrClassifierFailure)
	assert.Equal(t, int32(5), calls.Load())
}

func TestOllamaClassifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewOllamaClassifier(server.URL, "", catalog.ModelTone, []string{"Cool", "Warm"})
	_, err := c.Predict(context.Background(), createTestImage(32, 32, color.White))
	assert.True(t, errors.Is(err, ErrClassifierFailure))
	assert.Contains(t, err.Error(), "404")
}

func TestOpenAIClassifier_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "data:image/jpeg;base64,") {
			t.Error("expected an inline JPEG image")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4.1-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"predictions\":[{\"className\":\"Square\",\"probability\":0.8}]}"}
			}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 50, "total_tokens": 1050}
		}`)
	}))
	defer server.Close()

	c := NewOpenAIClassifier("sk-test", catalog.ModelFaceShape, shapeLabels,
		option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))

	preds, err := c.Predict(context.Background(), createTestImage(32, 32, color.White))
	require.NoError(t, err)
	assert.Equal(t, "Square", preds[0].ClassName)
	assert.InDelta(t, 0.8, preds[0].Probability, 1e-9)
	assert.Equal(t, 1000, c.GetUsage().InputTokens)
	assert.Equal(t, 50, c.GetUsage().OutputTokens)
}

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	ctx := context.Background()

	c, err := New(ctx, "ollama", cfg, catalog.ModelTone, []string{"Cool", "Warm"})
	require.NoError(t, err)
	assert.Equal(t, 2, c.TotalClasses())

	_, err = New(ctx, "openai", cfg, catalog.ModelTone, []string{"Cool", "Warm"})
	assert.Error(t, err, "missing token")

	_, err = New(ctx, "gemini", cfg, catalog.ModelTone, []string{"Cool", "Warm"})
	assert.Error(t, err, "missing key")

	_, err = New(ctx, "clip", cfg, catalog.ModelTone, []string{"Cool", "Warm"})
	assert.Error(t, err)

	_, err = New(ctx, "ollama", cfg, catalog.ModelTone, nil)
	assert.Error(t, err)

	cfg.OpenAI.Token = "sk-test"
	c, err = New(ctx, "openai", cfg, catalog.ModelFaceShape, shapeLabels)
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

type unmeteredClassifier struct{}

func (unmeteredClassifier) Name() string      { return "plain" }
func (unmeteredClassifier) TotalClasses() int { return 0 }
func (unmeteredClassifier) Predict(context.Context, image.Image) ([]Prediction, error) {
	return nil, nil
}

func TestUsageOf(t *testing.T) {
	var calls atomic.Int32
	server := ollamaServer(t, []string{
		`{"predictions":[{"className":"Cool","probability":0.7}]}`,
	}, &calls)
	defer server.Close()

	var c Classifier = NewOllamaClassifier(server.URL, "", catalog.ModelTone, []string{"Cool", "Warm"})
	_, err := c.Predict(context.Background(), createTestImage(32, 32, color.White))
	require.NoError(t, err)

	usage, ok := UsageOf(c)
	require.True(t, ok)
	assert.Equal(t, 100, usage.InputTokens)

	_, ok = UsageOf(unmeteredClassifier{})
	assert.False(t, ok)
}
