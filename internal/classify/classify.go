// Package classify scores a face image against a fixed label set using
// vision language models.
package classify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/config"
)

// ErrClassifierFailure wraps backend and reply-format failures.
var ErrClassifierFailure = errors.New("classifier failed")

// Prediction is the probability of one class label.
type Prediction struct {
	ClassName   string  `json:"className"`
	Probability float64 `json:"probability"`
}

// Classifier scores an image against its label set. Predict returns exactly
// one prediction per label, sorted by probability descending.
type Classifier interface {
	Name() string
	Predict(ctx context.Context, img image.Image) ([]Prediction, error)
	TotalClasses() int
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"` // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageMeter is embedded by every backend.
type usageMeter struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (m *usageMeter) trackUsage(inputTokens, outputTokens int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.InputTokens += int(inputTokens)
	m.usage.OutputTokens += int(outputTokens)
	m.usage.TotalCost += float64(inputTokens) / 1_000_000 * m.pricing.Input
	m.usage.TotalCost += float64(outputTokens) / 1_000_000 * m.pricing.Output
}

// GetUsage returns a snapshot of the accumulated usage.
func (m *usageMeter) GetUsage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

func (m *usageMeter) ResetUsage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = Usage{}
}

// UsageReporter is implemented by backends that meter tokens.
type UsageReporter interface {
	GetUsage() Usage
	ResetUsage()
}

// UsageOf returns the usage accumulated by c, if its backend meters tokens.
func UsageOf(c Classifier) (Usage, bool) {
	r, ok := c.(UsageReporter)
	if !ok {
		return Usage{}, false
	}
	return r.GetUsage(), true
}

// Normalize maps raw backend scores onto labels: unknown names are dropped,
// duplicates keep the highest score, missing labels get 0, probabilities are
// clamped to [0, 1] and the result is sorted descending (label order breaks ties).
func Normalize(raw []Prediction, labels []string) []Prediction {
	scores := make(map[string]float64, len(labels))
	for _, p := range raw {
		name := catalog.NormalizeLabel(p.ClassName)
		prob := p.Probability
		if math.IsNaN(prob) {
			prob = 0
		}
		prob = min(max(prob, 0), 1)
		if cur, ok := scores[name]; !ok || prob > cur {
			scores[name] = prob
		}
	}

	out := make([]Prediction, 0, len(labels))
	for _, label := range labels {
		out = append(out, Prediction{ClassName: label, Probability: scores[catalog.NormalizeLabel(label)]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}

// Top returns the most likely prediction, or false for an empty slice.
func Top(preds []Prediction) (Prediction, bool) {
	if len(preds) == 0 {
		return Prediction{}, false
	}
	return preds[0], true
}

// New builds the named backend ("openai", "gemini" or "ollama") for an
// analysis model, labelled from the catalog.
func New(ctx context.Context, name string, cfg *config.Config, model catalog.Model, labels []string) (Classifier, error) {
	if len(labels) == 0 {
		return nil, errors.New("classifier needs at least one label")
	}
	switch name {
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is not set")
		}
		return NewOpenAIClassifier(cfg.OpenAI.Token, model, labels), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is not set")
		}
		return NewGeminiClassifier(ctx, cfg.Gemini.APIKey, model, labels)
	case "ollama":
		return NewOllamaClassifier(cfg.Ollama.URL, cfg.Ollama.Model, model, labels), nil
	}
	return nil, fmt.Errorf("unknown classifier %q", name)
}
