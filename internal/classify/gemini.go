package classify

import (
	"context"
	"errors"
	"fmt"
	"image"

	"google.golang.org/genai"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/constants"
)

const geminiModel = "gemini-2.5-flash"

// Gemini 2.5 Flash pricing per 1M tokens
var geminiPricing = RequestPricing{Input: 0.30, Output: 2.50}

type GeminiClassifier struct {
	usageMeter
	client *genai.Client
	model  catalog.Model
	labels []string
}

func NewGeminiClassifier(ctx context.Context, apiKey string, model catalog.Model, labels []string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClassifier{
		usageMeter: usageMeter{pricing: geminiPricing},
		client:     client,
		model:      model,
		labels:     labels,
	}, nil
}

func (c *GeminiClassifier) Name() string {
	return "gemini"
}

func (c *GeminiClassifier) TotalClasses() int {
	return len(c.labels)
}

func (c *GeminiClassifier) Predict(ctx context.Context, img image.Image) ([]Prediction, error) {
	resized, err := ResizeImage(img, constants.MaxImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(c.model, c.labels) + "\n\n" + userMessage},
				{InlineData: &genai.Blob{Data: resized, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range constants.MaxClassifierRetries {
		result, err := c.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("%w: gemini API error: %w", ErrClassifierFailure, err)
		}

		if result.UsageMetadata != nil {
			c.trackUsage(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
		}

		content := result.Text()
		if content == "" {
			return nil, fmt.Errorf("%w: %w", ErrClassifierFailure, errors.New("no response from Gemini"))
		}
		lastResponse = content

		preds, err := parseReply(content, c.labels)
		if err != nil {
			lastError = err
			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: fmt.Sprintf(retryMessage, err)}},
				},
			)
			continue
		}

		return preds, nil
	}

	return nil, fmt.Errorf("%w: failed to parse predictions after %d attempts: %w (last response: %s)",
		ErrClassifierFailure, constants.MaxClassifierRetries, lastError, lastResponse)
}
