package classify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/constants"
)

const chatModel = openai.ChatModelGPT4_1Mini

// GPT-4.1-mini pricing per 1M tokens
var openAIPricing = RequestPricing{Input: 0.40, Output: 1.60}

type OpenAIClassifier struct {
	usageMeter
	client *openai.Client
	model  catalog.Model
	labels []string
}

// NewOpenAIClassifier creates an OpenAI backed classifier. Extra request
// options (e.g. option.WithBaseURL) are passed to the client.
func NewOpenAIClassifier(apiKey string, model catalog.Model, labels []string, opts ...option.RequestOption) *OpenAIClassifier {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIClassifier{
		usageMeter: usageMeter{pricing: openAIPricing},
		client:     &client,
		model:      model,
		labels:     labels,
	}
}

func (c *OpenAIClassifier) Name() string {
	return "openai"
}

func (c *OpenAIClassifier) TotalClasses() int {
	return len(c.labels)
}

func (c *OpenAIClassifier) Predict(ctx context.Context, img image.Image) ([]Prediction, error) {
	resized, err := ResizeImage(img, constants.MaxImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(buildPrompt(c.model, c.labels)),
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart(userMessage),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    imageURL,
							Detail: "low",
						}),
					},
				},
			},
		},
	}

	var lastError error
	var lastResponse string

	for range constants.MaxClassifierRetries {
		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    chatModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(300),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: OpenAI API error: %w", ErrClassifierFailure, err)
		}

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%w: %w", ErrClassifierFailure, errors.New("no response from OpenAI"))
		}

		if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
			c.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}

		content := resp.Choices[0].Message.Content
		lastResponse = content

		preds, err := parseReply(content, c.labels)
		if err != nil {
			lastError = err
			messages = append(messages,
				openai.AssistantMessage(content),
				openai.UserMessage(fmt.Sprintf(retryMessage, err)),
			)
			continue
		}

		return preds, nil
	}

	return nil, fmt.Errorf("%w: failed to parse predictions after %d attempts: %w (last response: %s)",
		ErrClassifierFailure, constants.MaxClassifierRetries, lastError, lastResponse)
}
