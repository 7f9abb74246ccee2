package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/constants"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2-vision:11b"
)

// OllamaClassifier runs a local vision model; usage is tracked for stats only.
type OllamaClassifier struct {
	usageMeter
	baseURL  string
	llmModel string
	client   *http.Client
	model    catalog.Model
	labels   []string
}

func NewOllamaClassifier(baseURL, llmModel string, model catalog.Model, labels []string) *OllamaClassifier {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if llmModel == "" {
		llmModel = defaultOllamaModel
	}
	return &OllamaClassifier{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		llmModel: llmModel,
		client:   &http.Client{},
		model:    model,
		labels:   labels,
	}
}

func (c *OllamaClassifier) Name() string {
	return "ollama"
}

func (c *OllamaClassifier) TotalClasses() int {
	return len(c.labels)
}

// ollamaRequest represents a request to the Ollama chat API
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded images
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// ollamaResponse represents a response from the Ollama chat API
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (c *OllamaClassifier) Predict(ctx context.Context, img image.Image) ([]Prediction, error) {
	resized, err := ResizeImage(img, constants.MaxImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	messages := []ollamaMessage{
		{
			Role:    "system",
			Content: buildPrompt(c.model, c.labels),
		},
		{
			Role:    "user",
			Content: userMessage,
			Images:  []string{base64.StdEncoding.EncodeToString(resized)},
		},
	}

	var lastError error
	var lastResponse string

	for range constants.MaxClassifierRetries {
		resp, err := c.sendRequest(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama API error: %w", ErrClassifierFailure, err)
		}

		c.trackUsage(int64(resp.PromptEvalCount), int64(resp.EvalCount))

		content := resp.Message.Content
		lastResponse = content

		preds, err := parseReply(content, c.labels)
		if err != nil {
			lastError = err
			messages = append(messages,
				ollamaMessage{Role: "assistant", Content: content},
				ollamaMessage{Role: "user", Content: fmt.Sprintf(retryMessage, err)},
			)
			continue
		}

		return preds, nil
	}

	return nil, fmt.Errorf("%w: failed to parse predictions after %d attempts: %w (last response: %s)",
		ErrClassifierFailure, constants.MaxClassifierRetries, lastError, lastResponse)
}

func (c *OllamaClassifier) sendRequest(ctx context.Context, messages []ollamaMessage) (*ollamaResponse, error) {
	reqBody := ollamaRequest{
		Model:    c.llmModel,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options: ollamaOptions{
			NumPredict: 300,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &ollamaResp, nil
}
