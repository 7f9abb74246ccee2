package classify

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kozaktomas/stylemate/internal/catalog"
)

//go:embed prompts/face_shape.txt
var faceShapePrompt string

//go:embed prompts/tone.txt
var tonePrompt string

// buildPrompt returns the system prompt for a model with its label list filled in.
func buildPrompt(model catalog.Model, labels []string) string {
	base := faceShapePrompt
	if model == catalog.ModelTone {
		base = tonePrompt
	}
	return strings.ReplaceAll(base, "{{LABELS}}", strings.Join(labels, ", "))
}

const userMessage = "Classify the person in this photo. Respond with JSON only."

const retryMessage = "JSON parse error: %v. Please fix the JSON and try again. Output ONLY valid JSON, no other text."

// reply is the JSON document every backend is asked to produce.
type reply struct {
	Predictions []Prediction `json:"predictions"`
}

// parseReply decodes a model reply and normalises it against labels.
func parseReply(content string, labels []string) ([]Prediction, error) {
	var r reply
	if err := json.Unmarshal([]byte(extractJSON(content)), &r); err != nil {
		return nil, err
	}
	if len(r.Predictions) == 0 {
		return nil, fmt.Errorf("reply has no predictions")
	}
	return Normalize(r.Predictions, labels), nil
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return content[start:]
}
