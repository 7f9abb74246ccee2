package handlers

import (
	"net/http"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config     *config.Config
	classifier string
}

// NewConfigHandler creates a new config handler. classifier names the
// backend the server analyses with.
func NewConfigHandler(cfg *config.Config, classifier string) *ConfigHandler {
	return &ConfigHandler{
		config:     cfg,
		classifier: classifier,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Classifiers []ProviderInfo `json:"classifiers"`
	Classifier  string         `json:"classifier"`
	Locator     string         `json:"locator"`
	Models      []ModelInfo    `json:"models"`
	Detection   DetectionInfo  `json:"detection"`
	Live        LiveInfo       `json:"live"`
}

// ProviderInfo represents information about a classifier backend
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// ModelInfo describes an analysis model.
type ModelInfo struct {
	ID   catalog.Model `json:"id"`
	Name string        `json:"name"`
}

// DetectionInfo exposes the usable-face thresholds.
type DetectionInfo struct {
	MinConfidence float64 `json:"min_confidence"`
	MinFaceSize   float64 `json:"min_face_size"`
}

// LiveInfo exposes the live try-on sticker settings.
type LiveInfo struct {
	Sticker      string  `json:"sticker"`
	ScaleFactor  float64 `json:"scale_factor"`
	YOffsetRatio float64 `json:"y_offset_ratio"`
	Mirror       bool    `json:"mirror"`
}

// Get returns the available configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	providers := []ProviderInfo{
		{
			Name:      "openai",
			Available: h.config.OpenAI.Token != "",
		},
		{
			Name:      "gemini",
			Available: h.config.Gemini.APIKey != "",
		},
		{
			Name:      "ollama",
			Available: true, // Always available (local)
		},
	}

	response := ConfigResponse{
		Classifiers: providers,
		Classifier:  h.classifier,
		Locator:     h.config.Locator.Kind(),
		Models: []ModelInfo{
			{ID: catalog.ModelFaceShape, Name: catalog.ModelFaceShape.DisplayName()},
			{ID: catalog.ModelTone, Name: catalog.ModelTone.DisplayName()},
		},
		Detection: DetectionInfo{
			MinConfidence: h.config.Detection.MinConfidence,
			MinFaceSize:   h.config.Detection.MinFaceSize,
		},
		Live: LiveInfo{
			Sticker:      h.config.Live.StickerAsset,
			ScaleFactor:  h.config.Live.ScaleFactor,
			YOffsetRatio: h.config.Live.YOffsetRatio,
			Mirror:       h.config.Live.Mirror,
		},
	}

	respondJSON(w, http.StatusOK, response)
}
