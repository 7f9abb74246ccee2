package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/kozaktomas/stylemate/internal/constants"
)

type Config struct {
	Locator   LocatorConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	Detection DetectionConfig
	Live      LiveConfig
	Camera    CameraConfig
	Assets    AssetsConfig
	Web       WebConfig
	Log       LogConfig
}

// LocatorConfig selects the face locator backend.
// An http(s) URL uses the multipart face endpoint, a ws(s) URL the websocket detector.
type LocatorConfig struct {
	URL string // defaults to http://localhost:8000
}

// Kind returns "ws" for websocket URLs and "http" otherwise.
func (c *LocatorConfig) Kind() string {
	if strings.HasPrefix(c.URL, "ws://") || strings.HasPrefix(c.URL, "wss://") {
		return "ws"
	}
	return "http"
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

// DetectionConfig holds the usable-face thresholds.
type DetectionConfig struct {
	MinConfidence float64
	MinFaceSize   float64
}

// LiveConfig holds the sticker used by the live try-on tracker.
type LiveConfig struct {
	StickerAsset string
	ScaleFactor  float64
	YOffsetRatio float64
	Mirror       bool
	// ClassifyEvery limits classifier calls in the continuous analysis loop (seconds).
	ClassifyEvery float64
}

type CameraConfig struct {
	Device string
	FPS    int
	Width  int
	Height int
}

// AssetsConfig points to the sticker and display images.
// An empty Dir serves the assets embedded in the binary.
type AssetsConfig struct {
	Dir         string
	CatalogPath string // optional override of the embedded style catalog
}

type WebConfig struct {
	Host          string
	Port          int
	SessionSecret string
	// AllowedOrigins are extra CORS origins; localhost is always allowed.
	AllowedOrigins []string
}

type LogConfig struct {
	Level string
	File  string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a bool.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Locator: LocatorConfig{
			URL: envString("FACE_LOCATOR_URL", "http://localhost:8000"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Detection: DetectionConfig{
			MinConfidence: envFloat("FACE_MIN_CONFIDENCE", constants.FaceDetectionThreshold),
			MinFaceSize:   envFloat("FACE_MIN_SIZE", constants.MinFaceSize),
		},
		Live: LiveConfig{
			StickerAsset:  envString("LIVE_STICKER", constants.LiveStickerAsset),
			ScaleFactor:   envFloat("LIVE_SCALE_FACTOR", constants.LiveScaleFactor),
			YOffsetRatio:  envFloat("LIVE_Y_OFFSET_RATIO", constants.LiveYOffsetRatio),
			Mirror:        envBool("LIVE_MIRROR", true),
			ClassifyEvery: envFloat("CLASSIFY_EVERY_SECONDS", 1),
		},
		Camera: CameraConfig{
			Device: envString("CAMERA_DEVICE", "/dev/video0"),
			FPS:    envInt("CAMERA_FPS", constants.DefaultCameraFPS),
			Width:  envInt("CAMERA_WIDTH", constants.DefaultCameraWidth),
			Height: envInt("CAMERA_HEIGHT", constants.DefaultCameraHeight),
		},
		Assets: AssetsConfig{
			Dir:         os.Getenv("ASSETS_DIR"),
			CatalogPath: os.Getenv("STYLE_CATALOG"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}
}

// Classifiers lists the classifier backends that have credentials configured.
// Ollama is always listed because it runs locally without a key.
func (c *Config) Classifiers() []string {
	var names []string
	if c.OpenAI.Token != "" {
		names = append(names, "openai")
	}
	if c.Gemini.APIKey != "" {
		names = append(names, "gemini")
	}
	names = append(names, "ollama")
	return names
}
