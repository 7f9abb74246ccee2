package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/stylemate/internal/constants"
	"github.com/kozaktomas/stylemate/internal/geometry"
)

const defaultLocatorURL = "http://localhost:8000"

// HTTPLocator calls an InsightFace-style face endpoint over HTTP.
type HTTPLocator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLocator creates a locator for the server at baseURL.
func NewHTTPLocator(baseURL string) *HTTPLocator {
	if baseURL == "" {
		baseURL = defaultLocatorURL
	}
	return &HTTPLocator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// faceDetection is a single face in the server response.
type faceDetection struct {
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64   `json:"det_score"`
}

type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Detect posts the frame as JPEG to /embed/face.
func (l *HTTPLocator) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	data, err := encodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	body, err := l.postMultipartImage(ctx, "/embed/face", data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocatorFailure, err)
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %w", ErrLocatorFailure, err)
	}

	dets := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		dets = append(dets, Detection{
			Confidence:  f.DetScore,
			TopLeft:     geometry.Point{X: f.BBox[0], Y: f.BBox[1]},
			BottomRight: geometry.Point{X: f.BBox[2], Y: f.BBox[3]},
		})
	}
	return dedupe(dets, constants.DuplicateFaceIoU), nil
}

func (l *HTTPLocator) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.client.Do(req)
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

	return body, nil
}
