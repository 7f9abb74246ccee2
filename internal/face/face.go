// Package face defines the face locator contract and its adapters.
package face

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"strings"

	"github.com/kozaktomas/stylemate/internal/constants"
	"github.com/kozaktomas/stylemate/internal/geometry"
)

// Detection quality errors. Both mean "no usable face" for the current frame.
var (
	ErrNoFaceDetected              = errors.New("no face detected")
	ErrFaceTooSmallOrLowConfidence = errors.New("face too small or low confidence")
)

// ErrLocatorFailure wraps transport and protocol failures of a locator backend.
var ErrLocatorFailure = errors.New("face locator failed")

// Detection is one face reported by a locator, in unmirrored frame pixels.
type Detection struct {
	Confidence  float64        `json:"confidence"`
	TopLeft     geometry.Point `json:"top_left"`
	BottomRight geometry.Point `json:"bottom_right"`
	// Rotation is the in-plane head roll in radians, when the backend reports it.
	Rotation *float64 `json:"rotation,omitempty"`
}

// Box returns the detection as a bounding box.
func (d Detection) Box() geometry.BoundingBox {
	return geometry.BoundingBox{TopLeft: d.TopLeft, BottomRight: d.BottomRight}
}

// RotationDegrees returns the roll in degrees, or 0 when unknown.
func (d Detection) RotationDegrees() float64 {
	if d.Rotation == nil {
		return 0
	}
	return *d.Rotation * 180 / math.Pi
}

// Locator finds faces in a frame. Results are in the provider's ranking order
// and the first element is treated as the face.
type Locator interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, frame image.Image) ([]Detection, error)

func (f LocatorFunc) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	return f(ctx, frame)
}

// Thresholds decide whether a detection is usable.
type Thresholds struct {
	MinConfidence float64
	MinSize       float64
}

// DefaultThresholds returns the stock confidence and size limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence: constants.FaceDetectionThreshold,
		MinSize:       constants.MinFaceSize,
	}
}

// Select picks the first detection and checks it against the thresholds.
func Select(dets []Detection, th Thresholds) (Detection, geometry.BoundingBox, error) {
	if len(dets) == 0 {
		return Detection{}, geometry.BoundingBox{}, ErrNoFaceDetected
	}

	d := dets[0]
	box := d.Box()
	if d.Confidence < th.MinConfidence || math.IsNaN(d.Confidence) {
		return d, box, fmt.Errorf("%w: confidence %.2f below %.2f", ErrFaceTooSmallOrLowConfidence, d.Confidence, th.MinConfidence)
	}
	if !box.MeetsMinimum(th.MinSize) {
		return d, box, fmt.Errorf("%w: %.0fx%.0f below %.0fpx", ErrFaceTooSmallOrLowConfidence, box.Width(), box.Height(), th.MinSize)
	}
	return d, box, nil
}

// IsDetectionError reports whether err is one of the "no usable face" outcomes.
func IsDetectionError(err error) bool {
	return errors.Is(err, ErrNoFaceDetected) || errors.Is(err, ErrFaceTooSmallOrLowConfidence)
}

// dedupe drops detections overlapping an earlier one by more than maxIoU,
// keeping provider order.
func dedupe(dets []Detection, maxIoU float64) []Detection {
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		dup := false
		for _, k := range kept {
			if geometry.ComputeIoU(d.Box(), k.Box()) > maxIoU {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, d)
		}
	}
	return kept
}

func encodeJPEG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty frame")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// FromURL returns a websocket locator for ws:// and wss:// URLs and an HTTP
// locator otherwise.
func FromURL(url string) Locator {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return NewWSLocator(url)
	}
	return NewHTTPLocator(url)
}
