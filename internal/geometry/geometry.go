// Package geometry holds the face box and sticker placement math.
// All coordinates are pixels in the source frame, origin at the top-left.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// Point is a pixel position in frame space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned face rectangle given by its corners.
type BoundingBox struct {
	TopLeft     Point `json:"top_left"`
	BottomRight Point `json:"bottom_right"`
}

// NewBoundingBox builds a box from [x1, y1, x2, y2] corner coordinates.
func NewBoundingBox(x1, y1, x2, y2 float64) BoundingBox {
	return BoundingBox{
		TopLeft:     Point{X: x1, Y: y1},
		BottomRight: Point{X: x2, Y: y2},
	}
}

// Width returns bottomRight.x - topLeft.x.
func (b BoundingBox) Width() float64 {
	return b.BottomRight.X - b.TopLeft.X
}

// Height returns bottomRight.y - topLeft.y.
func (b BoundingBox) Height() float64 {
	return b.BottomRight.Y - b.TopLeft.Y
}

// Area returns the box area, or 0 for an inverted box.
func (b BoundingBox) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Center returns the centre point of the box.
func (b BoundingBox) Center() Point {
	return Point{
		X: b.TopLeft.X + b.Width()/2,
		Y: b.TopLeft.Y + b.Height()/2,
	}
}

// Valid reports whether both extents are non-negative and finite.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.TopLeft.X, b.TopLeft.Y, b.BottomRight.X, b.BottomRight.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Width() >= 0 && b.Height() >= 0
}

// MeetsMinimum reports whether both sides are at least minSize pixels.
func (b BoundingBox) MeetsMinimum(minSize float64) bool {
	return b.Valid() && b.Width() >= minSize && b.Height() >= minSize
}

// Corners returns the box as [x1, y1, x2, y2].
func (b BoundingBox) Corners() []float64 {
	return []float64{b.TopLeft.X, b.TopLeft.Y, b.BottomRight.X, b.BottomRight.Y}
}

// Rect rounds the box to an integer image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.TopLeft.X)),
		int(math.Round(b.TopLeft.Y)),
		int(math.Round(b.BottomRight.X)),
		int(math.Round(b.BottomRight.Y)),
	)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", b.TopLeft.X, b.TopLeft.Y, b.BottomRight.X, b.BottomRight.Y)
}

// MirrorBox flips a box horizontally inside a frame of the given width.
// Front-camera previews are shown mirrored; detections are always reported
// in unmirrored frame space and only mirrored for presentation.
func MirrorBox(b BoundingBox, frameWidth float64) BoundingBox {
	return BoundingBox{
		TopLeft:     Point{X: frameWidth - b.BottomRight.X, Y: b.TopLeft.Y},
		BottomRight: Point{X: frameWidth - b.TopLeft.X, Y: b.BottomRight.Y},
	}
}

// ComputeIoU calculates Intersection over Union between two bounding boxes.
func ComputeIoU(a, b BoundingBox) float64 {
	x1 := max(a.TopLeft.X, b.TopLeft.X)
	y1 := max(a.TopLeft.Y, b.TopLeft.Y)
	x2 := min(a.BottomRight.X, b.BottomRight.X)
	y2 := min(a.BottomRight.Y, b.BottomRight.Y)

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// StickerSpec describes how one sticker asset is sized and positioned on a face.
// ScaleFactor multiplies face width to get sticker width. YOffsetRatio
// multiplies face width to shift the sticker from the face's top edge;
// negative values move it up.
type StickerSpec struct {
	AssetPath    string  `json:"asset_path" yaml:"asset"`
	ScaleFactor  float64 `json:"scale_factor" yaml:"scale"`
	YOffsetRatio float64 `json:"y_offset_ratio" yaml:"y_offset"`
}

// Placement is the rectangle a sticker is drawn into.
type Placement struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect rounds the placement to an integer image.Rectangle.
func (p Placement) Rect() image.Rectangle {
	x0 := int(math.Round(p.X))
	y0 := int(math.Round(p.Y))
	return image.Rect(x0, y0, x0+int(math.Round(p.Width)), y0+int(math.Round(p.Height)))
}

// Placement errors.
var (
	ErrInvalidBox        = errors.New("invalid bounding box")
	ErrInvalidScale      = errors.New("sticker scale factor must be positive")
	ErrInvalidNativeSize = errors.New("sticker native size must be positive")
)

// ComputePlacement maps a face box to the sticker draw rectangle.
//
//	width  = box.Width * ScaleFactor
//	height = width * nativeHeight / nativeWidth
//	x      = box.X + (box.Width - width) / 2
//	y      = box.Y + box.Width * YOffsetRatio
//
// The vertical offset is scaled by face width, not height.
func ComputePlacement(box BoundingBox, spec StickerSpec, nativeWidth, nativeHeight int) (Placement, error) {
	if !box.Valid() {
		return Placement{}, fmt.Errorf("%w: %s", ErrInvalidBox, box)
	}
	if spec.ScaleFactor <= 0 || math.IsNaN(spec.ScaleFactor) || math.IsInf(spec.ScaleFactor, 0) {
		return Placement{}, fmt.Errorf("%w: %v", ErrInvalidScale, spec.ScaleFactor)
	}
	if nativeWidth <= 0 || nativeHeight <= 0 {
		return Placement{}, fmt.Errorf("%w: %dx%d", ErrInvalidNativeSize, nativeWidth, nativeHeight)
	}

	faceWidth := box.Width()
	width := faceWidth * spec.ScaleFactor
	height := width * (float64(nativeHeight) / float64(nativeWidth))

	return Placement{
		X:      box.TopLeft.X + (faceWidth-width)/2,
		Y:      box.TopLeft.Y + faceWidth*spec.YOffsetRatio,
		Width:  width,
		Height: height,
	}, nil
}
