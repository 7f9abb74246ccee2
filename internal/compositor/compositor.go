// Package compositor draws hairstyle stickers onto a captured frame.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/stylemate/internal/constants"
	"github.com/kozaktomas/stylemate/internal/geometry"
)

var (
	// ErrAssetLoadFailure means the sticker could not be loaded; nothing was rendered.
	ErrAssetLoadFailure = errors.New("sticker asset failed to load")
	// ErrPreconditionViolation means the compositor was called without a usable frame or box.
	ErrPreconditionViolation = errors.New("compositor precondition violated")
)

// Compositor renders sticker composites. It is safe for concurrent use when
// its loader is.
type Compositor struct {
	loader AssetLoader
}

func New(loader AssetLoader) *Compositor {
	return &Compositor{loader: loader}
}

// Place loads the sticker and returns where it would be drawn for box.
func (c *Compositor) Place(box geometry.BoundingBox, spec geometry.StickerSpec) (geometry.Placement, error) {
	sticker, err := c.loader.Load(spec.AssetPath)
	if err != nil {
		return geometry.Placement{}, err
	}
	size := sticker.Bounds().Size()
	p, err := geometry.ComputePlacement(box, spec, size.X, size.Y)
	if err != nil {
		return geometry.Placement{}, fmt.Errorf("%w: %w", ErrPreconditionViolation, err)
	}
	return p, nil
}

// Composite draws frame at full size onto a new surface and the sticker into
// the placement computed for box. Box coordinates are relative to the frame's
// top-left corner. The inputs are never modified.
func (c *Compositor) Composite(frame image.Image, box *geometry.BoundingBox, spec geometry.StickerSpec) (*image.RGBA, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, fmt.Errorf("%w: no frame", ErrPreconditionViolation)
	}
	if box == nil {
		return nil, fmt.Errorf("%w: no face box", ErrPreconditionViolation)
	}
	if !box.Valid() || box.Width() == 0 || box.Height() == 0 {
		return nil, fmt.Errorf("%w: degenerate face box %s", ErrPreconditionViolation, box)
	}

	sticker, err := c.loader.Load(spec.AssetPath)
	if err != nil {
		if !errors.Is(err, ErrAssetLoadFailure) {
			err = fmt.Errorf("%w: %w", ErrAssetLoadFailure, err)
		}
		return nil, err
	}

	sb := sticker.Bounds()
	placement, err := geometry.ComputePlacement(*box, spec, sb.Dx(), sb.Dy())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreconditionViolation, err)
	}

	fb := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, fb.Dx(), fb.Dy()))
	draw.Draw(out, out.Bounds(), frame, fb.Min, draw.Src)

	if dr := placement.Rect(); !dr.Empty() {
		// Scale clips to out's bounds, so stickers may hang off the frame edge.
		draw.CatmullRom.Scale(out, dr, sticker, sb, draw.Over, nil)
	}

	return out, nil
}

// Variant is one named sticker to render in CompositeAll.
type Variant struct {
	Name string
	Spec geometry.StickerSpec
}

// Rendered is the output of one variant.
type Rendered struct {
	Name  string
	Image *image.RGBA
}

// CompositeAll renders every variant concurrently. Results keep the variant
// order; the first failure cancels the rest. onDone, if set, is called after
// each successful render.
func (c *Compositor) CompositeAll(ctx context.Context, frame image.Image, box *geometry.BoundingBox, variants []Variant, onDone func(name string)) ([]Rendered, error) {
	out := make([]Rendered, len(variants))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, v := range variants {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			img, err := c.Composite(frame, box, v.Spec)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.Name, err)
			}
			out[i] = Rendered{Name: v.Name, Image: img}
			if onDone != nil {
				onDone(v.Name)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// ExportFilename returns "<product>_<label>_<YYYYMMDD>.png".
func ExportFilename(product, label string, at time.Time) string {
	if product == "" {
		product = constants.ProductName
	}
	return fmt.Sprintf("%s_%s_%s.png", product, label, at.Format(constants.ExportDateLayout))
}
