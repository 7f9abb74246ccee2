package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/config"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/geometry"
)

var compositeCmd = &cobra.Command{
	Use:   "composite",
	Short: "Composite a hairstyle sticker onto a photo",
	Long: `Detect the face in a photo and draw a hairstyle sticker onto it.

Without --style the face shape is classified first and its short style is used.
With --all every length and tone variant of the category is rendered.

Examples:
  stylemate composite --image me.jpg --style Oval_Short
  stylemate composite --image me.jpg --style Heart_Long --tone warm --out heart.png
  stylemate composite --image me.jpg --style Round --all --out ./styles`,
	RunE: runComposite,
}

func init() {
	rootCmd.AddCommand(compositeCmd)

	compositeCmd.Flags().String("image", "", "Photo to composite onto (required)")
	compositeCmd.Flags().String("style", "", "Style key such as Oval_Short, or a category with --all")
	compositeCmd.Flags().String("tone", "", "Tone tint of the sticker: cool or warm")
	compositeCmd.Flags().String("out", "", "Output file, or directory with --all (default: generated name in the current directory)")
	compositeCmd.Flags().Bool("all", false, "Render every length and tone variant of the category")
	compositeCmd.Flags().String("classifier", "", "Classifier backend used when --style is empty")
	_ = compositeCmd.MarkFlagRequired("image")
}

// detectFace locates the usable face in img.
func detectFace(ctx context.Context, loc face.Locator, th face.Thresholds, img image.Image) (geometry.BoundingBox, error) {
	dets, err := loc.Detect(ctx, img)
	if err != nil {
		return geometry.BoundingBox{}, err
	}
	_, box, err := face.Select(dets, th)
	if err != nil {
		return geometry.BoundingBox{}, withHint(err)
	}
	return box, nil
}

// classifyShape returns the most likely face shape of img.
func classifyShape(ctx context.Context, cfg *config.Config, name string, cat *catalog.Catalog, img image.Image) (classify.Prediction, error) {
	clf, err := classify.New(ctx, name, cfg, catalog.ModelFaceShape, cat.Labels(catalog.ModelFaceShape))
	if err != nil {
		return classify.Prediction{}, err
	}
	preds, err := clf.Predict(ctx, img)
	if err != nil {
		return classify.Prediction{}, err
	}
	printUsage(clf)
	top, ok := classify.Top(preds)
	if !ok {
		return classify.Prediction{}, errors.New("classifier returned no predictions")
	}
	return top, nil
}

// styleVariants lists both lengths of a category plus every tone tint of each.
func styleVariants(cat *catalog.Catalog, category string) ([]compositor.Variant, error) {
	var variants []compositor.Variant
	for _, length := range []catalog.Length{catalog.Short, catalog.Long} {
		key := catalog.StyleKey(category, length)
		spec, err := cat.Sticker(category, length)
		if err != nil {
			return nil, err
		}
		variants = append(variants, compositor.Variant{Name: key, Spec: spec})

		for _, tone := range cat.Tones() {
			spec, err := cat.ToneSticker(category, length, tone.Name)
			if err != nil {
				return nil, err
			}
			variants = append(variants, compositor.Variant{Name: key + "_" + tone.Name, Spec: spec})
		}
	}
	return variants, nil
}

// styleCategory accepts "Oval_Short" or "Oval".
func styleCategory(style string) string {
	if category, _, err := catalog.ParseStyleKey(style); err == nil {
		return category
	}
	return catalog.NormalizeLabel(style)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // output path chosen by the user
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := compositor.EncodePNG(f, img); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func runComposite(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	style := mustGetString(cmd, "style")
	tone := mustGetString(cmd, "tone")
	out := mustGetString(cmd, "out")
	all := mustGetBool(cmd, "all")

	svc, err := newServices(cfg, mustGetString(cmd, "classifier"))
	if err != nil {
		return err
	}
	defer svc.close()

	img, err := readImage(mustGetString(cmd, "image"))
	if err != nil {
		return err
	}

	box, err := detectFace(ctx, svc.locator, thresholds(cfg), img)
	if err != nil {
		return err
	}
	fmt.Printf("Face at (%.0f, %.0f) size %.0fx%.0f\n", box.TopLeft.X, box.TopLeft.Y, box.Width(), box.Height())

	if style == "" {
		top, err := classifyShape(ctx, cfg, svc.classifier, svc.catalog, img)
		if err != nil {
			return fmt.Errorf("classifying face shape: %w", err)
		}
		fmt.Printf("Face shape: %s (%.0f%%)\n", top.ClassName, top.Probability*100)
		style = catalog.StyleKey(top.ClassName, catalog.Short)
	}

	now := time.Now()

	if all {
		return compositeAll(ctx, svc, img, &box, styleCategory(style), out, now)
	}

	spec, err := svc.catalog.StyleSpec(style, tone)
	if err != nil {
		return err
	}
	result, err := svc.compositor.Composite(img, &box, spec)
	if err != nil {
		return err
	}

	label := style
	if tone != "" {
		label += "_" + catalog.NormalizeLabel(tone)
	}
	if out == "" {
		out = compositor.ExportFilename("", label, now)
	}
	if err := writePNG(out, result); err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", out)
	return nil
}

func compositeAll(ctx context.Context, svc *services, img image.Image, box *geometry.BoundingBox, category, dir string, now time.Time) error {
	variants, err := styleVariants(svc.catalog, category)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	bar := progressbar.NewOptions(len(variants),
		progressbar.OptionSetDescription("Compositing "+category),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("styles"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	rendered, err := svc.compositor.CompositeAll(ctx, img, box, variants, func(string) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	var saved []string
	for _, r := range rendered {
		path := filepath.Join(dir, compositor.ExportFilename("", r.Name, now))
		if err := writePNG(path, r.Image); err != nil {
			return err
		}
		saved = append(saved, path)
	}
	fmt.Printf("\nSaved %d images:\n  %s\n", len(saved), strings.Join(saved, "\n  "))
	return nil
}
