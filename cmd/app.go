package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io/fs"
	"os"
	"time"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/config"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/session"
)

// loadCatalog returns the embedded catalog or the STYLE_CATALOG override.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Assets.CatalogPath == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(cfg.Assets.CatalogPath)
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// assetFS returns the sticker and display images, from ASSETS_DIR if set.
func assetFS(cfg *config.Config) fs.FS {
	if cfg.Assets.Dir != "" {
		return os.DirFS(cfg.Assets.Dir)
	}
	return catalog.Assets()
}

func thresholds(cfg *config.Config) face.Thresholds {
	return face.Thresholds{
		MinConfidence: cfg.Detection.MinConfidence,
		MinSize:       cfg.Detection.MinFaceSize,
	}
}

// defaultClassifier picks the first backend with credentials.
func defaultClassifier(cfg *config.Config, name string) string {
	if name != "" {
		return name
	}
	return cfg.Classifiers()[0]
}

// classifierProvider builds classifiers of one backend on demand, one per model.
func classifierProvider(cfg *config.Config, name string, cat *catalog.Catalog) session.ClassifierProvider {
	return session.CachedClassifiers(func(ctx context.Context, model catalog.Model) (classify.Classifier, error) {
		return classify.New(ctx, name, cfg, model, cat.Labels(model))
	})
}

// services are the collaborators shared by the commands.
type services struct {
	cfg        *config.Config
	catalog    *catalog.Catalog
	assets     fs.FS
	locator    face.Locator
	compositor *compositor.Compositor
	classifier string
}

func newServices(cfg *config.Config, classifierName string) (*services, error) {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	assets := assetFS(cfg)
	return &services{
		cfg:        cfg,
		catalog:    cat,
		assets:     assets,
		locator:    face.FromURL(cfg.Locator.URL),
		compositor: compositor.New(compositor.NewFSLoader(assets)),
		classifier: defaultClassifier(cfg, classifierName),
	}, nil
}

func (s *services) sessionDeps() session.Deps {
	every := time.Duration(s.cfg.Live.ClassifyEvery * float64(time.Second))
	return session.Deps{
		Analyzer:    session.NewAnalyzer(s.locator, thresholds(s.cfg), s.catalog, every),
		Classifiers: classifierProvider(s.cfg, s.classifier, s.catalog),
		Compositor:  s.compositor,
		Catalog:     s.catalog,
	}
}

// close releases a persistent locator connection.
func (s *services) close() {
	if c, ok := s.locator.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func readImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	img, err := capture.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// printUsage reports metered classifier tokens, if any were used.
func printUsage(clf classify.Classifier) {
	usage, ok := classify.UsageOf(clf)
	if !ok || (usage.InputTokens == 0 && usage.OutputTokens == 0) {
		return
	}
	fmt.Printf("\nAPI Usage (%s):\n", clf.Name())
	fmt.Printf("  Input tokens: %d\n", usage.InputTokens)
	fmt.Printf("  Output tokens: %d\n", usage.OutputTokens)
	fmt.Printf("  Total cost: $%.4f\n", usage.TotalCost)
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
