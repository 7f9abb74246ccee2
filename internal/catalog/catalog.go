// Package catalog holds the static style recommendations and sticker specs
// keyed by classification label.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/stylemate/internal/geometry"
)

//go:embed assets/styles.yaml
var stylesYAML []byte

//go:embed all:assets/images
var assetFS embed.FS

// Model identifies which classifier a label set belongs to.
type Model string

const (
	ModelFaceShape Model = "face-shape"
	ModelTone      Model = "tone"
)

// ParseModel accepts the model name or its numeric index (1 = face shape, 2 = tone).
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "face-shape", "shape", "1":
		return ModelFaceShape, nil
	case "tone", "personal-tone", "2":
		return ModelTone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// DisplayName is the human title of an analysis model.
func (m Model) DisplayName() string {
	if m == ModelTone {
		return "Personal Tone Analysis"
	}
	return "Face Type Analysis"
}

// Length is a sticker length variant.
type Length string

const (
	Short Length = "Short"
	Long  Length = "Long"
)

// ParseLength normalises "short"/"LONG" etc.
func ParseLength(s string) (Length, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short":
		return Short, nil
	case "long":
		return Long, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLength, s)
}

var (
	ErrUnknownModel    = errors.New("unknown analysis model")
	ErrUnknownCategory = errors.New("unknown style category")
	ErrUnknownLength   = errors.New("unknown style length")
	ErrUnknownTone     = errors.New("unknown tone")
	ErrInvalidStyleKey = errors.New("invalid style key")
)

// Shape is the recommendation record for one face shape.
type Shape struct {
	Name       string `json:"name" yaml:"-"`
	Summary    string `json:"summary" yaml:"summary"`
	ShortText  string `json:"short" yaml:"short"`
	LongText   string `json:"long" yaml:"long"`
	ShortImage string `json:"short_image" yaml:"short_image"`
	LongImage  string `json:"long_image" yaml:"long_image"`
	Stickers   struct {
		Short geometry.StickerSpec `json:"short" yaml:"short"`
		Long  geometry.StickerSpec `json:"long" yaml:"long"`
	} `json:"stickers" yaml:"stickers"`
}

// Sticker returns the sticker spec for a length variant.
func (s *Shape) Sticker(length Length) geometry.StickerSpec {
	if length == Long {
		return s.Stickers.Long
	}
	return s.Stickers.Short
}

// Tone is the recommendation record for one personal colour tone.
type Tone struct {
	Name     string `json:"name" yaml:"-"`
	Summary  string `json:"summary" yaml:"summary"`
	Hair     string `json:"hair" yaml:"hair"`
	Clothing string `json:"clothing" yaml:"clothing"`
	Makeup   string `json:"makeup" yaml:"makeup"`
	Image    string `json:"image" yaml:"image"`
}

// Catalog is an immutable, ordered set of shapes and tones.
type Catalog struct {
	shapes     map[string]*Shape
	tones      map[string]*Tone
	shapeOrder []string
	toneOrder  []string
}

type catalogFile struct {
	Shapes yaml.Node `yaml:"shapes"`
	Tones  yaml.Node `yaml:"tones"`
}

// Parse decodes a catalog YAML document, keeping the declared order of entries.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing style catalog: %w", err)
	}

	c := &Catalog{
		shapes: make(map[string]*Shape),
		tones:  make(map[string]*Tone),
	}

	err := eachEntry(&file.Shapes, func(name string, node *yaml.Node) error {
		var s Shape
		if err := node.Decode(&s); err != nil {
			return fmt.Errorf("shape %s: %w", name, err)
		}
		s.Name = NormalizeLabel(name)
		if s.Stickers.Short.ScaleFactor <= 0 || s.Stickers.Long.ScaleFactor <= 0 {
			return fmt.Errorf("shape %s: sticker scale must be positive", name)
		}
		c.shapes[s.Name] = &s
		c.shapeOrder = append(c.shapeOrder, s.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachEntry(&file.Tones, func(name string, node *yaml.Node) error {
		var t Tone
		if err := node.Decode(&t); err != nil {
			return fmt.Errorf("tone %s: %w", name, err)
		}
		t.Name = NormalizeLabel(name)
		c.tones[t.Name] = &t
		c.toneOrder = append(c.toneOrder, t.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(c.shapes) == 0 {
		return nil, errors.New("style catalog has no shapes")
	}
	return c, nil
}

// eachEntry walks a YAML mapping node in document order.
func eachEntry(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile reads a catalog from disk.
func LoadFile(p string) (*Catalog, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading style catalog: %w", err)
	}
	return Parse(data)
}

var (
	defaultCatalog *Catalog
	defaultOnce    sync.Once
)

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(stylesYAML)
		if err != nil {
			// This is an embedded file so this error should never happen in practice
			panic("failed to parse embedded styles.yaml: " + err.Error())
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Assets returns the embedded asset tree rooted so that "images/x.png" resolves.
func Assets() fs.FS {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// Labels returns the class labels of an analysis model in catalog order.
func (c *Catalog) Labels(m Model) []string {
	if m == ModelTone {
		return append([]string(nil), c.toneOrder...)
	}
	return append([]string(nil), c.shapeOrder...)
}

// Shapes returns all face shapes in catalog order.
func (c *Catalog) Shapes() []*Shape {
	out := make([]*Shape, 0, len(c.shapeOrder))
	for _, name := range c.shapeOrder {
		out = append(out, c.shapes[name])
	}
	return out
}

// Tones returns all tones in catalog order.
func (c *Catalog) Tones() []*Tone {
	out := make([]*Tone, 0, len(c.toneOrder))
	for _, name := range c.toneOrder {
		out = append(out, c.tones[name])
	}
	return out
}

// Shape looks up a face shape by label.
func (c *Catalog) Shape(label string) (*Shape, error) {
	s, ok := c.shapes[NormalizeLabel(label)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, label)
	}
	return s, nil
}

// Tone looks up a tone by label.
func (c *Catalog) Tone(label string) (*Tone, error) {
	t, ok := c.tones[NormalizeLabel(label)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTone, label)
	}
	return t, nil
}

// Sticker returns the sticker spec for a category and length.
func (c *Catalog) Sticker(category string, length Length) (geometry.StickerSpec, error) {
	s, err := c.Shape(category)
	if err != nil {
		return geometry.StickerSpec{}, err
	}
	return s.Sticker(length), nil
}

// ToneSticker returns the tone-tinted variant of a sticker. The tinted asset
// lives next to the base sticker as <category>_<length>_<tone>.png and shares
// its scale and offset.
func (c *Catalog) ToneSticker(category string, length Length, tone string) (geometry.StickerSpec, error) {
	spec, err := c.Sticker(category, length)
	if err != nil {
		return geometry.StickerSpec{}, err
	}
	t, err := c.Tone(tone)
	if err != nil {
		return geometry.StickerSpec{}, err
	}

	dir := path.Dir(spec.AssetPath)
	name := fmt.Sprintf("%s_%s_%s.png",
		strings.ToLower(NormalizeLabel(category)), strings.ToLower(string(length)), strings.ToLower(t.Name))
	spec.AssetPath = path.Join(dir, name)
	return spec, nil
}

// StyleKey formats a style key such as "Oval_Short".
func StyleKey(category string, length Length) string {
	return NormalizeLabel(category) + "_" + string(length)
}

// ParseStyleKey splits "Oval_Short" into its category and length.
func ParseStyleKey(key string) (string, Length, error) {
	i := strings.LastIndex(key, "_")
	if i <= 0 || i == len(key)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidStyleKey, key)
	}
	length, err := ParseLength(key[i+1:])
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidStyleKey, key)
	}
	return NormalizeLabel(key[:i]), length, nil
}

// StyleSpec resolves a style key, optionally tinted by tone, to a sticker spec.
func (c *Catalog) StyleSpec(key, tone string) (geometry.StickerSpec, error) {
	category, length, err := ParseStyleKey(key)
	if err != nil {
		return geometry.StickerSpec{}, err
	}
	if tone != "" {
		return c.ToneSticker(category, length, tone)
	}
	return c.Sticker(category, length)
}
