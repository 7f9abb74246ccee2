package catalog

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ShapesAndTones(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"Oval", "Round", "Square", "Heart", "Oblong"}, c.Labels(ModelFaceShape))
	assert.Equal(t, []string{"Cool", "Warm"}, c.Labels(ModelTone))
	assert.Len(t, c.Shapes(), 5)
	assert.Len(t, c.Tones(), 2)
}

func TestDefault_AssetsExist(t *testing.T) {
	c := Default()
	assets := Assets()

	for _, s := range c.Shapes() {
		for _, p := range []string{s.ShortImage, s.LongImage, s.Stickers.Short.AssetPath, s.Stickers.Long.AssetPath} {
			_, err := fs.Stat(assets, p)
			assert.NoError(t, err, "shape %s asset %s", s.Name, p)
		}
		for _, tone := range c.Tones() {
			for _, l := range []Length{Short, Long} {
				spec, err := c.ToneSticker(s.Name, l, tone.Name)
				require.NoError(t, err)
				_, err = fs.Stat(assets, spec.AssetPath)
				assert.NoError(t, err, "tone sticker %s", spec.AssetPath)
			}
		}
	}
	for _, tone := range c.Tones() {
		_, err := fs.Stat(assets, tone.Image)
		assert.NoError(t, err, "tone image %s", tone.Image)
	}
}

func TestSticker_CatalogValues(t *testing.T) {
	c := Default()

	spec, err := c.Sticker("Oval", Short)
	require.NoError(t, err)
	assert.Equal(t, "images/oval_short_sticker.png", spec.AssetPath)
	assert.InDelta(t, 1.15, spec.ScaleFactor, 1e-9)
	assert.InDelta(t, -0.45, spec.YOffsetRatio, 1e-9)

	spec, err = c.Sticker("oval", Long)
	require.NoError(t, err)
	assert.Equal(t, "images/oval_long_sticker.png", spec.AssetPath)
	assert.InDelta(t, 1.5, spec.ScaleFactor, 1e-9)
}

func TestShape_NormalizedLookup(t *testing.T) {
	c := Default()
	for _, label := range []string{"Oval", "oval", "OVAL", "  Ovál "} {
		s, err := c.Shape(label)
		require.NoError(t, err, label)
		assert.Equal(t, "Oval", s.Name)
	}

	_, err := c.Shape("Diamond")
	assert.True(t, errors.Is(err, ErrUnknownCategory))
}

func TestToneSticker(t *testing.T) {
	c := Default()

	spec, err := c.ToneSticker("Round", Long, "warm")
	require.NoError(t, err)
	assert.Equal(t, "images/round_long_warm.png", spec.AssetPath)

	base, _ := c.Sticker("Round", Long)
	assert.Equal(t, base.ScaleFactor, spec.ScaleFactor)
	assert.Equal(t, base.YOffsetRatio, spec.YOffsetRatio)

	_, err = c.ToneSticker("Round", Long, "Neutral")
	assert.True(t, errors.Is(err, ErrUnknownTone))
}

func TestParseStyleKey(t *testing.T) {
	tests := []struct {
		key      string
		category string
		length   Length
		wantErr  bool
	}{
		{"Oval_Short", "Oval", Short, false},
		{"heart_long", "Heart", Long, false},
		{"Oblong_LONG", "Oblong", Long, false},
		{"Oval", "", "", true},
		{"Oval_", "", "", true},
		{"_Short", "", "", true},
		{"Oval_Medium", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			category, length, err := ParseStyleKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStyleKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.length, length)
			assert.Equal(t, tt.category+"_"+string(tt.length), StyleKey(category, length))
		})
	}
}

func TestStyleSpec(t *testing.T) {
	c := Default()

	spec, err := c.StyleSpec("Square_Short", "")
	require.NoError(t, err)
	assert.Equal(t, "images/square_short_sticker.png", spec.AssetPath)

	spec, err = c.StyleSpec("Square_Short", "Cool")
	require.NoError(t, err)
	assert.Equal(t, "images/square_short_cool.png", spec.AssetPath)

	_, err = c.StyleSpec("Triangle_Short", "")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("shapes: ["))
	assert.Error(t, err)

	_, err = Parse([]byte("tones:\n  Cool: {summary: x}\n"))
	assert.Error(t, err, "catalog without shapes")

	_, err = Parse([]byte(`shapes:
  Oval:
    stickers:
      short: {asset: a.png, scale: 0, y_offset: 0}
      long: {asset: b.png, scale: 1, y_offset: 0}
`))
	assert.Error(t, err, "zero scale")
}

func TestParse_KeepsOrder(t *testing.T) {
	c, err := Parse([]byte(`shapes:
  round:
    stickers:
      short: {asset: r.png, scale: 1, y_offset: 0}
      long: {asset: r2.png, scale: 1, y_offset: 0}
  Oval:
    stickers:
      short: {asset: o.png, scale: 1, y_offset: 0}
      long: {asset: o2.png, scale: 1, y_offset: 0}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Round", "Oval"}, c.Labels(ModelFaceShape))
	assert.Empty(t, c.Labels(ModelTone))
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("1")
	require.NoError(t, err)
	assert.Equal(t, ModelFaceShape, m)

	m, err = ParseModel("Tone")
	require.NoError(t, err)
	assert.Equal(t, ModelTone, m)

	_, err = ParseModel("age")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"oval", "Oval"},
		{"OBLONG", "Oblong"},
		{" heart\n", "Heart"},
		{"Čool", "Cool"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeLabel(tt.input); got != tt.expected {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
