package compositor

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"path"
	"time"

	"github.com/patrickmn/go-cache"
)

// AssetLoader resolves a sticker path to a decoded image.
type AssetLoader interface {
	Load(assetPath string) (image.Image, error)
}

// FSLoader decodes assets from a file system and caches the decoded images.
type FSLoader struct {
	fsys  fs.FS
	cache *cache.Cache
}

// NewFSLoader creates a loader reading from fsys.
func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{
		fsys:  fsys,
		cache: cache.New(30*time.Minute, 1*time.Hour),
	}
}

func (l *FSLoader) Load(assetPath string) (image.Image, error) {
	key := path.Clean(assetPath)
	if img, ok := l.cache.Get(key); ok {
		return img.(image.Image), nil
	}

	f, err := l.fsys.Open(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAssetLoadFailure, assetPath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAssetLoadFailure, assetPath, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s: empty image", ErrAssetLoadFailure, assetPath)
	}

	l.cache.Set(key, img, cache.DefaultExpiration)
	return img, nil
}

// Purge drops every cached image.
func (l *FSLoader) Purge() {
	l.cache.Flush()
}
