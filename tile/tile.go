// Package tile resolves tile urls and turns loaded tile images into uniformly sized bitmaps.
//
// Tiles on the right and bottom edge of an image are usually smaller than the tile size.
// A Tile pads them to a full square, once per rendering context, so everything
// downstream can assume tileEdge x tileEdge images.
//
// Nothing in this package is safe for concurrent use, all calls are expected to come from
// the rendering goroutine.
package tile

import (
	"context"
	"image"

	"github.com/go-spatial/geom/slippy"
	log "github.com/sirupsen/logrus"
)

// NormalizeFunc turns a raw image into an edge x edge image.
type NormalizeFunc func(raw image.Image, edge int) image.Image

func normalize(raw image.Image, edge int) image.Image {
	return Normalize(raw, edge)
}

type Option func(*Tile)

// WithNormalizer replaces Normalize, for instance to count how often it runs.
func WithNormalizer(fn NormalizeFunc) Option {
	return func(t *Tile) {
		t.normalize = fn
	}
}

// Tile is one tile of the pyramid with its normalized images per rendering context.
type Tile struct {
	coord          slippy.Tile
	loader         Loader
	edge           int
	normalize      NormalizeFunc
	imageByContext map[ContextKey]image.Image
}

func NewTile(coord slippy.Tile, loader Loader, edge int, opts ...Option) *Tile {
	t := &Tile{
		coord:          coord,
		loader:         loader,
		edge:           edge,
		normalize:      normalize,
		imageByContext: make(map[ContextKey]image.Image),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tile) Coord() slippy.Tile {
	return t.coord
}

func (t *Tile) State() State {
	return t.loader.State()
}

// Load starts loading when the loader supports it.
func (t *Tile) Load(ctx context.Context) error {
	l, ok := t.loader.(interface{ Load(context.Context) error })
	if !ok {
		return nil
	}
	return l.Load(ctx)
}

// Image returns the image to draw for the rendering context key.
//
// Until the tile is loaded the loader's placeholder is returned and nothing is cached.
// Once loaded, the image is cached for key: as is when it already is a full tile, padded
// to a full tile otherwise.
func (t *Tile) Image(key ContextKey) image.Image {
	if img, ok := t.imageByContext[key]; ok {
		return img
	}
	raw := t.loader.Image()
	if t.loader.State() != Loaded {
		return raw
	}
	size := raw.Bounds().Size()
	if size.X == t.edge && size.Y == t.edge {
		t.imageByContext[key] = raw
		return raw
	}
	log.WithFields(log.Fields{"tile": t.coord, "context": key}).Debugf("padding %v tile image to %d", size, t.edge)
	img := t.normalize(raw, t.edge)
	t.imageByContext[key] = img
	return img
}

// Dispose releases the cached images, called when the tile leaves the tile cache.
func (t *Tile) Dispose() {
	clear(t.imageByContext)
}

// CachedContexts is the number of rendering contexts holding an image of this tile.
func (t *Tile) CachedContexts() int {
	return len(t.imageByContext)
}
