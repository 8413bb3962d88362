// Package pixel is a tile source for images in the pixel tile format: an image cut into
// square tiles at a number of tiers, each tier half the resolution of the next.
package pixel

import (
	"context"
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	log "github.com/sirupsen/logrus"

	"github.com/pdok/pixeltiles/pyramid"
	"github.com/pdok/pixeltiles/tile"
	"github.com/pdok/pixeltiles/tms20"
)

var ErrNoTile = errors.New("pixeltiles: no tile")

// Options configures a Source.
type Options struct {
	// Size of the full image in pixels
	Width  int `mapstructure:"width" validate:"gt=0"`
	Height int `mapstructure:"height" validate:"gt=0"`
	// Edge length of the served tiles in pixels
	TileSize int              `mapstructure:"tileSize" default:"256" validate:"gt=0"`
	Strategy pyramid.Strategy `mapstructure:"strategy" default:"default" validate:"oneof=default truncated"`
	// URL template, see tile.NewTemplateURLFunc
	URL string `mapstructure:"url"`
	// Number of tiles kept in memory
	CacheSize  int     `mapstructure:"cacheSize" default:"128" validate:"min=1"`
	PixelRatio float64 `mapstructure:"pixelRatio" default:"1" validate:"gt=0"`
	// Tile matrix set document to index tiles with, it must describe the same tiles as the pyramid
	Grid string `mapstructure:"grid"`

	// Fetcher for tile data, tile.DefaultFetcher when nil
	Fetcher tile.Fetcher `mapstructure:"-"`
}

// Validate fills in defaults and checks the options.
func (o *Options) Validate() error {
	if err := defaults.Set(o); err != nil {
		return err
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", pyramid.ErrConfiguration, err)
	}
	return nil
}

// Source resolves and loads the tiles of one image.
// It is not safe for concurrent use.
type Source struct {
	opts    Options
	pyramid *pyramid.Pyramid
	grid    *tms20.TileMatrixSet
	urlFunc tile.URLFunc
	fetcher tile.Fetcher
	cache   *tile.Cache
}

// NewSource creates a source for the image described by opts. A non nil urlFunc takes
// precedence over the url template in opts, one of them is required.
func NewSource(opts Options, urlFunc tile.URLFunc) (*Source, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if urlFunc == nil && opts.URL == "" {
		return nil, fmt.Errorf("%w: no url template or url function", pyramid.ErrConfiguration)
	}
	p, err := pyramid.Build(opts.Width, opts.Height, opts.TileSize, opts.Strategy)
	if err != nil {
		return nil, err
	}
	grid, err := p.Grid()
	if err != nil {
		return nil, err
	}
	if opts.Grid != "" {
		if grid, err = LoadGrid(opts.Grid, grid); err != nil {
			return nil, err
		}
	}

	if urlFunc == nil {
		urlFunc, err = tile.NewTemplateURLFunc(opts.URL, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", pyramid.ErrConfiguration, err)
		}
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = tile.DefaultFetcher()
	}

	log.WithFields(log.Fields{
		"width":    opts.Width,
		"height":   opts.Height,
		"strategy": opts.Strategy,
		"tiers":    len(p.Tiers),
	}).Debug("created pixel source")

	return &Source{
		opts:    opts,
		pyramid: p,
		grid:    grid,
		urlFunc: urlFunc,
		fetcher: fetcher,
		cache:   tile.NewCache(opts.CacheSize),
	}, nil
}

// LoadGrid reads the tile matrix set at path and checks it indexes the same tiles as built.
func LoadGrid(path string, built *tms20.TileMatrixSet) (*tms20.TileMatrixSet, error) {
	grid, err := tms20.LoadJSONTileMatrixSet(path)
	if err != nil {
		return nil, fmt.Errorf("%w: grid %s: %w", pyramid.ErrConfiguration, path, err)
	}
	if err = built.Matches(&grid); err != nil {
		return nil, fmt.Errorf("%w: grid %s does not fit the image: %w", pyramid.ErrConfiguration, path, err)
	}
	log.WithFields(log.Fields{"grid": grid.ID, "path": path}).Debug("using tile matrix set")
	return &grid, nil
}

func (s *Source) Pyramid() *pyramid.Pyramid {
	return s.pyramid
}

func (s *Source) Grid() *tms20.TileMatrixSet {
	return s.grid
}

func (s *Source) Projection() tms20.CRS {
	return s.grid.CRS
}

// TileAt returns the tile containing pt, nil when there is none.
func (s *Source) TileAt(zoom uint, pt geom.Point) *slippy.Tile {
	coord, ok := s.grid.FromNative(zoom, pt)
	if !ok {
		return nil
	}
	return coord
}

// TileExtent returns the part of the image covered by the tile at coord, in image
// coordinates (x right, y up, origin top left). Tiles on the right and bottom edge cover less
// than a full tile.
func (s *Source) TileExtent(coord slippy.Tile) (geom.Extent, bool) {
	if size, ok := s.grid.Size(coord.Z); !ok || coord.X >= size.X || coord.Y >= size.Y {
		return geom.Extent{}, false
	}
	topLeft, ok := s.grid.ToNative(&coord)
	if !ok {
		return geom.Extent{}, false
	}
	bottomRight, ok := s.grid.ToNative(&slippy.Tile{Z: coord.Z, X: coord.X + 1, Y: coord.Y + 1})
	if !ok {
		return geom.Extent{}, false
	}
	imageExtent := s.pyramid.Extent()
	return geom.Extent{
		topLeft[0],
		max(bottomRight[1], imageExtent[1]),
		min(bottomRight[0], imageExtent[2]),
		topLeft[1],
	}, true
}

// TileURL returns the url of the tile at coord. Coord may be nil.
func (s *Source) TileURL(coord *slippy.Tile) (string, bool) {
	return tile.ResolveURL(coord, s.opts.PixelRatio, s.grid.CRS, s.urlFunc)
}

// GetTile returns the tile at z/x/y, loading it the first time it is requested.
// When loading fails the tile is returned in the Error state together with the error.
func (s *Source) GetTile(ctx context.Context, z, x, y uint) (*tile.Tile, error) {
	coord := slippy.Tile{Z: z, X: x, Y: y}
	if t, ok := s.cache.Get(coord); ok {
		return t, nil
	}
	url, ok := s.TileURL(&coord)
	if !ok {
		return nil, fmt.Errorf("%w: at %d/%d/%d", ErrNoTile, coord.Z, coord.X, coord.Y)
	}

	t := tile.NewTile(coord, tile.NewImageLoader(url, s.fetcher), s.opts.TileSize)
	s.cache.Set(t)
	s.cache.ExpireCache()
	log.WithFields(log.Fields{"tile": coord, "url": url}).Debug("loading tile")
	return t, t.Load(ctx)
}

// LoadTile loads the tile at coord without caching it. It only reads the immutable parts
// of the source, so it may be called concurrently as long as the url function and fetcher allow it.
func (s *Source) LoadTile(ctx context.Context, coord slippy.Tile) (*tile.Tile, error) {
	url, ok := s.TileURL(&coord)
	if !ok {
		return nil, fmt.Errorf("%w: at %d/%d/%d", ErrNoTile, coord.Z, coord.X, coord.Y)
	}
	t := tile.NewTile(coord, tile.NewImageLoader(url, s.fetcher), s.opts.TileSize)
	return t, t.Load(ctx)
}

// CachedTiles is the number of tiles currently held.
func (s *Source) CachedTiles() int {
	return s.cache.Len()
}

// Clear drops all cached tiles and their images.
func (s *Source) Clear() {
	s.cache.Clear()
}
