package tile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/pixeltiles/pyramid"
	"github.com/pdok/pixeltiles/tms20"
)

var ErrInvalidTemplate = errors.New("pixeltiles: invalid url template")

// URLFunc returns the url of the tile at coord. The second return value is false when
// there is no url for the tile.
type URLFunc func(coord *slippy.Tile, pixelRatio float64, projection tms20.CRS) (string, bool)

// ResolveURL returns the url of the tile at coord. A nil coord means the grid has no tile
// there, fn is not called for it.
func ResolveURL(coord *slippy.Tile, pixelRatio float64, projection tms20.CRS, fn URLFunc) (string, bool) {
	if coord == nil {
		return "", false
	}
	return fn(coord, pixelRatio, projection)
}

const (
	placeholderZ         = "{z}"
	placeholderX         = "{x}"
	placeholderY         = "{y}"
	placeholderTileGroup = "{TileGroup}"
	placeholderTileIndex = "{TileIndex}"
)

// NewTemplateURLFunc creates a URLFunc from a template like
// "https://example.com/image/TileGroup{TileGroup}/{z}-{x}-{y}.jpg".
// Tiles outside the pyramid have no url.
func NewTemplateURLFunc(template string, p *pyramid.Pyramid) (URLFunc, error) {
	if err := validateTemplate(template); err != nil {
		return nil, err
	}
	return func(coord *slippy.Tile, _ float64, _ tms20.CRS) (string, bool) {
		index, ok := p.TileIndex(coord.Z, coord.X, coord.Y)
		if !ok {
			return "", false
		}
		r := strings.NewReplacer(
			placeholderZ, strconv.FormatUint(uint64(coord.Z), 10),
			placeholderX, strconv.FormatUint(uint64(coord.X), 10),
			placeholderY, strconv.FormatUint(uint64(coord.Y), 10),
			placeholderTileGroup, strconv.FormatUint(uint64(index/pyramid.TileGroupSize), 10),
			placeholderTileIndex, strconv.FormatUint(uint64(index), 10),
		)
		return r.Replace(template), true
	}, nil
}

func validateTemplate(template string) error {
	if strings.Contains(template, placeholderTileIndex) {
		return nil
	}
	for _, p := range []string{placeholderZ, placeholderX, placeholderY} {
		if !strings.Contains(template, p) {
			return fmt.Errorf("%w: placeholder %v not found", ErrInvalidTemplate, p)
		}
	}
	return nil
}
