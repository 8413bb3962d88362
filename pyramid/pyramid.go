// Package pyramid computes the tier layout of an image served as square pixel tiles.
//
// Tier 0 is always the single 1x1 overview tile, the last tier is the native resolution of
// the image. Resolutions, tiers and tile count offsets share the same index.
package pyramid

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-spatial/geom"
	"github.com/pdok/pixeltiles/mathhelp"
	"github.com/pdok/pixeltiles/tms20"
)

// DefaultTileSize is the edge length in pixels of every served tile.
const DefaultTileSize = 256

// TileGroupSize is the number of tiles per tile group folder (Zoomify numbering).
const TileGroupSize = 256

var ErrConfiguration = errors.New("pixeltiles: configuration error")

// Strategy selects how the tile counts per tier are derived.
type Strategy string

const (
	// Default keeps the image size and doubles the source footprint of a tile per tier.
	Default Strategy = "default"
	// Truncated keeps the tile footprint and halves the image size per tier, rounding down.
	Truncated Strategy = "truncated"
)

func (s Strategy) String() string {
	return string(s)
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	switch Strategy(text) {
	case "":
		*s = Default
	case Default, Truncated:
		*s = Strategy(text)
	default:
		return fmt.Errorf("%w: unknown tier size calculation %q", ErrConfiguration, text)
	}
	return nil
}

// Tier is the extent of one resolution level, in tiles.
type Tier struct {
	TileColumns uint `json:"tileColumns"`
	TileRows    uint `json:"tileRows"`
}

// TileCount is the number of tiles in the tier.
func (t Tier) TileCount() uint {
	return t.TileColumns * t.TileRows
}

// Pyramid describes all tiers of an image, ordered from the 1x1 overview to the native resolution.
type Pyramid struct {
	Width    uint   `json:"width"`
	Height   uint   `json:"height"`
	TileEdge uint   `json:"tileEdge"`
	Tiers    []Tier `json:"tiers"`
	// Resolutions holds the number of image pixels spanned by one tile pixel, per tier.
	Resolutions []float64 `json:"resolutions"`
	// TileCountOffsets holds the number of tiles in all coarser tiers, per tier.
	TileCountOffsets []uint `json:"tileCountOffsets"`
}

// GridOptions is everything a tile grid needs to index the pyramid.
type GridOptions struct {
	Extent      geom.Extent
	Origin      geom.Point
	Resolutions []float64
	TileSize    uint
}

// Build computes the pyramid for an image of width x height pixels.
func Build(width, height, tileEdge int, strategy Strategy) (*Pyramid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size must be positive, got %dx%d", ErrConfiguration, width, height)
	}
	if tileEdge <= 0 {
		return nil, fmt.Errorf("%w: tile size must be positive, got %d", ErrConfiguration, tileEdge)
	}

	var tiers []Tier
	switch strategy {
	case Default:
		tiers = defaultTiers(width, height, tileEdge)
	case Truncated:
		tiers = truncatedTiers(width, height, tileEdge)
	default:
		return nil, fmt.Errorf("%w: unknown tier size calculation %q", ErrConfiguration, strategy)
	}
	tiers = append(tiers, Tier{TileColumns: 1, TileRows: 1})
	slices.Reverse(tiers)

	resolutions := make([]float64, len(tiers))
	offsets := make([]uint, len(tiers))
	for i := range tiers {
		// finest tier has resolution 1
		resolutions[i] = float64(mathhelp.Pow2(uint(len(tiers) - 1 - i)))
		if i > 0 {
			offsets[i] = offsets[i-1] + tiers[i-1].TileCount()
		}
	}

	return &Pyramid{
		Width:            uint(width),
		Height:           uint(height),
		TileEdge:         uint(tileEdge),
		Tiers:            tiers,
		Resolutions:      resolutions,
		TileCountOffsets: offsets,
	}, nil
}

// defaultTiers returns the tiers finest first, excluding the 1x1 overview.
func defaultTiers(width, height, tileEdge int) []Tier {
	var tiers []Tier
	for edge := tileEdge; width > edge || height > edge; edge += edge {
		tiers = append(tiers, Tier{
			TileColumns: uint(mathhelp.CeilDiv(width, edge)),
			TileRows:    uint(mathhelp.CeilDiv(height, edge)),
		})
	}
	return tiers
}

// truncatedTiers returns the tiers finest first, excluding the 1x1 overview.
// A halved dimension may reach 0, which results in a tier without rows or columns.
func truncatedTiers(width, height, tileEdge int) []Tier {
	var tiers []Tier
	for w, h := width, height; w > tileEdge || h > tileEdge; w, h = w>>1, h>>1 {
		tiers = append(tiers, Tier{
			TileColumns: uint(mathhelp.CeilDiv(w, tileEdge)),
			TileRows:    uint(mathhelp.CeilDiv(h, tileEdge)),
		})
	}
	return tiers
}

// MaxZoom is the index of the native resolution tier.
func (p *Pyramid) MaxZoom() uint {
	return uint(len(p.Tiers) - 1)
}

// Extent is the image in pixel space with the origin at the top left and y pointing down.
func (p *Pyramid) Extent() geom.Extent {
	return geom.Extent{0, -float64(p.Height), float64(p.Width), 0}
}

func (p *Pyramid) Origin() geom.Point {
	e := p.Extent()
	return geom.Point{e[0], e[3]}
}

func (p *Pyramid) GridOptions() GridOptions {
	return GridOptions{
		Extent:      p.Extent(),
		Origin:      p.Origin(),
		Resolutions: slices.Clone(p.Resolutions),
		TileSize:    p.TileEdge,
	}
}

// Grid builds the tile matrix set indexing this pyramid.
func (p *Pyramid) Grid() (*tms20.TileMatrixSet, error) {
	o := p.GridOptions()
	return tms20.NewFromResolutions(o.Extent, o.Origin, o.Resolutions, o.TileSize)
}

// TileCount is the number of tiles in all tiers combined.
func (p *Pyramid) TileCount() uint {
	last := len(p.Tiers) - 1
	return p.TileCountOffsets[last] + p.Tiers[last].TileCount()
}

// TileIndex numbers all tiles of the pyramid, row by row, coarsest tier first.
func (p *Pyramid) TileIndex(z, x, y uint) (uint, bool) {
	if z >= uint(len(p.Tiers)) {
		return 0, false
	}
	tier := p.Tiers[z]
	if x >= tier.TileColumns || y >= tier.TileRows {
		return 0, false
	}
	return p.TileCountOffsets[z] + y*tier.TileColumns + x, true
}

// TileGroup is the folder a tile lives in when tiles are grouped per TileGroupSize.
func (p *Pyramid) TileGroup(z, x, y uint) (uint, bool) {
	index, ok := p.TileIndex(z, x, y)
	if !ok {
		return 0, false
	}
	return index / TileGroupSize, true
}
