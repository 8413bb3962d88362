package processing

import (
	"context"

	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/pixeltiles/tile"
)

// Source emits the coordinates of the tiles to process. It closes the channel when done.
type Source interface {
	ReadTiles(chan<- slippy.Tile)
}

// Target receives the loaded tiles of one tile matrix.
type Target interface {
	WriteTiles(<-chan *tile.Tile)
}

// LoadTileFunc loads the tile at coord. It is called from several goroutines at once.
type LoadTileFunc func(ctx context.Context, coord slippy.Tile) (*tile.Tile, error)
