// Package processing takes care of the logistics around reading tile coordinates, loading
// the tiles and writing them to a Target. Not the loading itself.
package processing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-spatial/geom/slippy"
	log "github.com/sirupsen/logrus"

	"github.com/pdok/pixeltiles/pyramid"
	"github.com/pdok/pixeltiles/tile"
)

// Stats counts what happened to the tiles read from the source.
type Stats struct {
	Read    uint64
	Loaded  uint64
	Failed  uint64
	Skipped uint64
}

// readTilesFromSource reads the tile coordinates from the source
func readTilesFromSource(source Source, coords chan<- slippy.Tile) {
	source.ReadTiles(coords)
}

// loadTiles loads the tiles with the given function, failed tiles are logged and dropped
func loadTiles(ctx context.Context, coordsIn <-chan slippy.Tile, tilesOut chan<- *tile.Tile, targets map[uint]Target, f LoadTileFunc, stats *Stats) {
	for coord := range coordsIn {
		atomic.AddUint64(&stats.Read, 1)
		if _, ok := targets[coord.Z]; !ok {
			atomic.AddUint64(&stats.Skipped, 1)
			continue
		}
		if ctx.Err() != nil {
			atomic.AddUint64(&stats.Failed, 1)
			continue
		}
		t, err := f(ctx, coord)
		if err != nil {
			atomic.AddUint64(&stats.Failed, 1)
			log.WithField("tile", coord).Warnf("could not load tile: %s", err)
			continue
		}
		atomic.AddUint64(&stats.Loaded, 1)
		tilesOut <- t
	}
}

// writeTilesToTargets distributes the loaded tiles over the targets, one per tile matrix
func writeTilesToTargets(tiles <-chan *tile.Tile, targets map[uint]Target) {
	targetChannels := make(map[uint]chan<- *tile.Tile)
	wg := sync.WaitGroup{}

	// create a channel and start a goroutine per tile matrix target
	for zoom, target := range targets {
		targetChannel := make(chan *tile.Tile)
		targetChannels[zoom] = targetChannel
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()
			target.WriteTiles(targetChannel)
		}(target)
	}

	for t := range tiles {
		targetChannels[t.Coord().Z] <- t
	}

	// close the channels, the targets will do their last writing
	for _, targetChannel := range targetChannels {
		close(targetChannel)
	}

	wg.Wait()
}

// ProcessTiles loads every tile the source emits for which there is a target, using the given number
// of workers. Loading stops when ctx is done, the remaining tiles count as failed.
func ProcessTiles(ctx context.Context, source Source, targets map[uint]Target, workers int, f LoadTileFunc) Stats {
	coords := make(chan slippy.Tile)
	tiles := make(chan *tile.Tile)
	stats := Stats{}

	done := sync.WaitGroup{}
	done.Add(1)
	go func() {
		defer done.Done()
		writeTilesToTargets(tiles, targets)
	}()

	loaders := sync.WaitGroup{}
	for i := 0; i < max(workers, 1); i++ {
		loaders.Add(1)
		go func() {
			defer loaders.Done()
			loadTiles(ctx, coords, tiles, targets, f, &stats)
		}()
	}
	go readTilesFromSource(source, coords)

	loaders.Wait()
	close(tiles)
	done.Wait()

	log.Infof("    tiles read: %d", stats.Read)
	log.Infof("        loaded: %d", stats.Loaded)
	log.Infof("        failed: %d", stats.Failed)
	if stats.Skipped > 0 {
		log.Infof("       skipped: %d", stats.Skipped)
	}
	return stats
}

// PyramidSource emits all tiles of the given zoom levels of a pyramid, coarsest first.
type PyramidSource struct {
	Pyramid *pyramid.Pyramid
	Zooms   []uint
}

func (s PyramidSource) ReadTiles(coords chan<- slippy.Tile) {
	defer close(coords)
	for _, z := range s.Zooms {
		if int(z) >= len(s.Pyramid.Tiers) {
			log.Warnf("pyramid has no tier %d", z)
			continue
		}
		tier := s.Pyramid.Tiers[z]
		for y := uint(0); y < tier.TileRows; y++ {
			for x := uint(0); x < tier.TileColumns; x++ {
				coords <- slippy.Tile{Z: z, X: x, Y: y}
			}
		}
	}
}
