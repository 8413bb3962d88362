package processing

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/pdok/pixeltiles/tile"
)

// DirTarget writes normalized tiles as png files named {z}/{x}_{y}.png below Dir.
type DirTarget struct {
	Dir string
	// Context the tile images are normalized for
	Key tile.ContextKey

	written int
}

func (d *DirTarget) WriteTiles(tiles <-chan *tile.Tile) {
	for t := range tiles {
		if err := d.writeTile(t); err != nil {
			log.WithField("tile", t.Coord()).Errorf("could not write tile: %s", err)
		} else {
			d.written++
		}
		t.Dispose()
	}
}

// Written is the number of tiles written, read it after WriteTiles returned.
func (d *DirTarget) Written() int {
	return d.written
}

func (d *DirTarget) writeTile(t *tile.Tile) error {
	coord := t.Coord()
	path := filepath.Join(d.Dir, fmt.Sprint(coord.Z), fmt.Sprintf("%d_%d.png", coord.X, coord.Y))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return WritePNG(path, t, d.Key)
}

// WritePNG writes the image of t for the given context to path.
func WritePNG(path string, t *tile.Tile, key tile.ContextKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = png.Encode(f, t.Image(key)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
