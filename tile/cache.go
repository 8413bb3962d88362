package tile

import (
	"github.com/go-spatial/geom/slippy"
	log "github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Cache keeps the most recently used tiles. Tiles that are expired get disposed,
// releasing their per-context images.
type Cache struct {
	highWaterMark int
	tiles         *orderedmap.OrderedMap[slippy.Tile, *Tile]
}

func NewCache(highWaterMark int) *Cache {
	return &Cache{
		highWaterMark: highWaterMark,
		tiles:         orderedmap.New[slippy.Tile, *Tile](),
	}
}

func (c *Cache) Len() int {
	return c.tiles.Len()
}

// Get returns the tile at coord and marks it as most recently used.
func (c *Cache) Get(coord slippy.Tile) (*Tile, bool) {
	t, ok := c.tiles.Get(coord)
	if !ok {
		return nil, false
	}
	_ = c.tiles.MoveToBack(coord)
	return t, true
}

// Set stores t as most recently used. A different tile stored at the same coord is disposed.
func (c *Cache) Set(t *Tile) {
	coord := t.Coord()
	old, present := c.tiles.Set(coord, t)
	if present {
		if old != t {
			old.Dispose()
		}
		_ = c.tiles.MoveToBack(coord)
	}
}

func (c *Cache) CanExpireCache() bool {
	return c.tiles.Len() > c.highWaterMark
}

// ExpireCache disposes the least recently used tiles until the cache is within its high water mark.
func (c *Cache) ExpireCache() {
	for c.CanExpireCache() {
		oldest := c.tiles.Oldest()
		c.tiles.Delete(oldest.Key)
		oldest.Value.Dispose()
		log.WithField("tile", oldest.Key).Debug("expired tile")
	}
}

// Clear disposes all tiles.
func (c *Cache) Clear() {
	for p := c.tiles.Oldest(); p != nil; p = p.Next() {
		p.Value.Dispose()
	}
	c.tiles = orderedmap.New[slippy.Tile, *Tile]()
}
