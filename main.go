package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/carlmjohnson/versioninfo"
	"github.com/go-spatial/geom/slippy"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/pdok/pixeltiles/config"
	"github.com/pdok/pixeltiles/pixel"
	"github.com/pdok/pixeltiles/processing"
	"github.com/pdok/pixeltiles/pyramid"
	"github.com/pdok/pixeltiles/tile"
)

const CONFIG string = `config`
const WIDTH string = `width`
const HEIGHT string = `height`
const TILESIZE string = `tileSize`
const STRATEGY string = `strategy`
const URL string = `url`
const CACHESIZE string = `cacheSize`
const PIXELRATIO string = `pixelRatio`
const GRID string = `grid`
const LOGLEVEL string = `logLevel`

const ZOOM string = `zoom`
const COL string = `col`
const ROW string = `row`
const OUTPUT string = `output`
const TILEMATRICES string = `tilematrices`
const WORKERS string = `workers`

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "pixeltiles"
	app.Usage = "Tile pyramids of large images in the pixel (deep zoom) tile format"
	app.Version = versioninfo.Short()

	app.Flags = globalFlags()

	tileFlags := []cli.Flag{
		&cli.UintFlag{Name: ZOOM, Aliases: []string{"z"}, Usage: "Tier (zoom level) of the tile", Required: true},
		&cli.UintFlag{Name: COL, Aliases: []string{"x"}, Usage: "Column of the tile", Required: true},
		&cli.UintFlag{Name: ROW, Aliases: []string{"y"}, Usage: "Row of the tile", Required: true},
	}

	app.Before = func(c *cli.Context) error {
		log.SetFormatter(&nested.Formatter{
			HideKeys:        false,
			ShowFullLevel:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
		log.SetOutput(os.Stderr)
		level, err := log.ParseLevel(c.String(LOGLEVEL))
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return nil
	}

	app.Commands = []*cli.Command{
		{
			Name:  "pyramid",
			Usage: "Print the tiers, resolutions and tile count offsets as JSON",
			Action: func(c *cli.Context) error {
				opts, err := options(c)
				if err != nil {
					return err
				}
				p, err := pyramid.Build(opts.Width, opts.Height, opts.TileSize, opts.Strategy)
				if err != nil {
					return err
				}
				return printJSON(p)
			},
		},
		{
			Name:  "tms",
			Usage: "Print the tile grid as an OGC Tile Matrix Set JSON document. With --grid the document is checked against the image",
			Action: func(c *cli.Context) error {
				opts, err := options(c)
				if err != nil {
					return err
				}
				p, err := pyramid.Build(opts.Width, opts.Height, opts.TileSize, opts.Strategy)
				if err != nil {
					return err
				}
				grid, err := p.Grid()
				if err != nil {
					return err
				}
				if opts.Grid != "" {
					if grid, err = pixel.LoadGrid(opts.Grid, grid); err != nil {
						return err
					}
				}
				return printJSON(grid)
			},
		},
		{
			Name:  "url",
			Usage: "Print the url of a tile",
			Flags: tileFlags,
			Action: func(c *cli.Context) error {
				source, err := newSource(c)
				if err != nil {
					return err
				}
				coord := tileCoord(c)
				url, ok := source.TileURL(&coord)
				if !ok {
					return fmt.Errorf("%w: at %d/%d/%d", pixel.ErrNoTile, coord.Z, coord.X, coord.Y)
				}
				fmt.Println(url)
				return nil
			},
		},
		{
			Name:  "fetch",
			Usage: "Load a tile and write it as a normalized png",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: OUTPUT, Aliases: []string{"o"}, Usage: "Target png file", Value: "tile.png"},
			}, tileFlags...),
			Action: func(c *cli.Context) error {
				source, err := newSource(c)
				if err != nil {
					return err
				}
				coord := tileCoord(c)
				t, err := source.GetTile(c.Context, coord.Z, coord.X, coord.Y)
				if err != nil {
					return err
				}
				if err = processing.WritePNG(c.String(OUTPUT), t, tile.NoContext); err != nil {
					return err
				}
				extent, _ := source.TileExtent(coord)
				log.WithField("extent", extent).Infof("written %s", c.String(OUTPUT))
				return nil
			},
		},
		{
			Name:  "seed",
			Usage: "Load all tiles of some tiers and write them as normalized pngs in a directory",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     OUTPUT,
					Aliases:  []string{"o"},
					Usage:    "Target directory. Tiles are written as {z}/{x}_{y}.png",
					Required: true,
				},
				&cli.StringFlag{
					Name:     TILEMATRICES,
					Aliases:  []string{"z"},
					Usage:    `Tiers (zoom levels) to load. JSON array of integers. E.g.: [0,1,2]`,
					Required: true,
					EnvVars:  []string{config.EnvVar(TILEMATRICES)},
				},
				&cli.IntFlag{
					Name:    WORKERS,
					Aliases: []string{"w"},
					Usage:   "Number of tiles loaded at the same time",
					Value:   4,
					EnvVars: []string{config.EnvVar(WORKERS)},
				},
			},
			Action: func(c *cli.Context) error {
				source, err := newSource(c)
				if err != nil {
					return err
				}
				var zooms []uint
				if err = json.Unmarshal([]byte(c.String(TILEMATRICES)), &zooms); err != nil {
					return err
				}

				targets := make(map[uint]processing.Target, len(zooms))
				dirTargets := make(map[uint]*processing.DirTarget, len(zooms))
				for _, z := range zooms {
					dirTargets[z] = &processing.DirTarget{Dir: c.String(OUTPUT)}
					targets[z] = dirTargets[z]
				}

				log.Println("=== start seeding ===")
				stats := processing.ProcessTiles(c.Context, processing.PyramidSource{Pyramid: source.Pyramid(), Zooms: zooms},
					targets, c.Int(WORKERS), source.LoadTile)
				for z, target := range dirTargets {
					log.Infof("  tier %d: written %d tiles to %s", z, target.Written(), filepath.Join(target.Dir, fmt.Sprint(z)))
				}
				log.Println("=== done seeding ===")
				if stats.Failed > 0 {
					return fmt.Errorf("%d tiles could not be loaded", stats.Failed)
				}
				return nil
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		stop()
		log.Fatal(err)
	}
}

// globalFlags mirror the config keys, their environment variables are the ones config reads.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    CONFIG,
			Aliases: []string{"c"},
			Usage:   "Config file (toml, yaml or json). Flags override its values",
			EnvVars: []string{config.EnvVar(CONFIG)},
		},
		&cli.IntFlag{
			Name:    WIDTH,
			Aliases: []string{"W"},
			Usage:   "Width of the full image in pixels",
			EnvVars: []string{config.EnvVar(WIDTH)},
		},
		&cli.IntFlag{
			Name:    HEIGHT,
			Aliases: []string{"H"},
			Usage:   "Height of the full image in pixels",
			EnvVars: []string{config.EnvVar(HEIGHT)},
		},
		&cli.IntFlag{
			Name:    TILESIZE,
			Aliases: []string{"s"},
			Usage:   fmt.Sprintf("Edge length of the tiles in pixels (default: %d)", pyramid.DefaultTileSize),
			EnvVars: []string{config.EnvVar(TILESIZE)},
		},
		&cli.StringFlag{
			Name:    STRATEGY,
			Usage:   `Tier size calculation: "default" (doubling tile edge) or "truncated" (halving image size) (default: "default")`,
			EnvVars: []string{config.EnvVar(STRATEGY)},
		},
		&cli.StringFlag{
			Name:    URL,
			Aliases: []string{"u"},
			Usage:   `Tile url template with {z}, {x}, {y}, {TileGroup} and {TileIndex}. E.g.: https://example.com/TileGroup{TileGroup}/{z}-{x}-{y}.jpg`,
			EnvVars: []string{config.EnvVar(URL)},
		},
		&cli.IntFlag{
			Name:    CACHESIZE,
			Usage:   "Number of tiles kept in memory (default: 128)",
			EnvVars: []string{config.EnvVar(CACHESIZE)},
		},
		&cli.Float64Flag{
			Name:    PIXELRATIO,
			Usage:   "Device pixel ratio passed to the url function (default: 1)",
			EnvVars: []string{config.EnvVar(PIXELRATIO)},
		},
		&cli.StringFlag{
			Name:    GRID,
			Aliases: []string{"g"},
			Usage:   "OGC Tile Matrix Set JSON document to index the tiles with, it must fit the image",
			EnvVars: []string{config.EnvVar(GRID)},
		},
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Usage:   "Log level: debug, info, warn or error",
			Value:   log.InfoLevel.String(),
			EnvVars: []string{config.EnvVar(LOGLEVEL)},
		},
	}
}

// options reads the config file and the environment, and applies the flags that were set on top of them.
func options(c *cli.Context) (pixel.Options, error) {
	opts, err := config.Read(c.String(CONFIG))
	if err != nil {
		return opts, err
	}
	if c.IsSet(WIDTH) {
		opts.Width = c.Int(WIDTH)
	}
	if c.IsSet(HEIGHT) {
		opts.Height = c.Int(HEIGHT)
	}
	if c.IsSet(TILESIZE) {
		opts.TileSize = c.Int(TILESIZE)
	}
	if c.IsSet(STRATEGY) {
		if err = opts.Strategy.UnmarshalText([]byte(c.String(STRATEGY))); err != nil {
			return opts, err
		}
	}
	if c.IsSet(URL) {
		opts.URL = c.String(URL)
	}
	if c.IsSet(CACHESIZE) {
		opts.CacheSize = c.Int(CACHESIZE)
	}
	if c.IsSet(PIXELRATIO) {
		opts.PixelRatio = c.Float64(PIXELRATIO)
	}
	if c.IsSet(GRID) {
		opts.Grid = c.String(GRID)
	}
	return opts, opts.Validate()
}

func newSource(c *cli.Context) (*pixel.Source, error) {
	opts, err := options(c)
	if err != nil {
		return nil, err
	}
	return pixel.NewSource(opts, nil)
}

func tileCoord(c *cli.Context) slippy.Tile {
	return slippy.Tile{Z: c.Uint(ZOOM), X: c.Uint(COL), Y: c.Uint(ROW)}
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
