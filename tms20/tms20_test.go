package tms20

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// imagePixels is the grid of a 300x200 image with 256px tiles
func imagePixels(t *testing.T) *TileMatrixSet {
	t.Helper()
	tms, err := NewFromResolutions(geom.Extent{0, -200, 300, 0}, geom.Point{0, 0}, []float64{2, 1}, 256)
	require.NoError(t, err)
	return tms
}

func loadTestTileMatrixSet(t *testing.T, id string) *TileMatrixSet {
	t.Helper()
	if id == "ImagePixels" {
		return imagePixels(t)
	}
	p, err := filepath.Abs(path.Join("testdata", id+".json"))
	require.NoError(t, err)
	tms, err := LoadJSONTileMatrixSet(p)
	require.NoErrorf(t, err, "LoadJSONTileMatrixSet() error = %v", err)
	return &tms
}

func TestNewFromResolutions(t *testing.T) {
	tms := imagePixels(t)

	require.Len(t, tms.TileMatrices, 2)
	assert.Equal(t, []float64{2, 1}, tms.Resolutions())
	assert.Equal(t, uint(0), tms.SRID())
	assert.Equal(t, "OGC", tms.CRS.AuthorityName())
	assert.Equal(t, "imageCRS", tms.CRS.AuthorityCode())

	coarsest := tms.TileMatrices[0]
	assert.Equal(t, "0", coarsest.ID)
	assert.Equal(t, TopLeft, coarsest.CornerOfOrigin)
	assert.Equal(t, TwoDPoint{0, 0}, coarsest.PointOfOrigin)
	assert.Equal(t, uint(1), coarsest.MatrixWidth)
	assert.Equal(t, uint(1), coarsest.MatrixHeight)

	finest := tms.TileMatrices[1]
	assert.Equal(t, uint(2), finest.MatrixWidth)
	assert.Equal(t, uint(1), finest.MatrixHeight)
	assert.Equal(t, uint(256), finest.TileWidth)
}

func TestNewFromResolutionsInvalid(t *testing.T) {
	extent := geom.Extent{0, -200, 300, 0}
	tests := []struct {
		name        string
		extent      geom.Extent
		resolutions []float64
		tileSize    uint
	}{
		{name: "no resolutions", extent: extent, resolutions: nil, tileSize: 256},
		{name: "zero resolution", extent: extent, resolutions: []float64{1, 0}, tileSize: 256},
		{name: "zero tile size", extent: extent, resolutions: []float64{1}, tileSize: 0},
		{name: "empty extent", extent: geom.Extent{0, 0, 0, 0}, resolutions: []float64{1}, tileSize: 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tms, err := NewFromResolutions(tt.extent, geom.Point{0, 0}, tt.resolutions, tt.tileSize)
			require.ErrorIs(t, err, ErrInvalidGrid)
			assert.Nil(t, tms)
		})
	}
}

func TestLoadJSONTileMatrixSet(t *testing.T) {
	tests := []struct {
		id   string
		srid uint
	}{
		{id: "Image1500x1000", srid: 0},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			jsonFilePath, err := filepath.Abs(path.Join("testdata", tt.id+".json"))
			require.NoError(t, err)
			got, err := LoadJSONTileMatrixSet(jsonFilePath)
			require.NoErrorf(t, err, "LoadJSONTileMatrixSet() error = %v", err)

			remarshalled, err := json.Marshal(&got)
			require.NoError(t, err)
			rawJSON, err := os.ReadFile(jsonFilePath)
			require.NoError(t, err)
			require.JSONEq(t, string(rawJSON), string(remarshalled))

			require.Equal(t, tt.srid, got.SRID())
		})
	}
}

func TestLoadJSONTileMatrixSet_MatchesBuiltGrid(t *testing.T) {
	loaded := loadTestTileMatrixSet(t, "Image1500x1000")
	built, err := NewFromResolutions(geom.Extent{0, -1000, 1500, 0}, geom.Point{0, 0}, []float64{8, 4, 2, 1}, 256)
	require.NoError(t, err)

	require.NoError(t, built.Matches(loaded))
	assert.Equal(t, built.TileMatrices, loaded.TileMatrices)
	assert.Equal(t, built.Resolutions(), loaded.Resolutions())
}

func TestTileMatrixSet_Matches(t *testing.T) {
	mutations := map[string]func(tm *TileMatrix){
		"cell size":    func(tm *TileMatrix) { tm.CellSize = 3 },
		"tile width":   func(tm *TileMatrix) { tm.TileWidth = 512 },
		"matrix width": func(tm *TileMatrix) { tm.MatrixWidth++ },
		"origin":       func(tm *TileMatrix) { tm.PointOfOrigin = TwoDPoint{0, 10} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			other := imagePixels(t)
			tm := other.TileMatrices[1]
			mutate(&tm)
			other.TileMatrices[1] = tm
			require.ErrorIs(t, imagePixels(t).Matches(other), ErrInvalidGrid)
		})
	}

	t.Run("missing matrix", func(t *testing.T) {
		other := imagePixels(t)
		delete(other.TileMatrices, 1)
		require.ErrorIs(t, imagePixels(t).Matches(other), ErrInvalidGrid)
	})
	t.Run("other ids", func(t *testing.T) {
		other := imagePixels(t)
		other.TileMatrices[2] = other.TileMatrices[1]
		delete(other.TileMatrices, 1)
		require.ErrorIs(t, imagePixels(t).Matches(other), ErrInvalidGrid)
	})
	require.NoError(t, imagePixels(t).Matches(imagePixels(t)))
}

func TestLoadJSONTileMatrixSetMissingFile(t *testing.T) {
	_, err := LoadJSONTileMatrixSet(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestTileMatrixSet_JSONRoundTrip(t *testing.T) {
	tms := imagePixels(t)

	data, err := json.Marshal(tms)
	require.NoError(t, err)

	var got TileMatrixSet
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, tms.Resolutions(), got.Resolutions())
	assert.Equal(t, tms.TileMatrices, got.TileMatrices)
	assert.Equal(t, ImageCRSURI, got.CRS.(*URICRS).URI())
	assert.Equal(t, "Image pixels", got.CRS.Description())
}

func TestTileMatrixSet_UnmarshalJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{name: "missing crs", json: `{"tileMatrices": []}`},
		{name: "missing tileMatrices", json: `{"crs": "http://www.opengis.net/def/crs/EPSG/0/28992"}`},
		{name: "unparsable crs", json: `{"crs": "EPSG:28992", "tileMatrices": []}`},
		{name: "zero matrix width", json: `{"crs": "http://www.opengis.net/def/crs/EPSG/0/28992", "tileMatrices": [
			{"id": "0", "scaleDenominator": 1, "cellSize": 1, "pointOfOrigin": [0, 0],
			 "tileWidth": 256, "tileHeight": 256, "matrixWidth": 0, "matrixHeight": 1}]}`},
		{name: "zero tile width", json: `{"crs": "http://www.opengis.net/def/crs/EPSG/0/28992", "tileMatrices": [
			{"id": "0", "scaleDenominator": 1, "cellSize": 1, "pointOfOrigin": [0, 0],
			 "tileWidth": 0, "tileHeight": 256, "matrixWidth": 1, "matrixHeight": 1}]}`},
		{name: "non integer matrix id", json: `{"crs": "http://www.opengis.net/def/crs/EPSG/0/28992", "tileMatrices": [
			{"id": "a", "scaleDenominator": 1, "cellSize": 1, "pointOfOrigin": [0, 0],
			 "tileWidth": 256, "tileHeight": 256, "matrixWidth": 1, "matrixHeight": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tms TileMatrixSet
			require.Error(t, json.Unmarshal([]byte(tt.json), &tms))
		})
	}
}

func TestTileMatrixSet_UnmarshalJSON(t *testing.T) {
	const matrix = `"id": "0", "scaleDenominator": 1, "cellSize": 1, "pointOfOrigin": [0, 0],
		"tileWidth": 256, "tileHeight": 256, "matrixWidth": 1, "matrixHeight": 1`

	var tms TileMatrixSet
	require.NoError(t, json.Unmarshal([]byte(`{"crs": "http://www.opengis.net/def/crs/EPSG/0/28992",
		"tileMatrices": [{`+matrix+`}]}`), &tms))
	assert.Equal(t, uint(28992), tms.SRID())
	assert.Equal(t, TopLeft, tms.TileMatrices[0].CornerOfOrigin)

	for _, corner := range []string{"bottomLeft", "center"} {
		require.Error(t, json.Unmarshal([]byte(`{"crs": "http://www.opengis.net/def/crs/EPSG/0/28992",
			"tileMatrices": [{`+matrix+`, "cornerOfOrigin": "`+corner+`"}]}`), &tms), corner)
	}
}

func TestTileMatrixSet_Size(t *testing.T) {
	type args struct {
		zoom uint
	}
	type want struct {
		ok   bool
		tile *slippy.Tile
	}
	tests := []struct {
		id string
		args
		want
	}{
		{id: "ImagePixels",
			args: args{0},
			want: want{ok: true, tile: &slippy.Tile{Z: 0, X: 1, Y: 1}}},
		{id: "ImagePixels",
			args: args{1},
			want: want{ok: true, tile: &slippy.Tile{Z: 1, X: 2, Y: 1}}},
		{id: "ImagePixels",
			args: args{99},
			want: want{ok: false, tile: nil}},
		{id: "Image1500x1000",
			args: args{3},
			want: want{ok: true, tile: &slippy.Tile{Z: 3, X: 6, Y: 4}}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v.Size(%v)", tt.id, tt.zoom), func(t *testing.T) {
			tms := loadTestTileMatrixSet(t, tt.id)
			tile, ok := tms.Size(tt.args.zoom)
			if ok != tt.ok {
				t.Errorf("Size(...) ok = %v, want %v", ok, tt.ok)
			}
			if ok {
				require.Equal(t, tt.tile, tile)
			}
		})
	}
}

func TestTileMatrixSet_FromNative(t *testing.T) {
	type args struct {
		zoom uint
		pt   geom.Point
	}
	type want struct {
		ok   bool
		tile *slippy.Tile
	}
	tests := []struct {
		id string
		args
		want
	}{
		{id: "ImagePixels",
			args: args{1, geom.Point{299, -199}}, // bottom right pixel
			want: want{ok: true, tile: &slippy.Tile{Z: 1, X: 1, Y: 0}}},
		{id: "ImagePixels",
			args: args{0, geom.Point{299, -199}},
			want: want{ok: true, tile: &slippy.Tile{Z: 0, X: 0, Y: 0}}},
		{"ImagePixels",
			args{5, geom.Point{}}, // zoom too large
			want{false, nil}},
		{"ImagePixels",
			args{1, geom.Point{-1, -10}}, // x too small
			want{false, nil}},
		{"ImagePixels",
			args{1, geom.Point{10, 1}}, // above the image
			want{false, nil}},
		{"ImagePixels",
			args{1, geom.Point{600, -10}}, // x too large
			want{false, nil}},
		{"ImagePixels",
			args{1, geom.Point{10, -300}}, // y too large
			want{false, nil}},
		{id: "Image1500x1000",
			args: args{3, geom.Point{1499, -999}},
			want: want{ok: true, tile: &slippy.Tile{Z: 3, X: 5, Y: 3}}},
		{id: "Image1500x1000",
			args: args{2, geom.Point{600, -600}},
			want: want{ok: true, tile: &slippy.Tile{Z: 2, X: 1, Y: 1}}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v.FromNative(%v, %v)", tt.id, tt.zoom, tt.pt.XY()), func(t *testing.T) {
			tms := loadTestTileMatrixSet(t, tt.id)
			tile, ok := tms.FromNative(tt.args.zoom, tt.args.pt)
			if ok != tt.ok {
				t.Errorf("FromNative(...) ok = %v, want %v", ok, tt.ok)
			}
			if ok {
				require.Equal(t, tt.tile, tile)
			} else {
				require.Nil(t, tile)
			}
		})
	}
}

func TestTileMatrixSet_ToNative(t *testing.T) {
	type args struct {
		tile *slippy.Tile
	}
	type want struct {
		ok bool
		pt geom.Point
	}
	tests := []struct {
		id string
		args
		want
	}{
		{"ImagePixels",
			args{&slippy.Tile{Z: 1, X: 1, Y: 0}},
			want{ok: true, pt: geom.Point{256, 0}}},
		{"ImagePixels",
			args{&slippy.Tile{Z: 0, X: 0, Y: 0}},
			want{ok: true, pt: geom.Point{0, 0}}},
		{"ImagePixels",
			args{&slippy.Tile{Z: 3, X: 0, Y: 0}},
			want{ok: false}},
		{"Image1500x1000",
			args{&slippy.Tile{Z: 2, X: 1, Y: 1}},
			want{ok: true, pt: geom.Point{512, -512}}},
		{"Image1500x1000",
			args{&slippy.Tile{Z: 3, X: 6, Y: 4}}, // bottom right corner of the last tile
			want{ok: true, pt: geom.Point{1536, -1024}}},
		{"Image1500x1000",
			args{&slippy.Tile{Z: 3, X: 7, Y: 0}},
			want{ok: false}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v.ToNative(%v)", tt.id, tt.tile), func(t *testing.T) {
			tms := loadTestTileMatrixSet(t, tt.id)
			point, ok := tms.ToNative(tt.tile)
			if ok != tt.ok {
				t.Errorf("ToNative(...) ok = %v, want %v", ok, tt.ok)
			}
			if ok {
				require.Equal(t, tt.pt, point)
			}
		})
	}
}
