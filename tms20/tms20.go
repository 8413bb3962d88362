// Package tms20 implements the OGC Tile Matrix Set standard (v2.0) as a slippy.Grid
// See https://www.ogc.org/standard/tms/
package tms20

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"slices"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	"github.com/perimeterx/marshmallow"
	"golang.org/x/exp/maps"

	"github.com/pdok/pixeltiles/mathhelp"
)

const (
	// ImageCRSURI identifies the engineering CRS of image pixels (x right, y up, origin top left).
	ImageCRSURI = "urn:ogc:def:crs:OGC::imageCRS"

	// standardizedRenderingPixelSize is the 0.28mm pixel the TMS standard derives scale denominators from.
	standardizedRenderingPixelSize = 0.00028
)

var ErrInvalidGrid = errors.New("pixeltiles: invalid tile grid")

// LoadJSONTileMatrixSet reads a tile matrix set document from disk.
func LoadJSONTileMatrixSet(path string) (TileMatrixSet, error) {
	var tms TileMatrixSet
	tmsJSON, err := os.ReadFile(path)
	if err != nil {
		return tms, err
	}
	err = json.Unmarshal(tmsJSON, &tms)
	return tms, err
}

// NewFromResolutions creates a grid with one tile matrix per resolution, coarsest first.
// The matrix dimensions are derived from how many tiles of the given size cover the extent.
func NewFromResolutions(extent geom.Extent, origin geom.Point, resolutions []float64, tileSize uint) (*TileMatrixSet, error) {
	if len(resolutions) == 0 {
		return nil, fmt.Errorf("%w: no resolutions", ErrInvalidGrid)
	}
	if tileSize == 0 {
		return nil, fmt.Errorf("%w: tile size 0", ErrInvalidGrid)
	}
	crs, err := NewURICRS(ImageCRSURI, "Image pixels")
	if err != nil {
		return nil, err
	}
	width := extent[2] - extent[0]
	height := extent[3] - extent[1]

	tms := &TileMatrixSet{
		ID:          "ImagePixels",
		Title:       "Image pixel tiles",
		OrderedAxes: []string{"X", "Y"},
		CRS:         crs,
		BoundingBox: &TwoDBoundingBox{
			LowerLeft:  TwoDPoint{extent[0], extent[1]},
			UpperRight: TwoDPoint{extent[2], extent[3]},
		},
		TileMatrices: make(map[int]TileMatrix, len(resolutions)),
	}
	for z, resolution := range resolutions {
		if resolution <= 0 {
			return nil, fmt.Errorf("%w: resolution %v at zoom %d", ErrInvalidGrid, resolution, z)
		}
		span := resolution * float64(tileSize)
		tms.TileMatrices[z] = TileMatrix{
			ID:               strconv.Itoa(z),
			ScaleDenominator: resolution / standardizedRenderingPixelSize,
			CellSize:         resolution,
			CornerOfOrigin:   TopLeft,
			PointOfOrigin:    TwoDPoint(origin),
			TileWidth:        tileSize,
			TileHeight:       tileSize,
			MatrixWidth:      mathhelp.CeilDivFloat(width, span),
			MatrixHeight:     mathhelp.CeilDivFloat(height, span),
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(tms); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGrid, err)
	}
	return tms, nil
}

// TileMatrixSet is a definition of a tile matrix set following the Tile Matrix Set standard.
type TileMatrixSet struct {
	// Tile matrix set identifier. Implementation of 'identifier'
	ID string `json:"id,omitempty"`
	// Title of this tile matrix set, normally used for display to a human
	Title string `json:"title,omitempty"`
	// Brief narrative description of this tile matrix set, normally available for display to a human
	Description string `json:"description,omitempty"`
	// Reference to an official source for this TileMatrixSet
	URI         string   `validate:"omitempty,uri" json:"uri,omitempty"`
	OrderedAxes []string `validate:"omitnil,min=1" json:"orderedAxes"`
	// Coordinate Reference System (CRS)
	CRS CRS `validate:"required" json:"-"`
	// Minimum bounding rectangle surrounding the tile matrix set, in the supported CRS
	BoundingBox *TwoDBoundingBox `json:"boundingBox,omitempty"`
	// Describes scale levels and its tile matrices
	TileMatrices map[int]TileMatrix `validate:"required,min=1,dive" json:"-"`
}

func (tms *TileMatrixSet) MarshalJSON() ([]byte, error) {
	ids := maps.Keys(tms.TileMatrices)
	slices.Sort(ids)
	tileMatrices := make([]*TileMatrix, 0, len(ids))
	for _, id := range ids {
		tm := tms.TileMatrices[id]
		tileMatrices = append(tileMatrices, &tm)
	}
	return json.Marshal(struct {
		TileMatrixSet                     // not a pointer, because it would cause recursion to this function
		SpecialCRS          *CRS          `json:"crs"` // pointer, because crs' structs' MarshalJSON funcs are on pointer
		SpecialTileMatrices []*TileMatrix `json:"tileMatrices"`
	}{
		TileMatrixSet:       *tms,
		SpecialCRS:          &tms.CRS,
		SpecialTileMatrices: tileMatrices,
	})
}

func (tms *TileMatrixSet) UnmarshalJSON(data []byte) error {
	err := defaults.Set(tms)
	if err != nil {
		return err
	}

	specials, err := marshmallow.Unmarshal(data, tms, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	rawCrs, ok := specials["crs"]
	if !ok {
		return fmt.Errorf(`missing key "crs"`)
	}
	tms.CRS, err = unmarshalCRS(rawCrs)
	if err != nil {
		return err
	}

	rawTileMatrices, ok := specials["tileMatrices"]
	if !ok {
		return fmt.Errorf(`missing key "tileMatrices"`)
	}
	tms.TileMatrices, err = unmarshalTileMatrices(rawTileMatrices)
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(tms)
}

func unmarshalTileMatrices(rawTileMatrices interface{}) (map[int]TileMatrix, error) {
	rawTileMatricesList, ok := rawTileMatrices.([]interface{})
	if !ok {
		return nil, fmt.Errorf(`"tileMatrices" should be an array`)
	}
	tileMatrices := make(map[int]TileMatrix, len(rawTileMatricesList))
	for _, rawTileMatrix := range rawTileMatricesList {
		var tileMatrix TileMatrix
		err := tileMatrix.UnmarshalJSONFromMap(rawTileMatrix)
		if err != nil {
			return nil, err
		}
		tileMatrixID, err := strconv.Atoi(tileMatrix.ID)
		if err != nil {
			return nil, fmt.Errorf("only integer-like ids are supported for tile matrices: %w", err)
		}
		tileMatrices[tileMatrixID] = tileMatrix
	}
	return tileMatrices, nil
}

// unmarshalCRS accepts a crs as a plain uri string or as an object with a uri
func unmarshalCRS(rawCrs interface{}) (CRS, error) {
	var rawCrsMap map[string]interface{}
	rawCrsString, asString := rawCrs.(string)
	if asString {
		rawCrsMap = map[string]interface{}{"uri": rawCrsString}
	} else {
		var ok bool
		rawCrsMap, ok = rawCrs.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf(`wrong type key "crs": %T`, rawCrs)
		}
	}

	var uriCrs URICRS
	if err := uriCrs.UnmarshalJSONFromMap(rawCrsMap); err != nil {
		return nil, fmt.Errorf(`could not unmarshal crs: %w`, err)
	}
	uriCrs.asString = asString
	return &uriCrs, nil
}

// CRS is the projection a grid is expressed in.
type CRS interface {
	Description() string
	AuthorityName() string
	AuthorityCode() string
}

var (
	crsURIRegexURL = regexp.MustCompile("https?://.+/def/crs/(?P<authority>[^/]+)/[^/]+/(?P<code>[^/]+)$")
	crsURIRegexURN = regexp.MustCompile("^urn:ogc:def:crs:(?P<authority>[^:]+):[^:]*:(?P<code>[^:]+)$")
)

type URICRS struct {
	description string
	// Reference to one coordinate reference system (CRS)
	uri           string
	authorityName string
	authorityCode string
	// Whether it should be marshalled as just a string
	asString bool
}

func NewURICRS(uri, description string) (*URICRS, error) {
	crs := &URICRS{description: description}
	if err := crs.parseURI(uri); err != nil {
		return nil, err
	}
	return crs, nil
}

func (crs *URICRS) parseURI(uri string) error {
	uriParts := crsURIRegexURL.FindStringSubmatch(uri)
	if uriParts == nil {
		uriParts = crsURIRegexURN.FindStringSubmatch(uri)
	}
	if uriParts == nil {
		return fmt.Errorf(`could not parse crs uri "%v"`, uri)
	}
	crs.uri = uri
	crs.authorityName = uriParts[1]
	crs.authorityCode = uriParts[2]
	return nil
}

func (crs *URICRS) MarshalJSON() ([]byte, error) {
	if crs.asString {
		return json.Marshal(crs.uri)
	}
	return json.Marshal(struct {
		Description string `json:"description,omitempty"`
		URI         string `json:"uri"`
	}{
		Description: crs.description,
		URI:         crs.uri,
	})
}

func (crs *URICRS) UnmarshalJSONFromMap(data interface{}) error {
	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`data is not a map but a %T`, data)
	}

	rawDescription, ok := dataMap["description"]
	if ok {
		crs.description, ok = rawDescription.(string)
		if !ok {
			return fmt.Errorf(`description property is not a string but a %T`, rawDescription)
		}
	}

	rawURI, ok := dataMap["uri"]
	if !ok {
		return fmt.Errorf(`uri property not found`)
	}
	uri, ok := rawURI.(string)
	if !ok {
		return fmt.Errorf(`uri property is not a string but a %T`, rawURI)
	}
	return crs.parseURI(uri)
}

func (crs *URICRS) URI() string {
	return crs.uri
}

func (crs *URICRS) Description() string {
	return crs.description
}

func (crs *URICRS) AuthorityName() string {
	return crs.authorityName
}

func (crs *URICRS) AuthorityCode() string {
	return crs.authorityCode
}

// Minimum bounding rectangle surrounding a 2D resource in the CRS indicated elsewhere
type TwoDBoundingBox struct {
	LowerLeft   TwoDPoint `json:"lowerLeft"`
	UpperRight  TwoDPoint `json:"upperRight"`
	OrderedAxes []string  `validate:"omitempty,len=2" json:"orderedAxes,omitempty"`
}

// A 2D Point in the CRS indicated elsewhere
type TwoDPoint [2]float64

func (p TwoDPoint) XY() [2]float64 {
	return p
}

// A tile matrix, usually corresponding to a particular zoom level of a TileMatrixSet.
type TileMatrix struct {
	// Identifier selecting one of the scales defined in the TileMatrixSet and representing the scaleDenominator the tile.
	ID string `validate:"required" json:"id"`
	// Title of this tile matrix, normally used for display to a human
	Title string `json:"title,omitempty"`
	// Scale denominator of this tile matrix
	ScaleDenominator float64 `validate:"required,gt=0" json:"scaleDenominator"`
	// Cell size of this tile matrix
	CellSize float64 `validate:"required,gt=0" json:"cellSize"`
	// The corner of the tile matrix (_topLeft_ or _bottomLeft_) used as the origin for numbering tile rows and columns.
	CornerOfOrigin CornerOfOrigin `validate:"omitempty,eq=topLeft" json:"cornerOfOrigin,omitempty"`
	// Position of the corner of origin, also a corner of the (0, 0) tile. The image origin is (0, 0).
	PointOfOrigin TwoDPoint `json:"pointOfOrigin"`
	// Width of each tile of this tile matrix in pixels
	TileWidth uint `validate:"required,min=1" json:"tileWidth"`
	// Height of each tile of this tile matrix in pixels
	TileHeight uint `validate:"required,min=1" json:"tileHeight"`
	// Width of the matrix (number of tiles in width)
	MatrixWidth uint `validate:"required,min=1" json:"matrixWidth"`
	// Height of the matrix (number of tiles in height)
	MatrixHeight uint `validate:"required,min=1" json:"matrixHeight"`
}

func (tm *TileMatrix) UnmarshalJSONFromMap(data interface{}) error {
	err := defaults.Set(tm)
	if err != nil {
		return err
	}

	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`data is not a map but a %T`, data)
	}

	_, err = marshmallow.UnmarshalFromJSONMap(dataMap, tm, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(tm)
}

type CornerOfOrigin string

// TopLeft is the only supported corner, image rows are numbered downwards.
const TopLeft CornerOfOrigin = "topLeft"

func (c *CornerOfOrigin) UnmarshalJSONFromMap(data interface{}) error {
	dataString, ok := data.(string)
	if !ok {
		return fmt.Errorf(`CornerOfOrigin data is not a string but a %T`, data)
	}
	if dataString != "" && dataString != string(TopLeft) {
		return fmt.Errorf(`unsupported CornerOfOrigin: %v`, data)
	}
	*c = TopLeft
	return nil
}

// SRID is the EPSG code of the CRS, or 0 when the CRS has no numeric code (like image pixels).
func (tms *TileMatrixSet) SRID() uint {
	code, err := strconv.ParseUint(tms.CRS.AuthorityCode(), 10, 64)
	if err != nil {
		return 0
	}
	return uint(code)
}

// Resolutions returns the cell sizes ordered by tile matrix id.
func (tms *TileMatrixSet) Resolutions() []float64 {
	ids := maps.Keys(tms.TileMatrices)
	slices.Sort(ids)
	resolutions := make([]float64, len(ids))
	for i, id := range ids {
		resolutions[i] = tms.TileMatrices[id].CellSize
	}
	return resolutions
}

// Matches reports whether other indexes tiles exactly like tms: the same tile matrix ids,
// cell sizes, tile sizes, matrix dimensions and points of origin.
func (tms *TileMatrixSet) Matches(other *TileMatrixSet) error {
	if len(tms.TileMatrices) != len(other.TileMatrices) {
		return fmt.Errorf("%w: %d tile matrices, want %d", ErrInvalidGrid, len(other.TileMatrices), len(tms.TileMatrices))
	}
	for id, want := range tms.TileMatrices {
		got, ok := other.TileMatrices[id]
		switch {
		case !ok:
			return fmt.Errorf("%w: missing tile matrix %d", ErrInvalidGrid, id)
		case got.CellSize != want.CellSize:
			return fmt.Errorf("%w: tile matrix %d has cell size %v, want %v", ErrInvalidGrid, id, got.CellSize, want.CellSize)
		case got.TileWidth != want.TileWidth || got.TileHeight != want.TileHeight:
			return fmt.Errorf("%w: tile matrix %d has %dx%d tiles, want %dx%d", ErrInvalidGrid, id,
				got.TileWidth, got.TileHeight, want.TileWidth, want.TileHeight)
		case got.MatrixWidth != want.MatrixWidth || got.MatrixHeight != want.MatrixHeight:
			return fmt.Errorf("%w: tile matrix %d is %dx%d tiles, want %dx%d", ErrInvalidGrid, id,
				got.MatrixWidth, got.MatrixHeight, want.MatrixWidth, want.MatrixHeight)
		case got.PointOfOrigin != want.PointOfOrigin:
			return fmt.Errorf("%w: tile matrix %d has origin %v, want %v", ErrInvalidGrid, id, got.PointOfOrigin, want.PointOfOrigin)
		}
	}
	return nil
}

func (tms *TileMatrixSet) Size(zoom uint) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok {
		return nil, false
	}
	return slippy.NewTile(zoom, tm.MatrixWidth, tm.MatrixHeight), true
}

// FromNative returns the tile containing pt, or nil when no tile exists there.
func (tms *TileMatrixSet) FromNative(zoom uint, pt geom.Point) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok {
		return nil, false
	}

	tileSizeX := float64(tm.TileWidth) * tm.CellSize
	minX := tm.PointOfOrigin.XY()[0]
	x := math.Floor((pt.X() - minX) / tileSizeX)
	if x < 0 || x >= float64(tm.MatrixWidth) {
		return nil, false
	}

	tileSizeY := float64(tm.TileHeight) * tm.CellSize
	maxY := tm.PointOfOrigin.XY()[1]
	y := math.Floor((maxY - pt.Y()) / tileSizeY)
	if y < 0 || y >= float64(tm.MatrixHeight) {
		return nil, false
	}

	return slippy.NewTile(zoom, uint(x), uint(y)), true
}

// ToNative returns the top left corner of the tile.
func (tms *TileMatrixSet) ToNative(tile *slippy.Tile) (geom.Point, bool) {
	topLeftPt := geom.Point{}
	tm, ok := tms.TileMatrices[int(tile.Z)]
	if !ok {
		return topLeftPt, false
	}
	if tile.X > tm.MatrixWidth || tile.Y > tm.MatrixHeight {
		// >, not >= because "should be able to take tiles with x and y values 1 higher than the max"
		return topLeftPt, false
	}

	tileSizeX := float64(tm.TileWidth) * tm.CellSize
	topLeftPt[0] = tm.PointOfOrigin.XY()[0] + float64(tile.X)*tileSizeX

	tileSizeY := float64(tm.TileHeight) * tm.CellSize
	topLeftPt[1] = tm.PointOfOrigin.XY()[1] - float64(tile.Y)*tileSizeY

	return topLeftPt, true
}
