package tile

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Normalize draws raw at its natural size in the top left corner of a transparent
// edge x edge canvas. Parts of raw beyond the canvas are clipped.
func Normalize(raw image.Image, edge int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, edge, edge))
	xdraw.Copy(canvas, image.Point{}, raw, raw.Bounds(), xdraw.Src, nil)
	return canvas
}
