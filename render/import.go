package render

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/alimasry/go-pixel-editor/pixel"
)

// ImportImage resamples img to width x height and returns one point per
// cell with any opacity, in row-major order.
func ImportImage(img image.Image, width, height int) pixel.Stroke {
	if width <= 0 || height <= 0 {
		return pixel.Stroke{}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	points := pixel.Stroke{}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := dst.NRGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			points = append(points, pixel.Point{X: x, Y: y, Color: pixel.FromNRGBA(c)})
		}
	}
	return points
}
