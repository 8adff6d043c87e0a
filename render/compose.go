// Package render turns canvases into images and images into strokes.
package render

import (
	"image"
	"image/color"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/colornames"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
)

// ResolveColor converts a cell color to NRGBA. Hex colors and CSS color
// names are understood.
func ResolveColor(c pixel.Color) (color.NRGBA, bool) {
	if n, ok := pixel.ParseHex(c); ok {
		return n, true
	}
	if rgba, ok := colornames.Map[strings.ToLower(string(c))]; ok {
		return color.NRGBA{R: rgba.R, G: rgba.G, B: rgba.B, A: rgba.A}, true
	}
	return color.NRGBA{}, false
}

// Grid draws one grid onto a width x height image. Cells outside the image
// and colors that cannot be resolved are skipped.
func Grid(g *pixel.Grid, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for _, p := range g.Points() {
		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if c, ok := ResolveColor(p.Color); ok {
			img.SetNRGBA(p.X, p.Y, c)
		}
	}
	return img
}

// Compose flattens the visible layers of c bottom to top, each scaled by
// its opacity.
func Compose(c *canvas.Canvas) *image.NRGBA {
	w, h := c.Size()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	layers := c.Layers()
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		alpha := uint8(math.Round(l.Opacity() * 255))
		if !l.Visible() || alpha == 0 {
			continue
		}
		src := Grid(l.Grid(), w, h)
		mask := image.NewUniform(color.Alpha{A: alpha})
		xdraw.DrawMask(out, out.Bounds(), src, image.Point{}, mask, image.Point{}, xdraw.Over)
	}
	return out
}
