package render

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"
	xdraw "golang.org/x/image/draw"
)

// Printable area of an A4 page in millimetres.
const (
	pageWidth  = 190.0
	pageHeight = 277.0
	pageMargin = 10.0
)

// Scale enlarges img by an integer factor without smoothing.
func Scale(img image.Image, factor int) *image.NRGBA {
	if factor < 1 {
		factor = 1
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// WritePDF lays img out on one A4 page, each pixel a filled square, and
// writes the document to w.
func WritePDF(w io.Writer, img image.Image, title string) error {
	b := img.Bounds()
	if b.Empty() {
		b = image.Rect(0, 0, 1, 1)
	}
	cell := pageWidth / float64(b.Dx())
	if c := pageHeight / float64(b.Dy()); c < cell {
		cell = c
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	for y := b.Min.Y; y < b.Max.Y; y++ {
		// Adjacent pixels of one color become a single rectangle.
		run := 0
		var runColor color.NRGBA
		flush := func(end int) {
			if run == 0 || runColor.A == 0 {
				return
			}
			pdf.SetFillColor(int(runColor.R), int(runColor.G), int(runColor.B))
			pdf.SetAlpha(float64(runColor.A)/255, "Normal")
			x := pageMargin + float64(end-run-b.Min.X)*cell
			pdf.Rect(x, pageMargin+float64(y-b.Min.Y)*cell, float64(run)*cell, cell, "F")
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if run > 0 && c == runColor {
				run++
				continue
			}
			flush(x)
			runColor, run = c, 1
		}
		flush(b.Max.X)
	}
	pdf.SetAlpha(1, "Normal")
	return pdf.Output(w)
}
