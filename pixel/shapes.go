package pixel

import (
	"image"
	"math"
)

// Line returns the cells of a Bresenham line from a to b, endpoints included.
func Line(a, b image.Point) []image.Point {
	dx := abs(b.X - a.X)
	dy := abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X >= b.X {
		sx = -1
	}
	if a.Y >= b.Y {
		sy = -1
	}
	err := dx - dy

	var out []image.Point
	x, y := a.X, a.Y
	for {
		out = append(out, image.Pt(x, y))
		if x == b.X && y == b.Y {
			return out
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x += sx
		}
		if e2 < dx {
			err += dx
			y += sy
		}
	}
}

// Rect returns the outline of the rectangle spanned by a and b.
// Each cell appears once.
func Rect(a, b image.Point) []image.Point {
	r := image.Rectangle{Min: a, Max: b}.Canon()
	var out []image.Point
	for x := r.Min.X; x <= r.Max.X; x++ {
		out = append(out, image.Pt(x, r.Min.Y))
		if r.Max.Y != r.Min.Y {
			out = append(out, image.Pt(x, r.Max.Y))
		}
	}
	for y := r.Min.Y + 1; y < r.Max.Y; y++ {
		out = append(out, image.Pt(r.Min.X, y))
		if r.Max.X != r.Min.X {
			out = append(out, image.Pt(r.Max.X, y))
		}
	}
	return out
}

// FilledRect returns every cell of the rectangle spanned by a and b, row by row.
func FilledRect(a, b image.Point) []image.Point {
	r := image.Rectangle{Min: a, Max: b}.Canon()
	out := make([]image.Point, 0, (r.Dx()+1)*(r.Dy()+1))
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		for x := r.Min.X; x <= r.Max.X; x++ {
			out = append(out, image.Pt(x, y))
		}
	}
	return out
}

func radius(center, edge image.Point) int {
	dx := float64(edge.X - center.X)
	dy := float64(edge.Y - center.Y)
	return int(math.Floor(math.Sqrt(dx*dx + dy*dy)))
}

// Circle returns the midpoint-circle outline around center whose radius is
// the floored distance to edge. Octant seams may repeat a cell.
func Circle(center, edge image.Point) []image.Point {
	x, y := radius(center, edge), 0
	d := 1 - x

	var out []image.Point
	for y <= x {
		out = append(out,
			image.Pt(center.X+x, center.Y+y),
			image.Pt(center.X+y, center.Y+x),
			image.Pt(center.X-y, center.Y+x),
			image.Pt(center.X-x, center.Y+y),
			image.Pt(center.X-x, center.Y-y),
			image.Pt(center.X-y, center.Y-x),
			image.Pt(center.X+y, center.Y-x),
			image.Pt(center.X+x, center.Y-y),
		)
		y++
		if d <= 0 {
			d += 2*y + 1
		} else {
			x--
			d += 2*(y-x) + 1
		}
	}
	return out
}

// FilledCircle returns every cell within the circle around center whose
// radius is the floored distance to edge.
func FilledCircle(center, edge image.Point) []image.Point {
	r := radius(center, edge)
	return FilledCircleIn(center, edge, image.Rect(center.X-r, center.Y-r, center.X+r+1, center.Y+r+1))
}

// FilledCircleIn is FilledCircle restricted to the cells of clip. Only rows
// and columns inside clip are visited.
func FilledCircleIn(center, edge image.Point, clip image.Rectangle) []image.Point {
	r := radius(center, edge)
	box := image.Rect(center.X-r, center.Y-r, center.X+r+1, center.Y+r+1).Intersect(clip)
	var out []image.Point
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			dx, dy := x-center.X, y-center.Y
			if dx*dx+dy*dy <= r*r {
				out = append(out, image.Pt(x, y))
			}
		}
	}
	return out
}

// Paint colors every cell with c.
func Paint(cells []image.Point, c Color) []Point {
	out := make([]Point, len(cells))
	for i, p := range cells {
		out[i] = Point{X: p.X, Y: p.Y, Color: c}
	}
	return out
}

// DitherCell reports whether the dither brush paints (x, y).
func DitherCell(x, y int) bool {
	return (x+y)%2 == 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
