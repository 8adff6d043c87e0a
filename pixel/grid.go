package pixel

import "sort"

type cell struct{ x, y int }

// Grid is the sparse raster derived from a history: it maps coordinates to
// colors, and an absent coordinate reads as Transparent.
type Grid struct {
	cells map[cell]Color
}

// NewGrid returns an empty grid.
func NewGrid() *Grid {
	return &Grid{cells: make(map[cell]Color)}
}

// Rebuild replays strokes[0..upto] in order into a fresh grid.
// upto is clamped to the stroke slice; a negative upto yields an empty grid.
func Rebuild(strokes []Stroke, upto int) *Grid {
	g := NewGrid()
	if upto >= len(strokes) {
		upto = len(strokes) - 1
	}
	for i := 0; i <= upto; i++ {
		for _, p := range strokes[i] {
			g.Apply(p)
		}
	}
	return g
}

// Apply writes one point. A transparent color deletes the cell.
func (g *Grid) Apply(p Point) {
	k := cell{p.X, p.Y}
	if p.Color.IsTransparent() {
		delete(g.cells, k)
		return
	}
	g.cells[k] = p.Color
}

// Get returns the color at (x, y), or Transparent if the cell is empty.
func (g *Grid) Get(x, y int) Color {
	if c, ok := g.cells[cell{x, y}]; ok {
		return c
	}
	return Transparent
}

// Len returns the number of painted cells.
func (g *Grid) Len() int { return len(g.cells) }

// Points returns every painted cell in row-major order.
func (g *Grid) Points() []Point {
	pts := make([]Point, 0, len(g.cells))
	for k, c := range g.cells {
		pts = append(pts, Point{X: k.x, Y: k.y, Color: c})
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Y != pts[j].Y {
			return pts[i].Y < pts[j].Y
		}
		return pts[i].X < pts[j].X
	})
	return pts
}

// Clone returns an independent copy of g.
func (g *Grid) Clone() *Grid {
	out := &Grid{cells: make(map[cell]Color, len(g.cells))}
	for k, c := range g.cells {
		out.cells[k] = c
	}
	return out
}

// Equal reports whether both grids hold exactly the same cells.
func (g *Grid) Equal(other *Grid) bool {
	if len(g.cells) != len(other.cells) {
		return false
	}
	for k, c := range g.cells {
		if oc, ok := other.cells[k]; !ok || oc != c {
			return false
		}
	}
	return true
}
