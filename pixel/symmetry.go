package pixel

// ApplySymmetry expands points across the canvas mirror axes. With mirrorX
// every input point gains a twin at x' = width-1-x. With mirrorY every point
// accumulated so far gains a twin at y' = height-1-y, so enabling both yields
// four-way symmetry. The input is not modified; duplicates are kept.
func ApplySymmetry(points []Point, mirrorX, mirrorY bool, width, height int) []Point {
	out := make([]Point, len(points), len(points)*4)
	copy(out, points)

	if mirrorX {
		n := len(out)
		for _, p := range out[:n] {
			out = append(out, Point{X: width - 1 - p.X, Y: p.Y, Color: p.Color})
		}
	}
	if mirrorY {
		n := len(out)
		for _, p := range out[:n] {
			out = append(out, Point{X: p.X, Y: height - 1 - p.Y, Color: p.Color})
		}
	}
	return out
}
