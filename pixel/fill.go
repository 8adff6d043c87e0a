package pixel

// FloodFill recolors the 4-connected region of g around (x, y) with c and
// returns the points it wrote, in visiting order. Every emitted point is
// applied to g before its neighbors are examined, so the region cannot leak.
// Cells outside [0,width) x [0,height) are never visited.
//
// The region color is whatever g holds at (x, y) when FloodFill is called.
// If that already equals c, or the start is out of bounds, nothing is written.
func FloodFill(g *Grid, x, y, width, height int, c Color) Stroke {
	if c == "" {
		c = Transparent
	}
	if x < 0 || x >= width || y < 0 || y >= height {
		return Stroke{}
	}
	target := g.Get(x, y)
	if target == c {
		return Stroke{}
	}

	var out Stroke
	visited := map[cell]bool{{x, y}: true}
	stack := []cell{{x, y}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		p := Point{X: cur.x, Y: cur.y, Color: c}
		out = append(out, p)
		g.Apply(p)

		for _, n := range [4]cell{
			{cur.x + 1, cur.y},
			{cur.x - 1, cur.y},
			{cur.x, cur.y + 1},
			{cur.x, cur.y - 1},
		} {
			if n.x < 0 || n.x >= width || n.y < 0 || n.y >= height {
				continue
			}
			if visited[n] {
				continue
			}
			if g.Get(n.x, n.y) == target {
				visited[n] = true
				stack = append(stack, n)
			}
		}
	}
	return out
}
