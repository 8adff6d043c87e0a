package pixel

// Color is a pixel color: a hex string such as "#ff0000" or Transparent.
// Colors compare by exact string equality.
type Color string

// Transparent marks an erased cell. Applying it deletes the cell from the grid.
const Transparent Color = "transparent"

// IsTransparent reports whether c erases. The empty color counts as transparent.
func (c Color) IsTransparent() bool { return c == Transparent || c == "" }

// Point is a single pixel mutation.
type Point struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Color Color `json:"color"`
}

// Stroke is one atomic, undoable batch of point mutations.
// Points are applied in order; the last write to a cell wins.
type Stroke []Point

// Clone returns a copy of the stroke that shares no memory with s.
func (s Stroke) Clone() Stroke {
	if s == nil {
		return nil
	}
	out := make(Stroke, len(s))
	copy(out, s)
	return out
}

// cloneStrokes copies the outer slice only. Committed strokes are never
// mutated in place, so sharing them is safe.
func cloneStrokes(strokes []Stroke) []Stroke {
	out := make([]Stroke, len(strokes))
	copy(out, strokes)
	return out
}
