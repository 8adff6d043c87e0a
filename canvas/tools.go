package canvas

import (
	"fmt"
	"image"

	"github.com/alimasry/go-pixel-editor/pixel"
)

// Tool names an editor tool.
type Tool string

const (
	Brush           Tool = "brush"
	Eraser          Tool = "eraser"
	Dither          Tool = "dither"
	Lighten         Tool = "lighten"
	Darken          Tool = "darken"
	Line            Tool = "line"
	Rectangle       Tool = "rectangle"
	FilledRectangle Tool = "filled-rectangle"
	Circle          Tool = "circle"
	FilledCircle    Tool = "filled-circle"
	Fill            Tool = "fill"
)

// brightnessStep is the per-channel change of one lighten or darken pass.
const brightnessStep = 20

// IsShape reports whether t draws from a start and an end cell.
func (t Tool) IsShape() bool {
	switch t {
	case Line, Rectangle, FilledRectangle, Circle, FilledCircle:
		return true
	}
	return false
}

// StartStroke opens a stroke on a layer. Only one layer per canvas may be
// drawing at a time.
func (c *Canvas) StartStroke(layerID string) error {
	l, err := c.Layer(layerID)
	if err != nil {
		return err
	}
	if c.drawing != nil {
		return ErrBusy
	}
	l.history.Start()
	c.drawing = l
	return nil
}

// DrawingLayer returns the ID of the layer with an open stroke, or "".
func (c *Canvas) DrawingLayer() string {
	if c.drawing == nil {
		return ""
	}
	return c.drawing.ID
}

// Draw applies a freehand tool at one cell of the open stroke, mirrored by
// the canvas symmetry settings.
func (c *Canvas) Draw(tool Tool, at image.Point, color pixel.Color) error {
	if c.drawing == nil {
		return ErrNotDrawing
	}
	h := c.drawing.history

	var points []pixel.Point
	switch tool {
	case Brush:
		points = c.mirror([]pixel.Point{{X: at.X, Y: at.Y, Color: color}})
	case Eraser:
		points = c.mirror([]pixel.Point{{X: at.X, Y: at.Y, Color: pixel.Transparent}})
	case Dither:
		if !pixel.DitherCell(at.X, at.Y) {
			return nil
		}
		points = c.mirror([]pixel.Point{{X: at.X, Y: at.Y, Color: color}})
	case Lighten, Darken:
		amount := brightnessStep
		if tool == Darken {
			amount = -brightnessStep
		}
		for _, p := range c.mirror([]pixel.Point{{X: at.X, Y: at.Y}}) {
			cur := h.Get(p.X, p.Y)
			if cur.IsTransparent() {
				continue
			}
			p.Color = pixel.AdjustBrightness(cur, amount)
			points = append(points, p)
		}
	default:
		return fmt.Errorf("draw %q: %w", tool, ErrUnknownTool)
	}
	h.RecordBatch(points)
	return nil
}

// DrawBatch records already-colored points into the open stroke, mirrored
// by the canvas symmetry settings.
func (c *Canvas) DrawBatch(points []pixel.Point) error {
	if c.drawing == nil {
		return ErrNotDrawing
	}
	c.drawing.history.RecordBatch(c.mirror(points))
	return nil
}

// StopStroke commits the open stroke.
func (c *Canvas) StopStroke() error {
	if c.drawing == nil {
		return ErrNotDrawing
	}
	l := c.drawing
	c.drawing = nil
	l.history.Stop()
	return nil
}

// CancelStroke discards the open stroke.
func (c *Canvas) CancelStroke() error {
	if c.drawing == nil {
		return ErrNotDrawing
	}
	l := c.drawing
	c.drawing = nil
	l.history.Cancel()
	return nil
}

// Shape draws a line, rectangle or circle from one cell to another as a
// single stroke.
func (c *Canvas) Shape(layerID string, tool Tool, from, to image.Point, color pixel.Color) error {
	l, err := c.Layer(layerID)
	if err != nil {
		return err
	}
	if c.drawing != nil {
		return ErrBusy
	}

	var cells []image.Point
	switch tool {
	case Line, Circle, FilledCircle:
		if !from.In(c.reach()) || !to.In(c.reach()) {
			return fmt.Errorf("shape %q from %v to %v: %w", tool, from, to, ErrOutOfRange)
		}
	}
	switch tool {
	case Line:
		cells = pixel.Line(from, to)
	case Rectangle:
		cells = pixel.Rect(c.clampRect(from), c.clampRect(to))
	case FilledRectangle:
		r := image.Rectangle{Min: from, Max: to}.Canon()
		r.Max = r.Max.Add(image.Pt(1, 1))
		r = r.Intersect(image.Rect(0, 0, c.width, c.height))
		if !r.Empty() {
			cells = pixel.FilledRect(r.Min, r.Max.Sub(image.Pt(1, 1)))
		}
	case Circle:
		cells = pixel.Circle(from, to)
	case FilledCircle:
		cells = pixel.FilledCircleIn(from, to, image.Rect(0, 0, c.width, c.height))
	default:
		return fmt.Errorf("shape %q: %w", tool, ErrUnknownTool)
	}

	l.history.Start()
	l.history.RecordBatch(c.mirror(pixel.Paint(cells, color)))
	l.history.Stop()
	return nil
}

// Fill flood-fills a region of a layer and returns the emitted points.
// While the layer is drawing the fill joins its open stroke.
func (c *Canvas) Fill(layerID string, x, y int, color pixel.Color) (pixel.Stroke, error) {
	l, err := c.Layer(layerID)
	if err != nil {
		return nil, err
	}
	if c.drawing != nil && c.drawing != l {
		return nil, ErrBusy
	}
	return l.history.Fill(x, y, color), nil
}

// Undo steps a layer's history back and reports whether anything changed.
func (c *Canvas) Undo(layerID string) (bool, error) {
	l, err := c.Layer(layerID)
	if err != nil {
		return false, err
	}
	return l.history.Undo(), nil
}

// Redo steps a layer's history forward and reports whether anything changed.
func (c *Canvas) Redo(layerID string) (bool, error) {
	l, err := c.Layer(layerID)
	if err != nil {
		return false, err
	}
	return l.history.Redo(), nil
}

// Clear empties a layer's history.
func (c *Canvas) Clear(layerID string) error {
	l, err := c.Layer(layerID)
	if err != nil {
		return err
	}
	if l == c.drawing {
		return ErrBusy
	}
	l.history.Clear()
	return nil
}

// reach is the area shape endpoints may lie in: the canvas grown by its
// larger side in every direction. It bounds the work of lines and circles.
func (c *Canvas) reach() image.Rectangle {
	m := max(c.width, c.height)
	return image.Rect(-m, -m, c.width+m, c.height+m)
}

// clampRect pulls p to at most one cell outside the canvas. A rectangle
// outline drawn between clamped corners covers the same canvas cells as
// the original.
func (c *Canvas) clampRect(p image.Point) image.Point {
	return image.Pt(min(max(p.X, -1), c.width), min(max(p.Y, -1), c.height))
}

// mirror applies the symmetry settings and drops cells outside the canvas.
func (c *Canvas) mirror(points []pixel.Point) []pixel.Point {
	all := pixel.ApplySymmetry(points, c.MirrorX, c.MirrorY, c.width, c.height)
	out := all[:0]
	for _, p := range all {
		if p.X >= 0 && p.X < c.width && p.Y >= 0 && p.Y < c.height {
			out = append(out, p)
		}
	}
	return out
}
