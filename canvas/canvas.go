package canvas

import (
	"errors"
	"fmt"

	"github.com/alimasry/go-pixel-editor/pixel"
)

// Default canvas dimensions for new projects.
const (
	DefaultWidth  = 40
	DefaultHeight = 40
)

var (
	ErrLayerNotFound = errors.New("layer not found")
	ErrLastLayer     = errors.New("cannot delete the last layer")
	ErrBusy          = errors.New("another stroke is in progress")
	ErrNotDrawing    = errors.New("no stroke in progress")
	ErrInvalidOrder  = errors.New("order must list every layer exactly once")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrOutOfRange    = errors.New("shape endpoint too far outside the canvas")
)

// Option configures a Canvas.
type Option func(*Canvas)

// WithMaxSteps bounds every layer's history.
func WithMaxSteps(n int) Option {
	return func(c *Canvas) { c.maxSteps = n }
}

// WithOnChange registers the hook called whenever a layer's committed
// history changes. It is the persistence and re-render trigger.
func WithOnChange(fn func(layerID string, strokes []pixel.Stroke)) Option {
	return func(c *Canvas) { c.onChange = fn }
}

// Canvas is the layer stack of one project. Layers are ordered top first.
// At most one layer has an open stroke at a time.
//
// A Canvas is owned by a single goroutine; it is not safe for concurrent use.
type Canvas struct {
	width, height int
	layers        []*Layer
	active        string
	drawing       *Layer
	maxSteps      int
	onChange      func(string, []pixel.Stroke)

	MirrorX bool
	MirrorY bool
}

// New creates a canvas with a single empty layer.
func New(width, height int, opts ...Option) *Canvas {
	c := newCanvas(width, height, opts)
	c.AddLayer("")
	return c
}

func newCanvas(width, height int, opts []Option) *Canvas {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	c := &Canvas{width: width, height: height, maxSteps: pixel.DefaultMaxSteps}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Canvas) newLayer(id, name string) *Layer {
	if id == "" {
		id = newLayerID()
	}
	l := &Layer{ID: id, Name: name, opacity: 1}
	l.history = pixel.NewHistory(c.width, c.height,
		pixel.WithMaxSteps(c.maxSteps),
		pixel.WithOnChange(func(s []pixel.Stroke) {
			if c.onChange != nil {
				c.onChange(l.ID, s)
			}
		}),
	)
	return l
}

// Size returns the canvas dimensions.
func (c *Canvas) Size() (width, height int) { return c.width, c.height }

// Layers returns the layers, top first.
func (c *Canvas) Layers() []*Layer {
	out := make([]*Layer, len(c.layers))
	copy(out, c.layers)
	return out
}

// Layer returns the layer with the given ID.
func (c *Canvas) Layer(id string) (*Layer, error) {
	for _, l := range c.layers {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("layer %q: %w", id, ErrLayerNotFound)
}

func (c *Canvas) indexOf(id string) int {
	for i, l := range c.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// Active returns the layer that receives input by default.
func (c *Canvas) Active() *Layer {
	if l, err := c.Layer(c.active); err == nil {
		return l
	}
	return c.layers[0]
}

// SetActive selects the active layer.
func (c *Canvas) SetActive(id string) error {
	if _, err := c.Layer(id); err != nil {
		return err
	}
	c.active = id
	return nil
}

// AddLayer puts a new empty layer on top and makes it active.
// An empty name becomes "Layer N".
func (c *Canvas) AddLayer(name string) *Layer {
	if name == "" {
		name = fmt.Sprintf("Layer %d", len(c.layers))
	}
	l := c.newLayer("", name)
	c.layers = append([]*Layer{l}, c.layers...)
	c.active = l.ID
	return l
}

// DeleteLayer removes a layer. The last remaining layer cannot be deleted.
// An open stroke on the layer is discarded.
func (c *Canvas) DeleteLayer(id string) error {
	i := c.indexOf(id)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", id, ErrLayerNotFound)
	}
	if len(c.layers) <= 1 {
		return ErrLastLayer
	}
	if c.drawing == c.layers[i] {
		c.drawing.history.Cancel()
		c.drawing = nil
	}
	c.layers = append(c.layers[:i:i], c.layers[i+1:]...)
	if c.active == id {
		c.active = c.layers[0].ID
	}
	return nil
}

// Rename changes a layer's display name.
func (c *Canvas) Rename(id, name string) error {
	l, err := c.Layer(id)
	if err != nil {
		return err
	}
	l.Name = name
	return nil
}

// SetOpacity sets a layer's opacity, clamped to [0, 1].
func (c *Canvas) SetOpacity(id string, v float64) error {
	l, err := c.Layer(id)
	if err != nil {
		return err
	}
	l.setOpacity(v)
	return nil
}

// SetHidden shows or hides a layer.
func (c *Canvas) SetHidden(id string, hidden bool) error {
	l, err := c.Layer(id)
	if err != nil {
		return err
	}
	l.Hidden = hidden
	return nil
}

// Reorder rearranges the stack. ids lists every layer ID, top first.
func (c *Canvas) Reorder(ids []string) error {
	if len(ids) != len(c.layers) {
		return ErrInvalidOrder
	}
	seen := make(map[string]bool, len(ids))
	out := make([]*Layer, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return ErrInvalidOrder
		}
		seen[id] = true
		l, err := c.Layer(id)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
		}
		out = append(out, l)
	}
	c.layers = out
	return nil
}

// Merge flattens the listed layers into one new top layer named
// "Merged Layer". Their committed histories are concatenated bottom to top
// into a single stroke, so the merged pixels equal the opaque composite of
// the sources. The sources are removed and the new layer becomes active.
func (c *Canvas) Merge(ids []string) (*Layer, error) {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		l, err := c.Layer(id)
		if err != nil {
			return nil, err
		}
		if l == c.drawing {
			return nil, ErrBusy
		}
		selected[id] = true
	}
	if len(selected) < 2 {
		return nil, errors.New("merge needs at least two layers")
	}

	var flat pixel.Stroke
	remaining := make([]*Layer, 0, len(c.layers))
	for i := len(c.layers) - 1; i >= 0; i-- {
		l := c.layers[i]
		if !selected[l.ID] {
			continue
		}
		for _, st := range l.history.Committed() {
			flat = append(flat, st...)
		}
	}
	for _, l := range c.layers {
		if !selected[l.ID] {
			remaining = append(remaining, l)
		}
	}

	merged := c.newLayer("", "Merged Layer")
	if len(flat) > 0 {
		merged.history.Load([]pixel.Stroke{flat})
	}
	c.layers = append([]*Layer{merged}, remaining...)
	c.active = merged.ID
	return merged, nil
}

// ReplaceHistory loads strokes into a layer, replacing its history, and
// fires the change hook. Image import uses it.
func (c *Canvas) ReplaceHistory(id string, strokes []pixel.Stroke) error {
	l, err := c.Layer(id)
	if err != nil {
		return err
	}
	if l == c.drawing {
		return ErrBusy
	}
	l.history.Load(strokes)
	if c.onChange != nil {
		c.onChange(l.ID, l.history.Committed())
	}
	return nil
}

// State is the persisted form of a canvas.
type State struct {
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Layers []LayerData `json:"layers"`
}

// State returns the persisted form of the canvas with committed strokes only.
func (c *Canvas) State() State {
	s := State{Width: c.width, Height: c.height, Layers: make([]LayerData, len(c.layers))}
	for i, l := range c.layers {
		s.Layers[i] = l.Data()
	}
	return s
}

// Hydrate rebuilds a canvas from its persisted form. Layers without an ID
// get one, and a state without layers yields a single empty layer. The top
// layer becomes active.
func Hydrate(s State, opts ...Option) *Canvas {
	c := newCanvas(s.Width, s.Height, opts)
	seen := make(map[string]bool, len(s.Layers))
	for _, d := range s.Layers {
		id := d.ID
		if seen[id] {
			id = ""
		}
		l := c.newLayer(id, d.Name)
		seen[l.ID] = true
		l.Hidden = d.Hidden
		l.setOpacity(d.Opacity)
		l.history.Load(d.History)
		c.layers = append(c.layers, l)
	}
	if len(c.layers) == 0 {
		c.AddLayer("")
	}
	c.active = c.layers[0].ID
	return c
}
