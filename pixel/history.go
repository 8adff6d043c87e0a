package pixel

// DefaultMaxSteps is the number of strokes a history retains by default.
const DefaultMaxSteps = 50

// Option configures a History.
type Option func(*History)

// WithMaxSteps bounds the number of retained strokes. Values below one are ignored.
func WithMaxSteps(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.maxSteps = n
		}
	}
}

// WithOnChange registers the history-changed callback. It receives a fresh
// copy of the committed strokes after every committing operation.
func WithOnChange(fn func([]Stroke)) Option {
	return func(h *History) { h.onChange = fn }
}

// History is the stroke log of one drawing surface together with the sparse
// grid derived from it. The grid always equals Rebuild(strokes, index).
//
// A History is a two-state machine. Start moves it from idle to drawing;
// Record and RecordBatch feed the open stroke; Stop commits or rolls back.
// Calls that are invalid in the current state are silent no-ops.
//
// History is not safe for concurrent use.
type History struct {
	width, height int
	maxSteps      int
	onChange      func([]Stroke)

	strokes []Stroke
	index   int
	grid    *Grid

	drawing     bool
	drawn       bool
	backup      []Stroke
	backupIndex int
}

// NewHistory creates an empty history for a width x height surface.
// The dimensions bound flood fill; recorded points are not clipped.
func NewHistory(width, height int, opts ...Option) *History {
	h := &History{
		width:    width,
		height:   height,
		maxSteps: DefaultMaxSteps,
		index:    -1,
		grid:     NewGrid(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load replaces the history with strokes and rebuilds the grid, leaving the
// index at the last stroke. It does not notify. Ignored while drawing.
func (h *History) Load(strokes []Stroke) {
	if h.drawing {
		return
	}
	h.strokes = make([]Stroke, len(strokes))
	for i, s := range strokes {
		h.strokes[i] = s.Clone()
	}
	h.index = len(h.strokes) - 1
	h.grid = Rebuild(h.strokes, h.index)
}

// Start opens a new stroke. Redo-able strokes beyond the index are discarded.
func (h *History) Start() {
	if h.drawing {
		return
	}
	h.backup = h.strokes
	h.backupIndex = h.index

	base := make([]Stroke, h.index+1, h.index+2)
	copy(base, h.strokes[:h.index+1])
	h.strokes = append(base, Stroke{})
	h.index = len(h.strokes) - 1

	h.drawing = true
	h.drawn = false
}

// Record adds one point to the open stroke unless it would not change the cell.
func (h *History) Record(p Point) {
	if !h.drawing {
		return
	}
	h.record(p)
}

// RecordBatch adds points to the open stroke in order, skipping each point
// that would not change its cell at the moment it is applied.
func (h *History) RecordBatch(points []Point) {
	if !h.drawing {
		return
	}
	for _, p := range points {
		h.record(p)
	}
}

func (h *History) record(p Point) {
	if p.Color == "" {
		p.Color = Transparent
	}
	if h.grid.Get(p.X, p.Y) == p.Color {
		return
	}
	h.grid.Apply(p)
	h.strokes[h.index] = append(h.strokes[h.index], p)
	h.drawn = true
}

// Stop closes the open stroke. A stroke that changed nothing is rolled back
// as if Start had never been called. Otherwise the oldest strokes beyond the
// step limit are dropped, the grid is rebuilt from the strokes that remain,
// and the change callback fires.
func (h *History) Stop() {
	if !h.drawing {
		return
	}
	h.drawing = false

	if !h.drawn {
		h.rollback()
		return
	}
	h.backup = nil

	if over := len(h.strokes) - h.maxSteps; over > 0 {
		h.strokes = h.strokes[over:]
		h.index -= over
		h.grid = Rebuild(h.strokes, h.index)
		Logger().Debug("pixel: history trimmed", "dropped", over, "retained", len(h.strokes))
	}
	h.notify()
}

// Cancel discards the open stroke even if it recorded points, restoring the
// history and grid to their state before Start.
func (h *History) Cancel() {
	if !h.drawing {
		return
	}
	h.drawing = false
	drawn := h.drawn
	h.rollback()
	if drawn {
		h.grid = Rebuild(h.strokes, h.index)
	}
}

func (h *History) rollback() {
	h.strokes = h.backup
	h.index = h.backupIndex
	h.backup = nil
	Logger().Debug("pixel: stroke rolled back", "index", h.index)
}

// Fill flood-fills the 4-connected region around (x, y) with c and returns
// the emitted stroke. The region's color is read from the grid now. When the
// history is idle the fill is committed as its own stroke; while drawing it
// joins the open stroke. A start outside the surface, or a region that
// already has color c, yields an empty stroke and leaves the history as is.
func (h *History) Fill(x, y int, c Color) Stroke {
	if c == "" {
		c = Transparent
	}
	if x < 0 || x >= h.width || y < 0 || y >= h.height {
		return Stroke{}
	}
	if h.grid.Get(x, y) == c {
		return Stroke{}
	}

	idle := !h.drawing
	if idle {
		h.Start()
	}
	filled := FloodFill(h.grid, x, y, h.width, h.height, c)
	h.strokes[h.index] = append(h.strokes[h.index], filled...)
	if len(filled) > 0 {
		h.drawn = true
	}
	if idle {
		h.Stop()
	}
	return filled
}

// Undo steps the index back one stroke and rebuilds the grid.
// It reports whether anything changed.
func (h *History) Undo() bool {
	if h.drawing || h.index < 0 {
		return false
	}
	h.index--
	h.grid = Rebuild(h.strokes, h.index)
	h.notify()
	return true
}

// Redo steps the index forward one stroke and rebuilds the grid.
// It reports whether anything changed.
func (h *History) Redo() bool {
	if h.drawing || h.index >= len(h.strokes)-1 {
		return false
	}
	h.index++
	h.grid = Rebuild(h.strokes, h.index)
	h.notify()
	return true
}

// Clear empties the history and grid.
func (h *History) Clear() {
	if h.drawing {
		return
	}
	h.strokes = nil
	h.index = -1
	h.grid = NewGrid()
	h.notify()
}

func (h *History) notify() {
	if h.onChange != nil {
		h.onChange(h.Committed())
	}
}

// Committed returns a copy of the strokes up to and including the index.
// While a stroke is open it returns the log as it was before Start, so the
// open stroke is never reported as committed.
func (h *History) Committed() []Stroke {
	if h.drawing {
		return cloneStrokes(h.backup[:h.backupIndex+1])
	}
	return cloneStrokes(h.strokes[:h.index+1])
}

// Strokes returns a copy of every stroke, including redo-able ones. Like
// Committed it excludes an open stroke.
func (h *History) Strokes() []Stroke {
	if h.drawing {
		return cloneStrokes(h.backup)
	}
	return cloneStrokes(h.strokes)
}

// Get returns the current color at (x, y).
func (h *History) Get(x, y int) Color { return h.grid.Get(x, y) }

// Grid returns the live grid. Callers must not mutate it.
func (h *History) Grid() *Grid { return h.grid }

// Index returns the index of the last active stroke, or -1.
func (h *History) Index() int { return h.index }

// Len returns the number of strokes, including redo-able ones.
func (h *History) Len() int { return len(h.strokes) }

// Drawing reports whether a stroke is open.
func (h *History) Drawing() bool { return h.drawing }

// CanUndo reports whether Undo would change anything.
func (h *History) CanUndo() bool { return !h.drawing && h.index >= 0 }

// CanRedo reports whether Redo would change anything.
func (h *History) CanRedo() bool { return !h.drawing && h.index < len(h.strokes)-1 }

// Size returns the surface dimensions.
func (h *History) Size() (width, height int) { return h.width, h.height }
