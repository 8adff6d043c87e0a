package canvas

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/alimasry/go-pixel-editor/pixel"
)

// Layer is one independent drawing surface of a canvas.
type Layer struct {
	ID      string
	Name    string
	Hidden  bool
	opacity float64
	history *pixel.History
}

// Opacity returns the layer opacity in [0, 1].
func (l *Layer) Opacity() float64 { return l.opacity }

// Visible reports whether the layer is shown.
func (l *Layer) Visible() bool { return !l.Hidden }

// History returns the layer's stroke log.
func (l *Layer) History() *pixel.History { return l.history }

// Grid returns the layer's current pixels. Callers must not mutate it.
func (l *Layer) Grid() *pixel.Grid { return l.history.Grid() }

func (l *Layer) setOpacity(v float64) {
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	l.opacity = v
}

// Data returns the persisted form of the layer with its committed strokes.
func (l *Layer) Data() LayerData {
	return LayerData{
		ID:      l.ID,
		Name:    l.Name,
		Hidden:  l.Hidden,
		Opacity: l.opacity,
		History: l.history.Committed(),
	}
}

// LayerData is the persisted form of a layer, shaped like the project JSON
// the editor front end reads and writes.
type LayerData struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Hidden  bool          `json:"isHidden"`
	Opacity float64       `json:"opacity"`
	History pixel.Strokes `json:"defaultHistory"`
}

// UnmarshalJSON accepts the legacy "layers" key for the history and
// defaults a missing opacity to 1.
func (d *LayerData) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID      string        `json:"id"`
		Name    string        `json:"name"`
		Hidden  bool          `json:"isHidden"`
		Opacity *float64      `json:"opacity"`
		History pixel.Strokes `json:"defaultHistory"`
		Legacy  pixel.Strokes `json:"layers"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = LayerData{
		ID:      aux.ID,
		Name:    aux.Name,
		Hidden:  aux.Hidden,
		Opacity: 1,
		History: aux.History,
	}
	if aux.Opacity != nil {
		d.Opacity = *aux.Opacity
	}
	if len(aux.Legacy) > 0 {
		d.History = aux.Legacy
	}
	if d.History == nil {
		d.History = pixel.Strokes{}
	}
	return nil
}

func newLayerID() string { return uuid.NewString() }
