package store

import (
	"context"
	"errors"
	"time"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
)

var (
	ErrNotFound = errors.New("project not found")
	ErrExists   = errors.New("project already exists")
)

// Palette is a named list of swatches saved with a project.
type Palette struct {
	Name   string        `json:"name"`
	Colors []pixel.Color `json:"colors"`
}

// ProjectInfo holds project metadata and its layers.
type ProjectInfo struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	Layers    []canvas.LayerData `json:"layers,omitempty"`
	Palettes  []Palette          `json:"palettes"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// State returns the canvas state stored in the project.
func (p *ProjectInfo) State() canvas.State {
	return canvas.State{Width: p.Width, Height: p.Height, Layers: p.Layers}
}

// ProjectStore abstracts project persistence.
// Implementations: MemoryStore, FirestoreStore, CachedStore.
type ProjectStore interface {
	Create(ctx context.Context, info ProjectInfo) error
	Get(ctx context.Context, id string) (*ProjectInfo, error)
	// List returns project metadata. Layers may be omitted.
	List(ctx context.Context) ([]ProjectInfo, error)
	UpdateMeta(ctx context.Context, id, name string, width, height int, palettes []Palette) error
	SaveLayers(ctx context.Context, id string, layers []canvas.LayerData) error
	Delete(ctx context.Context, id string) error
}

func copyLayers(layers []canvas.LayerData) []canvas.LayerData {
	if layers == nil {
		return nil
	}
	out := make([]canvas.LayerData, len(layers))
	for i, l := range layers {
		out[i] = l
		out[i].History = append(pixel.Strokes{}, l.History...)
	}
	return out
}

func copyPalettes(palettes []Palette) []Palette {
	if palettes == nil {
		return nil
	}
	out := make([]Palette, len(palettes))
	for i, p := range palettes {
		out[i] = Palette{Name: p.Name, Colors: append([]pixel.Color(nil), p.Colors...)}
	}
	return out
}

func copyInfo(info ProjectInfo) ProjectInfo {
	info.Layers = copyLayers(info.Layers)
	info.Palettes = copyPalettes(info.Palettes)
	return info
}
