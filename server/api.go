package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
	"github.com/alimasry/go-pixel-editor/render"
	"github.com/alimasry/go-pixel-editor/store"
)

const (
	maxScale       = 64
	maxImportBytes = 16 << 20
	maxCanvasSide  = 1024
)

type projectAPI struct {
	hub *Hub
}

// projectRequest is the body of create and update calls.
type projectRequest struct {
	Name     string          `json:"name"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Palettes []store.Palette `json:"palettes"`
}

func (r *projectRequest) validate(defaultWidth, defaultHeight int) error {
	if r.Width == 0 {
		r.Width = defaultWidth
	}
	if r.Height == 0 {
		r.Height = defaultHeight
	}
	if r.Width < 1 || r.Height < 1 || r.Width > maxCanvasSide || r.Height > maxCanvasSide {
		return fmt.Errorf("canvas size must be between 1 and %d", maxCanvasSide)
	}
	return nil
}

func (a *projectAPI) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.hub.logger.Warn("api: write failed", "err", err)
	}
}

func (a *projectAPI) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, canvas.ErrLayerNotFound):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrExists), errors.Is(err, canvas.ErrBusy):
		code = http.StatusConflict
	default:
		a.hub.logger.Error("api: request failed", "err", err)
	}
	a.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (a *projectAPI) list(w http.ResponseWriter, r *http.Request) {
	projects, err := a.hub.store.List(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if projects == nil {
		projects = []store.ProjectInfo{}
	}
	a.writeJSON(w, http.StatusOK, projects)
}

func (a *projectAPI) create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := req.validate(a.hub.width, a.hub.height); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	info := store.ProjectInfo{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Width:    req.Width,
		Height:   req.Height,
		Layers:   canvas.New(req.Width, req.Height).State().Layers,
		Palettes: req.Palettes,
	}
	if err := a.hub.store.Create(r.Context(), info); err != nil {
		a.writeError(w, err)
		return
	}
	created, err := a.hub.store.Get(r.Context(), info.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, created)
}

func (a *projectAPI) get(w http.ResponseWriter, r *http.Request) {
	info, err := a.hub.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, info)
}

// update changes project metadata. A running session is closed so the
// next join picks up the new canvas size.
func (a *projectAPI) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := req.validate(a.hub.width, a.hub.height); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a.hub.CloseSession(id, "project settings changed, join again")
	if err := a.hub.store.UpdateMeta(r.Context(), id, req.Name, req.Width, req.Height, req.Palettes); err != nil {
		a.writeError(w, err)
		return
	}
	a.get(w, r)
}

func (a *projectAPI) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a.hub.CloseSession(id, "project deleted")
	if err := a.hub.store.Delete(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// compose renders a project from its live session if one is running, and
// from the store otherwise.
func (a *projectAPI) compose(ctx context.Context, id string) (*image.NRGBA, string, error) {
	info, err := a.hub.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if s := a.hub.GetSession(id); s != nil {
		if img, err := s.Image(); err == nil {
			return img, info.Name, nil
		}
	}
	return render.Compose(canvas.Hydrate(info.State())), info.Name, nil
}

func (a *projectAPI) image(w http.ResponseWriter, r *http.Request) {
	scale := 1
	if v := r.URL.Query().Get("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxScale {
			a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("scale must be between 1 and %d", maxScale)})
			return
		}
		scale = n
	}
	img, _, err := a.compose(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := render.WritePNG(&buf, render.Scale(img, scale)); err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (a *projectAPI) pdf(w http.ResponseWriter, r *http.Request) {
	img, name, err := a.compose(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := render.WritePDF(&buf, img, name); err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(buf.Bytes())
}

// importImage replaces a layer's history with an uploaded PNG or JPEG
// resampled to the canvas size.
func (a *projectAPI) importImage(w http.ResponseWriter, r *http.Request) {
	id, layerID := r.PathValue("id"), r.PathValue("layer")
	img, _, err := image.Decode(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid image"})
		return
	}
	err = a.hub.Edit(r.Context(), id, func(c *canvas.Canvas) error {
		width, height := c.Size()
		var strokes []pixel.Stroke
		if points := render.ImportImage(img, width, height); len(points) > 0 {
			strokes = []pixel.Stroke{points}
		}
		return c.ReplaceHistory(layerID, strokes)
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
