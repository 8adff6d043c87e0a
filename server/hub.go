package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
	"github.com/alimasry/go-pixel-editor/store"
)

type joinRequest struct {
	client    *Client
	projectID string
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithCanvasSize sets the size of projects created on first join.
func WithCanvasSize(width, height int) Option {
	return func(h *Hub) { h.width, h.height = width, height }
}

// WithMaxSteps bounds the undo history of every layer.
func WithMaxSteps(n int) Option {
	return func(h *Hub) { h.maxSteps = n }
}

// Hub manages project sessions and routes clients to the right session.
type Hub struct {
	store    store.ProjectStore
	logger   *slog.Logger
	width    int
	height   int
	maxSteps int
	sessions map[string]*Session
	mu       sync.RWMutex

	joinProject chan joinRequest
	quit        chan struct{}
	closeOnce   sync.Once
}

func NewHub(st store.ProjectStore, opts ...Option) *Hub {
	h := &Hub{
		store:       st,
		logger:      slog.Default(),
		width:       canvas.DefaultWidth,
		height:      canvas.DefaultHeight,
		maxSteps:    pixel.DefaultMaxSteps,
		sessions:    make(map[string]*Session),
		joinProject: make(chan joinRequest, 64),
		quit:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is the hub's main loop. It returns after Close.
func (h *Hub) Run() {
	for {
		select {
		case req := <-h.joinProject:
			h.handleJoinProject(req)
		case <-h.quit:
			return
		}
	}
}

func (h *Hub) handleJoinProject(req joinRequest) {
	s, err := h.openSession(context.Background(), req.projectID, true)
	if err != nil {
		h.logger.Error("hub: failed to open project", "project", req.projectID, "err", err)
		req.client.sendError("failed to load project")
		return
	}
	select {
	case s.join <- req.client:
	case <-s.done:
		req.client.sendError("project closed, join again")
	}
}

// openSession returns the running session for a project, starting one from
// the store if needed. With create set, a missing project is created with
// the hub's default size.
func (h *Hub) openSession(ctx context.Context, projectID string, create bool) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[projectID]; ok {
		return s, nil
	}

	info, err := h.store.Get(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) && create {
		// Create project in store if it doesn't exist.
		info = &store.ProjectInfo{
			ID:     projectID,
			Name:   projectID,
			Width:  h.width,
			Height: h.height,
			Layers: canvas.New(h.width, h.height).State().Layers,
		}
		if err := h.store.Create(ctx, *info); err != nil {
			return nil, err
		}
		h.logger.Info("hub: created project", "project", projectID)
	} else if err != nil {
		return nil, err
	}

	s := newSession(info, h.store, h.maxSteps, h.logger)
	h.sessions[projectID] = s
	go s.Run()
	return s, nil
}

// Edit applies fn to a project's canvas. A running session applies it on
// its goroutine; otherwise the project is loaded from the store, edited and
// saved back without starting a session.
func (h *Hub) Edit(ctx context.Context, projectID string, fn func(*canvas.Canvas) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[projectID]; ok {
		return s.Do(fn)
	}
	info, err := h.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	c := canvas.Hydrate(info.State(), canvas.WithMaxSteps(h.maxSteps))
	if err := fn(c); err != nil {
		return err
	}
	return h.store.SaveLayers(ctx, projectID, c.State().Layers)
}

// GetSession returns the session for a project, if active.
func (h *Hub) GetSession(projectID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[projectID]
}

// CloseSession stops a project's session, if active. Its clients receive
// reason as an error and must join again.
func (h *Hub) CloseSession(projectID, reason string) {
	h.mu.Lock()
	s, ok := h.sessions[projectID]
	delete(h.sessions, projectID)
	h.mu.Unlock()
	if ok {
		s.Close(reason)
	}
}

// Close stops the hub loop and every session. Open strokes are committed.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })

	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close("server shutting down")
	}
}
