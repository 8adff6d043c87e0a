package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alimasry/go-pixel-editor/canvas"
)

// MemoryStore is an in-memory implementation of ProjectStore.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*ProjectInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[string]*ProjectInfo)}
}

func (s *MemoryStore) Create(_ context.Context, info ProjectInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[info.ID]; exists {
		return fmt.Errorf("project %q: %w", info.ID, ErrExists)
	}
	now := time.Now()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = now
	}
	cp := copyInfo(info)
	s.projects[info.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*ProjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	info := copyInfo(*p)
	return &info, nil
}

// List returns every project without layers, most recently updated first.
func (s *MemoryStore) List(_ context.Context) ([]ProjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ProjectInfo, 0, len(s.projects))
	for _, p := range s.projects {
		info := copyInfo(*p)
		info.Layers = nil
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateMeta(_ context.Context, id, name string, width, height int, palettes []Palette) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	p.Name = name
	p.Width = width
	p.Height = height
	p.Palettes = copyPalettes(palettes)
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SaveLayers(_ context.Context, id string, layers []canvas.LayerData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	p.Layers = copyLayers(layers)
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	delete(s.projects, id)
	return nil
}

// put stores info as is, replacing any existing entry. CachedStore uses it
// to seed the cache from the backing store.
func (s *MemoryStore) put(info ProjectInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyInfo(info)
	s.projects[info.ID] = &cp
}
