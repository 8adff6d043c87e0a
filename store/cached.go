package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alimasry/go-pixel-editor/canvas"
)

// dirtyState tracks what needs flushing for a single project.
type dirtyState struct {
	created     bool   // project created locally but not yet in backing store
	metaDirty   bool   // name, size or palettes need writing
	layersDirty bool   // layers need writing
	deleted     bool   // project deleted locally, backing copy may still exist
	gen         uint64 // bumped on every local write
}

func (ds *dirtyState) clean() bool {
	return !ds.created && !ds.metaDirty && !ds.layersDirty && !ds.deleted
}

// CachedOption configures a CachedStore.
type CachedOption func(*CachedStore)

// WithLogger sets the logger used to report flush failures.
func WithLogger(l *slog.Logger) CachedOption {
	return func(cs *CachedStore) { cs.logger = l }
}

// CachedStore wraps a backing ProjectStore with an in-memory cache.
// All reads and writes are served from the cache. Dirty projects are
// flushed to the backing store periodically in the background.
type CachedStore struct {
	cache         *MemoryStore
	backing       ProjectStore
	mu            sync.Mutex
	dirty         map[string]*dirtyState
	flushInterval time.Duration
	logger        *slog.Logger
	stop          chan struct{}
	done          chan struct{}
}

// NewCachedStore creates a CachedStore that caches in memory and flushes
// dirty projects to the backing store every flushInterval.
func NewCachedStore(backing ProjectStore, flushInterval time.Duration, opts ...CachedOption) *CachedStore {
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		dirty:         make(map[string]*dirtyState),
		flushInterval: flushInterval,
		logger:        slog.Default(),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(cs)
	}
	go cs.flushLoop()
	return cs
}

// markLocked returns the dirty state for id, creating it if needed.
// cs.mu must be held.
func (cs *CachedStore) markLocked(id string) *dirtyState {
	ds := cs.dirty[id]
	if ds == nil {
		ds = &dirtyState{}
		cs.dirty[id] = ds
	}
	ds.gen++
	return ds
}

func (cs *CachedStore) deletedLocked(id string) bool {
	ds := cs.dirty[id]
	return ds != nil && ds.deleted
}

func (cs *CachedStore) Create(ctx context.Context, info ProjectInfo) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.deletedLocked(info.ID) {
		if _, err := cs.cache.Get(ctx, info.ID); err == nil {
			return fmt.Errorf("project %q: %w", info.ID, ErrExists)
		}
		if _, err := cs.backing.Get(ctx, info.ID); err == nil {
			return fmt.Errorf("project %q: %w", info.ID, ErrExists)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if err := cs.cache.Create(ctx, info); err != nil {
		return err
	}
	ds := cs.markLocked(info.ID)
	if !ds.deleted {
		ds.created = true
	}
	// Otherwise the stale backing copy is deleted and recreated on flush.
	return nil
}

func (cs *CachedStore) Get(ctx context.Context, id string) (*ProjectInfo, error) {
	info, err := cs.cache.Get(ctx, id)
	if err == nil {
		return info, nil
	}
	cs.mu.Lock()
	deleted := cs.deletedLocked(id)
	cs.mu.Unlock()
	if deleted {
		return nil, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	// Cache miss, load from backing store.
	if err := cs.loadFromBacking(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.Get(ctx, id)
}

// List merges the backing store's projects with unflushed local changes.
func (cs *CachedStore) List(ctx context.Context) ([]ProjectInfo, error) {
	backing, err := cs.backing.List(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := cs.cache.List(ctx)
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	seen := make(map[string]bool, len(cached))
	result := make([]ProjectInfo, 0, len(backing)+len(cached))
	for _, p := range cached {
		seen[p.ID] = true
		result = append(result, p)
	}
	for _, p := range backing {
		if seen[p.ID] || cs.deletedLocked(p.ID) {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func (cs *CachedStore) UpdateMeta(ctx context.Context, id, name string, width, height int, palettes []Palette) error {
	// Ensure project is in cache.
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	if err := cs.cache.UpdateMeta(ctx, id, name, width, height, palettes); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.markLocked(id).metaDirty = true
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) SaveLayers(ctx context.Context, id string, layers []canvas.LayerData) error {
	// Ensure project is in cache.
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	if err := cs.cache.SaveLayers(ctx, id, layers); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.markLocked(id).layersDirty = true
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) Delete(ctx context.Context, id string) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	if err := cs.cache.Delete(ctx, id); err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ds := cs.markLocked(id)
	*ds = dirtyState{deleted: true, gen: ds.gen}
	return nil
}

// loadFromBacking loads a project from the backing store into the cache.
func (cs *CachedStore) loadFromBacking(ctx context.Context, id string) error {
	info, err := cs.backing.Get(ctx, id)
	if err != nil {
		return err
	}
	cs.cache.mu.RLock()
	_, exists := cs.cache.projects[id]
	cs.cache.mu.RUnlock()
	if !exists {
		cs.cache.put(*info)
	}
	return nil
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.flush()
		case <-cs.stop:
			cs.flush()
			return
		}
	}
}

// flush writes all dirty projects to the backing store.
func (cs *CachedStore) flush() {
	cs.mu.Lock()
	// Snapshot the dirty map and work on a copy.
	snapshot := make(map[string]dirtyState, len(cs.dirty))
	for id, ds := range cs.dirty {
		snapshot[id] = *ds
	}
	cs.mu.Unlock()

	ctx := context.Background()

	for id, ds := range snapshot {
		left := cs.flushOne(ctx, id, ds)

		// Update the authoritative dirty state.
		cs.mu.Lock()
		cur := cs.dirty[id]
		switch {
		case cur == nil:
		case cur.gen == ds.gen && left.clean():
			delete(cs.dirty, id)
		case cur.gen == ds.gen:
			left.gen = cur.gen
			*cur = left
		case !cur.deleted:
			// New writes arrived during the flush; keep them and what failed.
			cur.created = cur.created || left.created
			cur.metaDirty = cur.metaDirty || left.metaDirty
			cur.layersDirty = cur.layersDirty || left.layersDirty
		}
		cs.mu.Unlock()
	}
}

// flushOne writes one project and returns the parts that still need flushing.
func (cs *CachedStore) flushOne(ctx context.Context, id string, pending dirtyState) dirtyState {
	if pending.deleted {
		err := cs.backing.Delete(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			cs.logger.Error("cached store: delete failed", "project", id, "err", err)
			return pending
		}
		// A project recreated after the delete is written from scratch.
		pending = dirtyState{created: true}
	}

	info, err := cs.cache.Get(ctx, id)
	if err != nil {
		return dirtyState{}
	}

	// 1. Create project in backing store if needed.
	if pending.created {
		err := cs.backing.Create(ctx, *info)
		switch {
		case err == nil:
			return dirtyState{}
		case errors.Is(err, ErrExists):
			pending = dirtyState{metaDirty: true, layersDirty: true}
		default:
			cs.logger.Error("cached store: create failed", "project", id, "err", err)
			return pending
		}
	}

	// 2. Flush metadata.
	if pending.metaDirty {
		if err := cs.backing.UpdateMeta(ctx, id, info.Name, info.Width, info.Height, info.Palettes); err != nil {
			cs.logger.Error("cached store: metadata flush failed", "project", id, "err", err)
		} else {
			pending.metaDirty = false
		}
	}

	// 3. Flush layers.
	if pending.layersDirty {
		if err := cs.backing.SaveLayers(ctx, id, info.Layers); err != nil {
			cs.logger.Error("cached store: layers flush failed", "project", id, "err", err)
		} else {
			pending.layersDirty = false
		}
	}
	return pending
}

// Close signals the flush loop to perform a final flush and waits for it
// to complete.
func (cs *CachedStore) Close() {
	close(cs.stop)
	<-cs.done
}
