package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alimasry/go-pixel-editor/canvas"
	"github.com/alimasry/go-pixel-editor/pixel"
)

// FirestoreStore is a Firestore-backed implementation of ProjectStore.
// Each project is a document in the projects collection; its layers live in
// a layers subcollection ordered by position. Firestore rejects nested
// arrays, so layer histories are stored as JSON strings.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: "projects",
	}
}

func (s *FirestoreStore) projectRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) layersCollection(projectID string) *firestore.CollectionRef {
	return s.projectRef(projectID).Collection("layers")
}

func notFound(id string) error { return fmt.Errorf("project %q: %w", id, ErrNotFound) }

func (s *FirestoreStore) Create(ctx context.Context, info ProjectInfo) error {
	now := time.Now()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = now
	}
	ref := s.projectRef(info.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err == nil {
			return fmt.Errorf("project %q: %w", info.ID, ErrExists)
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Create(ref, map[string]interface{}{
			"name":      info.Name,
			"width":     info.Width,
			"height":    info.Height,
			"palettes":  palettesToFirestore(info.Palettes),
			"createdAt": info.CreatedAt,
			"updatedAt": info.UpdatedAt,
		}); err != nil {
			return err
		}
		return s.writeLayers(tx, info.ID, info.Layers, nil)
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("project %q: %w", info.ID, ErrExists)
	}
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*ProjectInfo, error) {
	snap, err := s.projectRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	info := snapshotToProjectInfo(id, snap)

	iter := s.layersCollection(id).OrderBy("position", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	info.Layers = []canvas.LayerData{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		layer, err := snapshotToLayer(snap)
		if err != nil {
			return nil, err
		}
		info.Layers = append(info.Layers, layer)
	}
	return info, nil
}

func snapshotToProjectInfo(id string, snap *firestore.DocumentSnapshot) *ProjectInfo {
	data := snap.Data()
	name, _ := data["name"].(string)
	width, _ := data["width"].(int64)
	height, _ := data["height"].(int64)
	createdAt, _ := data["createdAt"].(time.Time)
	updatedAt, _ := data["updatedAt"].(time.Time)
	return &ProjectInfo{
		ID:        id,
		Name:      name,
		Width:     int(width),
		Height:    int(height),
		Palettes:  palettesFromFirestore(data["palettes"]),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func snapshotToLayer(snap *firestore.DocumentSnapshot) (canvas.LayerData, error) {
	data := snap.Data()
	layer := canvas.LayerData{ID: snap.Ref.ID, Opacity: 1}
	layer.Name, _ = data["name"].(string)
	layer.Hidden, _ = data["isHidden"].(bool)
	switch v := data["opacity"].(type) {
	case float64:
		layer.Opacity = v
	case int64:
		layer.Opacity = float64(v)
	}
	raw, _ := data["history"].(string)
	if raw == "" {
		layer.History = pixel.Strokes{}
		return layer, nil
	}
	history, err := pixel.DecodeStrokes([]byte(raw))
	if err != nil {
		return canvas.LayerData{}, fmt.Errorf("invalid history in layer %s: %w", snap.Ref.ID, err)
	}
	layer.History = history
	return layer, nil
}

func palettesToFirestore(palettes []Palette) []map[string]interface{} {
	out := make([]map[string]interface{}, len(palettes))
	for i, p := range palettes {
		colors := make([]string, len(p.Colors))
		for j, c := range p.Colors {
			colors[j] = string(c)
		}
		out[i] = map[string]interface{}{"name": p.Name, "colors": colors}
	}
	return out
}

func palettesFromFirestore(raw interface{}) []Palette {
	list, _ := raw.([]interface{})
	out := make([]Palette, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var p Palette
		p.Name, _ = m["name"].(string)
		colors, _ := m["colors"].([]interface{})
		for _, c := range colors {
			if s, ok := c.(string); ok {
				p.Colors = append(p.Colors, pixel.Color(s))
			}
		}
		out = append(out, p)
	}
	return out
}

// List returns project metadata without layers.
func (s *FirestoreStore) List(ctx context.Context) ([]ProjectInfo, error) {
	iter := s.client.Collection(s.collection).OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var result []ProjectInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *snapshotToProjectInfo(snap.Ref.ID, snap))
	}
	return result, nil
}

func (s *FirestoreStore) UpdateMeta(ctx context.Context, id, name string, width, height int, palettes []Palette) error {
	_, err := s.projectRef(id).Update(ctx, []firestore.Update{
		{Path: "name", Value: name},
		{Path: "width", Value: width},
		{Path: "height", Value: height},
		{Path: "palettes", Value: palettesToFirestore(palettes)},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return notFound(id)
	}
	return err
}

// SaveLayers replaces the project's layers in one transaction. Layer
// documents that are no longer present are deleted.
func (s *FirestoreStore) SaveLayers(ctx context.Context, id string, layers []canvas.LayerData) error {
	ref := s.projectRef(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); status.Code(err) == codes.NotFound {
			return notFound(id)
		} else if err != nil {
			return err
		}
		existing, err := tx.Documents(s.layersCollection(id)).GetAll()
		if err != nil {
			return err
		}
		if err := tx.Update(ref, []firestore.Update{{Path: "updatedAt", Value: time.Now()}}); err != nil {
			return err
		}
		return s.writeLayers(tx, id, layers, existing)
	})
}

func (s *FirestoreStore) writeLayers(tx *firestore.Transaction, id string, layers []canvas.LayerData, existing []*firestore.DocumentSnapshot) error {
	keep := make(map[string]bool, len(layers))
	for i, l := range layers {
		history, err := pixel.EncodeStrokes(l.History)
		if err != nil {
			return err
		}
		keep[l.ID] = true
		if err := tx.Set(s.layersCollection(id).Doc(l.ID), map[string]interface{}{
			"position": i,
			"name":     l.Name,
			"isHidden": l.Hidden,
			"opacity":  l.Opacity,
			"history":  string(history),
		}); err != nil {
			return err
		}
	}
	for _, snap := range existing {
		if keep[snap.Ref.ID] {
			continue
		}
		if err := tx.Delete(snap.Ref); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a project and its layers.
func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	ref := s.projectRef(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		layers, err := tx.Documents(s.layersCollection(id)).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range layers {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
	if status.Code(err) == codes.NotFound {
		return notFound(id)
	}
	return err
}
