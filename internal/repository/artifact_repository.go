package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"go-drawing-inspector/internal/storage"
	"go-drawing-inspector/pkg/models"
)

const jsonContentType = "application/json"

// StoreArtifactRepository implements ArtifactRepository on an ObjectStore
type StoreArtifactRepository struct {
	store storage.ObjectStore
}

// NewStoreArtifactRepository creates an artifact repository backed by store
func NewStoreArtifactRepository(store storage.ObjectStore) ArtifactRepository {
	return &StoreArtifactRepository{store: store}
}

// ArtifactKey returns the object key of an artifact
func ArtifactKey(drawingID, name string) (string, error) {
	id := strings.TrimSpace(drawingID)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidDrawingID, drawingID)
	}
	return path.Join("drawings", id, name), nil
}

func (r *StoreArtifactRepository) save(ctx context.Context, drawingID, name string, v interface{}) (string, error) {
	key, err := ArtifactKey(drawingID, name)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	url, err := r.store.Put(ctx, key, data, jsonContentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return url, nil
}

func (r *StoreArtifactRepository) load(ctx context.Context, drawingID, name string, v interface{}) error {
	key, err := ArtifactKey(drawingID, name)
	if err != nil {
		return err
	}
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, key)
		}
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactCorrupted, key, err)
	}
	return nil
}

func (r *StoreArtifactRepository) SaveSliceGrid(ctx context.Context, drawingID string, grid models.SliceGrid) (string, error) {
	return r.save(ctx, drawingID, ArtifactSliceGrid, grid)
}

func (r *StoreArtifactRepository) LoadSliceGrid(ctx context.Context, drawingID string) (*models.SliceGrid, error) {
	var grid models.SliceGrid
	if err := r.load(ctx, drawingID, ArtifactSliceGrid, &grid); err != nil {
		return nil, err
	}
	return &grid, nil
}

func (r *StoreArtifactRepository) SaveMergedText(ctx context.Context, drawingID string, regions []models.TextRegion) (string, error) {
	if regions == nil {
		regions = []models.TextRegion{}
	}
	return r.save(ctx, drawingID, ArtifactMergedText, regions)
}

func (r *StoreArtifactRepository) LoadMergedText(ctx context.Context, drawingID string) ([]models.TextRegion, error) {
	var regions []models.TextRegion
	if err := r.load(ctx, drawingID, ArtifactMergedText, &regions); err != nil {
		return nil, err
	}
	return regions, nil
}

func (r *StoreArtifactRepository) SaveComponents(ctx context.Context, drawingID string, components []models.GlobalComponent) (string, error) {
	if components == nil {
		components = []models.GlobalComponent{}
	}
	return r.save(ctx, drawingID, ArtifactComponents, components)
}

func (r *StoreArtifactRepository) LoadComponents(ctx context.Context, drawingID string) ([]models.GlobalComponent, error) {
	var components []models.GlobalComponent
	if err := r.load(ctx, drawingID, ArtifactComponents, &components); err != nil {
		return nil, err
	}
	return components, nil
}

func (r *StoreArtifactRepository) SaveOverview(ctx context.Context, drawingID string, overview models.DrawingOverview) (string, error) {
	return r.save(ctx, drawingID, ArtifactOverview, overview)
}

func (r *StoreArtifactRepository) LoadOverview(ctx context.Context, drawingID string) (*models.DrawingOverview, error) {
	var ov models.DrawingOverview
	if err := r.load(ctx, drawingID, ArtifactOverview, &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}
