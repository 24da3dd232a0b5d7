package repository

import (
	"context"

	"go-drawing-inspector/pkg/models"
)

// Artifact names under drawings/{id}/
const (
	ArtifactSliceGrid  = "slice_grid.json"
	ArtifactMergedText = "merged_text.json"
	ArtifactComponents = "components.json"
	ArtifactOverview   = "overview.json"
)

// ArtifactRepository persists the per-drawing outputs of a run so later
// stages can reuse them
type ArtifactRepository interface {
	// SaveSliceGrid stores the tile layout used by a run
	SaveSliceGrid(ctx context.Context, drawingID string, grid models.SliceGrid) (string, error)

	// LoadSliceGrid returns ErrArtifactNotFound when no grid was saved
	LoadSliceGrid(ctx context.Context, drawingID string) (*models.SliceGrid, error)

	SaveMergedText(ctx context.Context, drawingID string, regions []models.TextRegion) (string, error)
	LoadMergedText(ctx context.Context, drawingID string) ([]models.TextRegion, error)

	SaveComponents(ctx context.Context, drawingID string, components []models.GlobalComponent) (string, error)
	LoadComponents(ctx context.Context, drawingID string) ([]models.GlobalComponent, error)

	SaveOverview(ctx context.Context, drawingID string, overview models.DrawingOverview) (string, error)
	LoadOverview(ctx context.Context, drawingID string) (*models.DrawingOverview, error)
}
