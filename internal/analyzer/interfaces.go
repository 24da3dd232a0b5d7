package analyzer

import (
	"context"
	"image"

	"go-drawing-inspector/pkg/models"
)

// DrawingAnalyzer runs the tile pipeline over one drawing
type DrawingAnalyzer interface {
	// Analyze returns the merged components of the drawing. Tile-level
	// problems are reported as warnings on the result; an error means the
	// grid was invalid or a whole batch failed.
	Analyze(ctx context.Context, drawing models.Drawing, img image.Image, opts AnalysisOptions) (*models.AnalysisResult, error)

	// Lifecycle management
	Close() error
}
