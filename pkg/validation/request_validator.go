package validation

import (
	"fmt"
	"regexp"

	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/pkg/models"
)

// RequestLimits bounds the per-request overrides of the slicing parameters
type RequestLimits struct {
	MinTileSize       int
	MaxTileSize       int
	MaxBatchSize      int
	MaxConcurrencyCap int
}

// DefaultRequestLimits returns the limits applied to API requests
func DefaultRequestLimits() RequestLimits {
	return RequestLimits{
		MinTileSize:       256,
		MaxTileSize:       8192,
		MaxBatchSize:      64,
		MaxConcurrencyCap: 32,
	}
}

var drawingIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// RequestValidator checks analysis requests before any download starts
type RequestValidator struct {
	urls   *URLValidator
	limits RequestLimits
}

// NewRequestValidator creates a request validator
func NewRequestValidator(urls *URLValidator, limits RequestLimits) *RequestValidator {
	return &RequestValidator{urls: urls, limits: limits}
}

// ValidateRequest validates the URL, the drawing ID and every override
func (v *RequestValidator) ValidateRequest(req models.AnalysisRequest) error {
	if err := v.urls.ValidateDrawingURL(req.URL); err != nil {
		return err
	}
	if req.DrawingID != "" && !drawingIDPattern.MatchString(req.DrawingID) {
		return apperrors.NewValidationError("invalid drawing_id", nil).
			WithDetails("drawing_id %q must be 1-128 letters, digits, '.', '_' or '-'", req.DrawingID)
	}

	l := v.limits
	if req.TileSize != nil && (*req.TileSize < l.MinTileSize || *req.TileSize > l.MaxTileSize) {
		return outOfRange("tile_size", *req.TileSize, l.MinTileSize, l.MaxTileSize)
	}
	if req.Overlap != nil {
		if *req.Overlap < 0 {
			return outOfRange("overlap", *req.Overlap, 0, l.MaxTileSize-1)
		}
		if req.TileSize != nil && *req.Overlap >= *req.TileSize {
			return outOfRange("overlap", *req.Overlap, 0, *req.TileSize-1)
		}
	}
	if req.BatchSize != nil && (*req.BatchSize < 1 || *req.BatchSize > l.MaxBatchSize) {
		return outOfRange("batch_size", *req.BatchSize, 1, l.MaxBatchSize)
	}
	if req.ConcurrencyCap != nil && (*req.ConcurrencyCap < 1 || *req.ConcurrencyCap > l.MaxConcurrencyCap) {
		return outOfRange("concurrency_cap", *req.ConcurrencyCap, 1, l.MaxConcurrencyCap)
	}
	return nil
}

func outOfRange(field string, got, lo, hi int) error {
	return apperrors.NewValidationError(fmt.Sprintf("%s out of range", field), nil).
		WithDetails("%s must be between %d and %d, got %d", field, lo, hi, got)
}
