// Package batch splits a tile set into fixed-size, index-bounded batches.
package batch

import (
	"fmt"
	"sort"

	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/pkg/models"
)

// Schedule returns ceil(n/size) batches whose ranges partition [0, n)
func Schedule(n, size int) ([]models.Batch, error) {
	if n < 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("tile count must not be negative (got %d)", n), nil)
	}
	if size <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("batch size must be positive (got %d)", size), nil)
	}

	count := (n + size - 1) / size
	batches := make([]models.Batch, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := min(start+size, n)
		batches = append(batches, models.Batch{BatchIndex: i, Start: start, End: end})
	}
	return batches, nil
}

// Validate checks that batches cover [0, n) with no gap and no overlap
func Validate(batches []models.Batch, n int) error {
	sorted := make([]models.Batch, len(batches))
	copy(sorted, batches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	next := 0
	for _, b := range sorted {
		if b.Start >= b.End {
			return fmt.Errorf("batch %d has empty range [%d,%d)", b.BatchIndex, b.Start, b.End)
		}
		if b.Start < next {
			return fmt.Errorf("batch %d overlaps previous range at %d", b.BatchIndex, b.Start)
		}
		if b.Start > next {
			return fmt.Errorf("gap [%d,%d) before batch %d", next, b.Start, b.BatchIndex)
		}
		next = b.End
	}
	if next != n {
		return fmt.Errorf("batches cover [0,%d), expected [0,%d)", next, n)
	}
	return nil
}

// Plan pairs a grid with its batches so that callers can only reach the
// tiles of the batch they are processing
type Plan struct {
	grid    models.SliceGrid
	batches []models.Batch
}

// NewPlan schedules the tiles of grid into batches of the given size
func NewPlan(grid models.SliceGrid, size int) (*Plan, error) {
	batches, err := Schedule(len(grid.Tiles), size)
	if err != nil {
		return nil, err
	}
	return &Plan{grid: grid, batches: batches}, nil
}

// Batches returns the scheduled batches in increasing index order
func (p *Plan) Batches() []models.Batch {
	return p.batches
}

// Len returns the number of batches
func (p *Plan) Len() int {
	return len(p.batches)
}

// TileCount returns the total number of tiles across all batches
func (p *Plan) TileCount() int {
	return len(p.grid.Tiles)
}

// Tiles returns the tiles assigned to batch b and nothing else
func (p *Plan) Tiles(b models.Batch) []models.TileSpec {
	return b.Tiles(p.grid)
}
