// Package slicing partitions drawings into overlapping tiles and decides when
// a tile set produced by an earlier stage can be reused.
package slicing

import (
	"fmt"

	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/pkg/models"
)

// Validate checks slicing parameters without building anything
func Validate(width, height, tileSize, overlap int) error {
	switch {
	case width <= 0 || height <= 0:
		return apperrors.NewInvalidGridSpecError(
			fmt.Sprintf("image dimensions must be positive (got %dx%d)", width, height))
	case tileSize <= 0:
		return apperrors.NewInvalidGridSpecError(
			fmt.Sprintf("tile size must be positive (got %d)", tileSize))
	case overlap < 0:
		return apperrors.NewInvalidGridSpecError(
			fmt.Sprintf("overlap must not be negative (got %d)", overlap))
	case overlap >= tileSize:
		return apperrors.NewInvalidGridSpecError(
			fmt.Sprintf("overlap %d must be smaller than tile size %d", overlap, tileSize))
	}
	return nil
}

// GridDimensions returns the number of tile rows and columns for an image
func GridDimensions(width, height, tileSize, overlap int) (rows, cols int) {
	stride := tileSize - overlap
	return ceilDiv(height, stride), ceilDiv(width, stride)
}

// BuildGrid partitions a width x height image into overlapping tiles.
// Tiles start every tileSize-overlap pixels and the final row and column are
// clipped to the image boundary instead of padded.
func BuildGrid(width, height, tileSize, overlap int) (models.SliceGrid, error) {
	if err := Validate(width, height, tileSize, overlap); err != nil {
		return models.SliceGrid{}, err
	}

	stride := tileSize - overlap
	rows, cols := GridDimensions(width, height, tileSize, overlap)

	grid := models.SliceGrid{
		ImageWidth:  width,
		ImageHeight: height,
		TileSize:    tileSize,
		Overlap:     overlap,
		Tiles:       make([]models.TileSpec, 0, rows*cols),
	}

	for r := 0; r < rows; r++ {
		y := r * stride
		h := min(tileSize, height-y)
		for c := 0; c < cols; c++ {
			x := c * stride
			w := min(tileSize, width-x)
			grid.Tiles = append(grid.Tiles, models.TileSpec{
				Row:     y / stride,
				Col:     x / stride,
				XOffset: x,
				YOffset: y,
				Width:   w,
				Height:  h,
			})
		}
	}

	return grid, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
