package models

import (
	"fmt"
	"image"
)

// Drawing identifies the raster image under analysis.
// It is immutable for the duration of one analysis run.
type Drawing struct {
	ID       string `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileType string `json:"file_type"`
}

// TileSpec describes one rectangular tile of a drawing.
// Row and Col are derived from the pixel offsets and the grid stride,
// never from enumeration order.
type TileSpec struct {
	Row     int `json:"row"`
	Col     int `json:"col"`
	XOffset int `json:"x_offset"`
	YOffset int `json:"y_offset"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// Key returns the tile identity used by the cache and for source tracking
func (t TileSpec) Key() string {
	return TileKey(t.Row, t.Col)
}

// Rect returns the tile rectangle in drawing pixel space
func (t TileSpec) Rect() image.Rectangle {
	return image.Rect(t.XOffset, t.YOffset, t.XOffset+t.Width, t.YOffset+t.Height)
}

// TileKey formats a (row, col) pair as a tile key
func TileKey(row, col int) string {
	return fmt.Sprintf("r%d_c%d", row, col)
}

// ParseTileKey is the inverse of TileKey
func ParseTileKey(key string) (row, col int, ok bool) {
	if _, err := fmt.Sscanf(key, "r%d_c%d", &row, &col); err != nil {
		return 0, 0, false
	}
	return row, col, true
}

// SliceGrid is the ordered (row-major) set of tiles covering a drawing
type SliceGrid struct {
	ImageWidth  int        `json:"image_width"`
	ImageHeight int        `json:"image_height"`
	TileSize    int        `json:"tile_size"`
	Overlap     int        `json:"overlap"`
	Tiles       []TileSpec `json:"tiles"`
}

// Stride is the distance between the origins of adjacent tiles
func (g SliceGrid) Stride() int {
	return g.TileSize - g.Overlap
}

// Rows returns the number of tile rows in the grid
func (g SliceGrid) Rows() int {
	rows := 0
	for _, t := range g.Tiles {
		if t.Row+1 > rows {
			rows = t.Row + 1
		}
	}
	return rows
}

// Cols returns the number of tile columns in the grid
func (g SliceGrid) Cols() int {
	cols := 0
	for _, t := range g.Tiles {
		if t.Col+1 > cols {
			cols = t.Col + 1
		}
	}
	return cols
}

// Lookup finds a tile by key
func (g SliceGrid) Lookup(key string) (TileSpec, bool) {
	for _, t := range g.Tiles {
		if t.Key() == key {
			return t, true
		}
	}
	return TileSpec{}, false
}

// Batch is an index-bounded group of tiles processed together.
// The range is half-open: [Start, End).
type Batch struct {
	BatchIndex int `json:"batch_index"`
	Start      int `json:"start"`
	End        int `json:"end"`
}

// Len returns the number of tiles in the batch
func (b Batch) Len() int {
	return b.End - b.Start
}

// Tiles returns only the tiles whose index falls inside the batch range
func (b Batch) Tiles(grid SliceGrid) []TileSpec {
	start, end := b.Start, b.End
	if start < 0 {
		start = 0
	}
	if end > len(grid.Tiles) {
		end = len(grid.Tiles)
	}
	if start >= end {
		return nil
	}
	out := make([]TileSpec, end-start)
	copy(out, grid.Tiles[start:end])
	return out
}
