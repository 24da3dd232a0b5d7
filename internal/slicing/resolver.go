package slicing

import (
	"fmt"
	"sort"

	"go-drawing-inspector/pkg/models"
)

// Resolution is the outcome of checking a candidate tile set for reuse
type Resolution struct {
	Reusable bool
	Grid     models.SliceGrid
	Reason   string
}

func rebuild(format string, args ...interface{}) Resolution {
	return Resolution{Reason: fmt.Sprintf(format, args...)}
}

// ResolveShared decides whether candidate can stand in for the grid the
// caller would otherwise build. Reuse requires the same tile count, the same
// nominal tile size and exact coverage of width x height. Row and column are
// always recomputed from pixel offsets; stored indices are ignored.
func ResolveShared(candidate *models.SliceGrid, width, height, tileSize, overlap int) Resolution {
	if err := Validate(width, height, tileSize, overlap); err != nil {
		return rebuild("requested grid is invalid: %v", err)
	}
	if candidate == nil || len(candidate.Tiles) == 0 {
		return rebuild("no candidate tile set")
	}
	if candidate.TileSize != tileSize {
		return rebuild("tile size mismatch: candidate %d, requested %d", candidate.TileSize, tileSize)
	}

	rows, cols := GridDimensions(width, height, tileSize, overlap)
	if len(candidate.Tiles) != rows*cols {
		return rebuild("tile count mismatch: candidate %d, requested %d", len(candidate.Tiles), rows*cols)
	}

	stride := tileSize - overlap
	tiles := make([]models.TileSpec, len(candidate.Tiles))
	seen := make(map[string]struct{}, len(tiles))
	for i, t := range candidate.Tiles {
		if t.XOffset < 0 || t.YOffset < 0 || t.Width <= 0 || t.Height <= 0 ||
			t.XOffset+t.Width > width || t.YOffset+t.Height > height {
			return rebuild("tile at (%d,%d) lies outside %dx%d", t.XOffset, t.YOffset, width, height)
		}
		t.Row = t.YOffset / stride
		t.Col = t.XOffset / stride
		if _, dup := seen[t.Key()]; dup {
			return rebuild("duplicate tile key %s after re-deriving from offsets", t.Key())
		}
		seen[t.Key()] = struct{}{}
		tiles[i] = t
	}

	if reason, ok := covers(tiles, width, height); !ok {
		return rebuild("%s", reason)
	}

	sort.SliceStable(tiles, func(i, j int) bool {
		if tiles[i].Row != tiles[j].Row {
			return tiles[i].Row < tiles[j].Row
		}
		return tiles[i].Col < tiles[j].Col
	})

	return Resolution{
		Reusable: true,
		Grid: models.SliceGrid{
			ImageWidth:  width,
			ImageHeight: height,
			TileSize:    tileSize,
			Overlap:     overlap,
			Tiles:       tiles,
		},
		Reason: "candidate matches requested grid",
	}
}

// covers checks that the tiles span [0,width) x [0,height) without gaps.
// Each row of tiles must chain across the full width, and the rows must
// chain down the full height.
func covers(tiles []models.TileSpec, width, height int) (string, bool) {
	byRow := make(map[int][]models.TileSpec)
	for _, t := range tiles {
		byRow[t.Row] = append(byRow[t.Row], t)
	}

	type span struct{ start, end int }
	var vertical []span
	for row, rowTiles := range byRow {
		sort.Slice(rowTiles, func(i, j int) bool { return rowTiles[i].XOffset < rowTiles[j].XOffset })
		reach := 0
		top, bottom := rowTiles[0].YOffset, rowTiles[0].YOffset+rowTiles[0].Height
		for _, t := range rowTiles {
			if t.XOffset > reach {
				return fmt.Sprintf("horizontal gap in row %d at x=%d", row, reach), false
			}
			reach = max(reach, t.XOffset+t.Width)
			top = max(top, t.YOffset)
			bottom = min(bottom, t.YOffset+t.Height)
		}
		if reach != width {
			return fmt.Sprintf("row %d covers width %d, expected %d", row, reach, width), false
		}
		vertical = append(vertical, span{top, bottom})
	}

	sort.Slice(vertical, func(i, j int) bool { return vertical[i].start < vertical[j].start })
	reach := 0
	for _, s := range vertical {
		if s.start > reach {
			return fmt.Sprintf("vertical gap at y=%d", reach), false
		}
		reach = max(reach, s.end)
	}
	if reach != height {
		return fmt.Sprintf("tiles cover height %d, expected %d", reach, height), false
	}
	return "", true
}
