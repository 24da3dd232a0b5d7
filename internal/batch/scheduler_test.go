package batch

import (
	"testing"

	"go-drawing-inspector/internal/slicing"
	"go-drawing-inspector/pkg/models"
)

func TestSchedule_Partition(t *testing.T) {
	batches, err := Schedule(24, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []models.Batch{
		{BatchIndex: 0, Start: 0, End: 8},
		{BatchIndex: 1, Start: 8, End: 16},
		{BatchIndex: 2, Start: 16, End: 24},
	}
	if len(batches) != len(want) {
		t.Fatalf("expected %d batches, got %d", len(want), len(batches))
	}
	for i := range want {
		if batches[i] != want[i] {
			t.Errorf("batch %d: expected %+v, got %+v", i, want[i], batches[i])
		}
	}
	if err := Validate(batches, 24); err != nil {
		t.Errorf("expected valid partition: %v", err)
	}
}

func TestSchedule_Counts(t *testing.T) {
	tests := []struct {
		n, size     int
		wantBatches int
		lastLen     int
	}{
		{n: 0, size: 4, wantBatches: 0},
		{n: 1, size: 4, wantBatches: 1, lastLen: 1},
		{n: 25, size: 8, wantBatches: 4, lastLen: 1},
		{n: 7, size: 10, wantBatches: 1, lastLen: 7},
		{n: 9, size: 3, wantBatches: 3, lastLen: 3},
	}

	for _, tt := range tests {
		batches, err := Schedule(tt.n, tt.size)
		if err != nil {
			t.Fatalf("Schedule(%d,%d): %v", tt.n, tt.size, err)
		}
		if len(batches) != tt.wantBatches {
			t.Errorf("Schedule(%d,%d): expected %d batches, got %d", tt.n, tt.size, tt.wantBatches, len(batches))
			continue
		}
		if err := Validate(batches, tt.n); err != nil {
			t.Errorf("Schedule(%d,%d): %v", tt.n, tt.size, err)
		}
		if tt.wantBatches > 0 && batches[len(batches)-1].Len() != tt.lastLen {
			t.Errorf("Schedule(%d,%d): last batch len %d, want %d", tt.n, tt.size, batches[len(batches)-1].Len(), tt.lastLen)
		}
	}
}

func TestSchedule_RejectsBadInput(t *testing.T) {
	if _, err := Schedule(10, 0); err == nil {
		t.Error("expected error for zero batch size")
	}
	if _, err := Schedule(-1, 4); err == nil {
		t.Error("expected error for negative tile count")
	}
}

func TestValidate_DetectsDefects(t *testing.T) {
	tests := []struct {
		name    string
		batches []models.Batch
	}{
		{"gap", []models.Batch{{BatchIndex: 0, Start: 0, End: 4}, {BatchIndex: 1, Start: 5, End: 8}}},
		{"overlap", []models.Batch{{BatchIndex: 0, Start: 0, End: 5}, {BatchIndex: 1, Start: 4, End: 8}}},
		{"short", []models.Batch{{BatchIndex: 0, Start: 0, End: 4}, {BatchIndex: 1, Start: 4, End: 7}}},
		{"empty range", []models.Batch{{BatchIndex: 0, Start: 0, End: 0}, {BatchIndex: 1, Start: 0, End: 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.batches, 8); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPlan_TilesStayInsideBatch(t *testing.T) {
	grid, err := slicing.BuildGrid(12288, 8192, 2048, 0)
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}
	plan, err := NewPlan(grid, 8)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	seen := make(map[string]int)
	for _, b := range plan.Batches() {
		tiles := plan.Tiles(b)
		if len(tiles) != b.Len() {
			t.Errorf("batch %d: expected %d tiles, got %d", b.BatchIndex, b.Len(), len(tiles))
		}
		for i, tile := range tiles {
			if tile != grid.Tiles[b.Start+i] {
				t.Errorf("batch %d returned tile %s outside its range", b.BatchIndex, tile.Key())
			}
			seen[tile.Key()]++
		}
	}
	if len(seen) != plan.TileCount() {
		t.Errorf("expected %d distinct tiles, got %d", plan.TileCount(), len(seen))
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("tile %s processed %d times", key, n)
		}
	}
}
