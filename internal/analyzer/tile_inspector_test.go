package analyzer

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestTileInspector_BlankPaper(t *testing.T) {
	inspector := NewTileInspector(0.6, 0.002)
	img := createTestImage(200, 100, color.White)

	m := inspector.Inspect(img)
	if m.InkRatio != 0 {
		t.Errorf("Expected no ink on white tile, got %f", m.InkRatio)
	}
	if math.Abs(m.MeanLuminance-1.0) > 0.01 {
		t.Errorf("Expected luminance ~1.0, got %f", m.MeanLuminance)
	}
	if m.RowStdDev > 1e-9 {
		t.Errorf("Expected zero row deviation, got %f", m.RowStdDev)
	}
	if !inspector.IsBlank(m) {
		t.Error("Expected white tile to be blank")
	}
}

func TestTileInspector_LineDrawing(t *testing.T) {
	inspector := NewTileInspector(0.6, 0.002)
	img := createTestImage(200, 100, color.White)

	// a horizontal wall line, 2px thick
	for y := 50; y < 52; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.Black)
		}
	}

	m := inspector.Inspect(img)
	if math.Abs(m.InkRatio-0.02) > 1e-9 {
		t.Errorf("Expected ink ratio 0.02, got %f", m.InkRatio)
	}
	if m.RowStdDev == 0 {
		t.Error("Expected row deviation for a drawn line")
	}
	if inspector.IsBlank(m) {
		t.Error("Expected tile with a line not to be blank")
	}
}

func TestTileInspector_OffsetBounds(t *testing.T) {
	inspector := NewTileInspector(0, 0.5)
	base := createTestImage(100, 100, color.Black)
	sub := base.SubImage(image.Rect(50, 50, 100, 100))

	m := inspector.Inspect(sub)
	if m.InkRatio != 1 {
		t.Errorf("Expected full ink on black sub-image, got %f", m.InkRatio)
	}
}

func TestTileInspector_EmptyImage(t *testing.T) {
	inspector := NewTileInspector(0.6, 0.002)
	m := inspector.Inspect(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if m != (TileMetrics{}) {
		t.Errorf("Expected zero metrics, got %+v", m)
	}
}

func TestTileInspector_ReusesRowBuffer(t *testing.T) {
	inspector := NewTileInspector(0.6, 0.002)

	tall := inspector.Inspect(createTestImage(2, 3000, color.Black))
	if tall.InkRatio != 1 {
		t.Errorf("Expected full ink on tall black tile, got %f", tall.InkRatio)
	}

	for i := 0; i < 3; i++ {
		short := inspector.Inspect(createTestImage(10, 10, color.White))
		if short.InkRatio != 0 || math.Abs(short.MeanLuminance-1.0) > 0.01 {
			t.Errorf("Run %d: stale rows leaked into short tile: %+v", i, short)
		}
	}
}
