package analyzer

import (
	"testing"
	"time"

	"go-drawing-inspector/internal/strategy"
	"go-drawing-inspector/pkg/models"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.TileSize != 2048 {
		t.Errorf("Expected TileSize to be 2048, got %d", opts.TileSize)
	}
	if opts.Overlap >= opts.TileSize {
		t.Errorf("Expected Overlap below TileSize, got %d", opts.Overlap)
	}
	if opts.BatchSize != 8 {
		t.Errorf("Expected BatchSize to be 8, got %d", opts.BatchSize)
	}
	if opts.ContextualChaining {
		t.Error("Expected ContextualChaining to be false by default")
	}
	if opts.FusionIoUThreshold != 0.5 {
		t.Errorf("Expected FusionIoUThreshold to be 0.5, got %f", opts.FusionIoUThreshold)
	}
	if opts.TileTimeout != 90*time.Second {
		t.Errorf("Expected TileTimeout to be 90s, got %s", opts.TileTimeout)
	}
	if name := opts.schedulingStrategy().GetStrategyName(); name != "concurrent" {
		t.Errorf("Expected concurrent strategy, got %s", name)
	}
}

func TestContextualOptions(t *testing.T) {
	opts := ContextualOptions()

	if !opts.ContextualChaining {
		t.Error("Expected ContextualChaining to be true")
	}
	if opts.ContextWindow != 1 {
		t.Errorf("Expected ContextWindow to be 1, got %d", opts.ContextWindow)
	}
	if name := opts.schedulingStrategy().GetStrategyName(); name != "chained_sequence" {
		t.Errorf("Expected chained_sequence strategy, got %s", name)
	}
}

func TestFastOptions(t *testing.T) {
	opts := FastOptions()

	if opts.BatchSize != 16 {
		t.Errorf("Expected BatchSize to be 16, got %d", opts.BatchSize)
	}
	if opts.ConcurrencyCap != 8 {
		t.Errorf("Expected ConcurrencyCap to be 8, got %d", opts.ConcurrencyCap)
	}
	if opts.VisionMaxEdge != 1024 {
		t.Errorf("Expected VisionMaxEdge to be 1024, got %d", opts.VisionMaxEdge)
	}
}

func TestQualityOptions(t *testing.T) {
	opts := QualityOptions()

	if opts.TileSize != 1536 || opts.Overlap != 384 {
		t.Errorf("Expected 1536/384 grid, got %d/%d", opts.TileSize, opts.Overlap)
	}
	if opts.VisionMaxEdge != 0 {
		t.Errorf("Expected full resolution, got %d", opts.VisionMaxEdge)
	}
	if opts.FuzzyIDDistance != 1 {
		t.Errorf("Expected FuzzyIDDistance to be 1, got %d", opts.FuzzyIDDistance)
	}
}

func TestOptionsChaining(t *testing.T) {
	grid := &models.SliceGrid{TileSize: 1024}
	var called bool

	opts := DefaultOptions().
		WithGrid(1024, 64).
		WithBatching(6, 2).
		WithChaining(2, strategy.ScopeRow).
		WithReusedTiles(grid).
		WithProgress(func(models.ProgressEvent) { called = true }).
		WithoutBlankSkipping()

	if opts.TileSize != 1024 || opts.Overlap != 64 {
		t.Errorf("Expected 1024/64 grid, got %d/%d", opts.TileSize, opts.Overlap)
	}
	if opts.BatchSize != 6 || opts.ConcurrencyCap != 2 {
		t.Errorf("Expected batching 6/2, got %d/%d", opts.BatchSize, opts.ConcurrencyCap)
	}
	if !opts.ContextualChaining || opts.ChainScope != strategy.ScopeRow || opts.ContextWindow != 2 {
		t.Errorf("Unexpected chaining settings %+v", opts)
	}
	if opts.ReuseExistingTiles != grid {
		t.Error("Expected reused tiles to be set")
	}
	if opts.SkipBlankTiles {
		t.Error("Expected blank skipping to be disabled")
	}
	opts.Progress(models.ProgressEvent{})
	if !called {
		t.Error("Expected progress callback to be wired")
	}
	if name := opts.schedulingStrategy().GetStrategyName(); name != "chained_row" {
		t.Errorf("Expected chained_row strategy, got %s", name)
	}

	// value receivers leave the original untouched
	if DefaultOptions().ContextualChaining {
		t.Error("Expected defaults to be unaffected")
	}
}
