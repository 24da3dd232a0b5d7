package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/internal/recognition"
	"go-drawing-inspector/internal/slicing"
	"go-drawing-inspector/pkg/models"
)

type fakeText struct {
	calls atomic.Int64
	fail  func(key string) error
}

func (f *fakeText) Recognize(ctx context.Context, tile recognition.TileImage) ([]models.TextRegion, error) {
	f.calls.Add(1)
	key := tile.Tile.Key()
	if f.fail != nil {
		if err := f.fail(key); err != nil {
			return nil, err
		}
	}
	return []models.TextRegion{{Text: "T " + key, Confidence: 0.9, BBox: models.BBox{X1: 5, Y1: 5, X2: 40, Y2: 15}}}, nil
}

type fakeVision struct {
	calls   atomic.Int64
	mu      sync.Mutex
	prompts map[string]string
	answer  func(ctx context.Context, key string) (string, error)
}

func (f *fakeVision) Analyze(ctx context.Context, tile recognition.TileImage, prompt string) (string, error) {
	f.calls.Add(1)
	key := tile.Tile.Key()

	f.mu.Lock()
	if f.prompts == nil {
		f.prompts = make(map[string]string)
	}
	f.prompts[key] = prompt
	f.mu.Unlock()

	if f.answer != nil {
		return f.answer(ctx, key)
	}
	return columnAnswer(key), nil
}

func (f *fakeVision) prompt(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[key]
}

func columnAnswer(key string) string {
	return fmt.Sprintf(`{"components":[{"component_id":"C-%s","component_type":"column","confidence":0.9,`+
		`"dimensions":{"section":"400x400","length":"3000mm"},"bbox":[10,10,50,50]}]}`, key)
}

type fakeModel struct {
	answer string
	err    error
}

func (f *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	return f.answer, f.err
}

const overviewAnswer = `{"title":"Level 2 structure","scale":"1:100","drawing_number":"S-02","component_types":["柱","beam"]}`

func createDrawing(width, height int) *image.RGBA {
	return createTestImage(width, height, color.White)
}

func testOptions() AnalysisOptions {
	return DefaultOptions().
		WithGrid(100, 0).
		WithBatching(8, 4).
		WithoutBlankSkipping()
}

func newTestEngine(t *testing.T, text *fakeText, vision *fakeVision) *Engine {
	t.Helper()
	engine, err := NewEngine(text, vision, &fakeModel{answer: overviewAnswer})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine
}

func TestNewEngine_RequiresChannels(t *testing.T) {
	if _, err := NewEngine(nil, &fakeVision{}, nil); err == nil {
		t.Error("Expected error without text recognizer")
	}
	if _, err := NewEngine(&fakeText{}, nil, nil); err == nil {
		t.Error("Expected error without vision recognizer")
	}
}

func TestAnalyze_FullRun(t *testing.T) {
	text, vision := &fakeText{}, &fakeVision{}
	engine := newTestEngine(t, text, vision)

	var events []models.ProgressEvent
	opts := testOptions().WithProgress(func(e models.ProgressEvent) { events = append(events, e) })

	result, err := engine.Analyze(context.Background(), models.Drawing{ID: "d1"}, createDrawing(600, 400), opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Stats.Tiles != 24 || result.Stats.Batches != 3 {
		t.Errorf("Expected 24 tiles in 3 batches, got %d in %d", result.Stats.Tiles, result.Stats.Batches)
	}
	if len(result.GlobalComponents) != 24 {
		t.Errorf("Expected 24 components, got %d", len(result.GlobalComponents))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %+v", result.Warnings)
	}
	if result.Overview.Fallback || result.Overview.DrawingNumber != "S-02" {
		t.Errorf("Expected parsed overview, got %+v", result.Overview)
	}
	if len(result.TextRegions) != 24 {
		t.Errorf("Expected 24 text regions, got %d", len(result.TextRegions))
	}
	if text.calls.Load() != 24 || vision.calls.Load() != 24 {
		t.Errorf("Expected one call per tile and channel, got text=%d vision=%d", text.calls.Load(), vision.calls.Load())
	}
	if len(events) != 6 {
		t.Errorf("Expected a progress event per batch and pass, got %d", len(events))
	}

	// r1_c2 starts at (200,100); its local (10,10,50,50) lands at (210,110,250,150)
	var found bool
	for _, gc := range result.GlobalComponents {
		if gc.ComponentID != "C-r1_c2" {
			continue
		}
		found = true
		want := models.BBox{X1: 210, Y1: 110, X2: 250, Y2: 150}
		if gc.BBox != want {
			t.Errorf("Expected restored bbox %+v, got %+v", want, gc.BBox)
		}
		if gc.Quantity == nil || gc.Quantity.Volume < 0.479 || gc.Quantity.Volume > 0.481 {
			t.Errorf("Expected column volume 0.48, got %+v", gc.Quantity)
		}
	}
	if !found {
		t.Error("Expected component C-r1_c2 in result")
	}
}

func TestAnalyze_PartialFailure(t *testing.T) {
	vision := &fakeVision{
		answer: func(ctx context.Context, key string) (string, error) {
			if key == "r1_c3" {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return columnAnswer(key), nil
		},
	}
	engine := newTestEngine(t, &fakeText{}, vision)

	opts := testOptions()
	opts.TileTimeout = 50 * time.Millisecond

	result, err := engine.Analyze(context.Background(), models.Drawing{ID: "d1"}, createDrawing(600, 400), opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(result.GlobalComponents) != 23 {
		t.Errorf("Expected components from the other 23 tiles, got %d", len(result.GlobalComponents))
	}
	for _, gc := range result.GlobalComponents {
		for _, src := range gc.SourceBlocks {
			if src == "r1_c3" {
				t.Errorf("Expected no component from r1_c3, got %+v", gc)
			}
		}
	}

	warnings := result.WarningsFor("r1_c3")
	if len(warnings) != 1 {
		t.Fatalf("Expected exactly one warning for r1_c3, got %+v", result.Warnings)
	}
	if warnings[0].Kind != models.WarningTileRecognition || warnings[0].Channel != models.ChannelVision {
		t.Errorf("Unexpected warning %+v", warnings[0])
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Expected no other warnings, got %+v", result.Warnings)
	}
}

func TestTextStage_CallsRecognizerOnce(t *testing.T) {
	text := &fakeText{}
	grid, err := slicing.BuildGrid(200, 100, 100, 0)
	if err != nil {
		t.Fatalf("Failed to build grid: %v", err)
	}
	r := newRun("run", models.Drawing{ID: "d1", Width: 200, Height: 100}, createDrawing(200, 100), testOptions(), grid, false)
	stage := &textStage{recognizer: text}
	tile := grid.Tiles[1]

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := stage.process(context.Background(), r, tile); err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	regions, err := stage.process(context.Background(), r, tile)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := text.calls.Load(); got != 1 {
		t.Errorf("Expected recognizer to be invoked once, got %d", got)
	}
	if len(regions) != 1 || regions[0].TileKey != "r0_c1" {
		t.Errorf("Unexpected cached regions %+v", regions)
	}
}

func TestVisionStage_ParseFailureIsTileScoped(t *testing.T) {
	vision := &fakeVision{
		answer: func(ctx context.Context, key string) (string, error) {
			if key == "r0_c0" {
				return "I could not find any components.", nil
			}
			return "```json\n" + columnAnswer(key) + "\n```", nil
		},
	}
	engine := newTestEngine(t, &fakeText{}, vision)

	result, err := engine.Analyze(context.Background(), models.Drawing{ID: "d1"}, createDrawing(200, 100), testOptions())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.GlobalComponents) != 1 || result.GlobalComponents[0].ComponentID != "C-r0_c1" {
		t.Errorf("Expected only the fenced answer to yield a component, got %+v", result.GlobalComponents)
	}
	warnings := result.WarningsFor("r0_c0")
	if len(warnings) != 1 || warnings[0].Kind != models.WarningResponseParse {
		t.Errorf("Expected one parse warning for r0_c0, got %+v", result.Warnings)
	}
}

func TestAnalyze_ContextualChaining(t *testing.T) {
	vision := &fakeVision{}
	engine := newTestEngine(t, &fakeText{}, vision)

	opts := testOptions().WithBatching(2, 4).WithChaining(1, "sequence")
	result, err := engine.Analyze(context.Background(), models.Drawing{ID: "d1"}, createDrawing(400, 100), opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.GlobalComponents) != 4 {
		t.Fatalf("Expected 4 components, got %d", len(result.GlobalComponents))
	}

	if strings.Contains(vision.prompt("r0_c0"), "C-r0_") {
		t.Error("Expected no context for the first tile")
	}
	for _, tc := range []struct{ tile, previous string }{
		{"r0_c1", "C-r0_c0"},
		{"r0_c2", "C-r0_c1"}, // first tile of the second batch
		{"r0_c3", "C-r0_c2"},
	} {
		if !strings.Contains(vision.prompt(tc.tile), tc.previous) {
			t.Errorf("Expected prompt of %s to carry %s", tc.tile, tc.previous)
		}
	}
	if !strings.Contains(vision.prompt("r0_c1"), "S-02") {
		t.Error("Expected prompt to carry the drawing overview")
	}
}

func TestAnalyze_InvalidGridSpec(t *testing.T) {
	text, vision := &fakeText{}, &fakeVision{}
	engine := newTestEngine(t, text, vision)

	_, err := engine.Analyze(context.Background(), models.Drawing{}, createDrawing(200, 100), testOptions().WithGrid(100, 100))
	if !apperrors.IsType(err, apperrors.ErrorTypeInvalidGridSpec) {
		t.Fatalf("Expected invalid grid spec error, got %v", err)
	}
	if text.calls.Load() != 0 || vision.calls.Load() != 0 {
		t.Error("Expected no recognition calls for an invalid grid")
	}
}

func TestAnalyze_BatchExhausted(t *testing.T) {
	boom := errors.New("service unavailable")
	text := &fakeText{fail: func(string) error { return boom }}
	vision := &fakeVision{answer: func(context.Context, string) (string, error) { return "", boom }}
	engine := newTestEngine(t, text, vision)

	_, err := engine.Analyze(context.Background(), models.Drawing{}, createDrawing(200, 100), testOptions())
	if !apperrors.IsType(err, apperrors.ErrorTypeBatchExhausted) {
		t.Fatalf("Expected batch exhausted error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("Expected the tile failure to be wrapped")
	}
}

func TestAnalyze_TextFailureOnlyDegrades(t *testing.T) {
	text := &fakeText{fail: func(string) error { return errors.New("ocr crashed") }}
	engine := newTestEngine(t, text, &fakeVision{})

	result, err := engine.Analyze(context.Background(), models.Drawing{}, createDrawing(200, 100), testOptions())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.GlobalComponents) != 2 {
		t.Errorf("Expected vision results to survive, got %d", len(result.GlobalComponents))
	}
	if !result.Overview.Fallback {
		t.Error("Expected fallback overview without any text")
	}
}

func TestAnalyze_CancelledBetweenBatches(t *testing.T) {
	text, vision := &fakeText{}, &fakeVision{}
	engine := newTestEngine(t, text, vision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := testOptions().WithProgress(func(e models.ProgressEvent) {
		if e.Stage == "text" && e.BatchIndex == 0 {
			cancel()
		}
	})

	result, err := engine.Analyze(ctx, models.Drawing{}, createDrawing(600, 400), opts)
	if err != nil {
		t.Fatalf("Expected partial result, got error %v", err)
	}
	if !result.Cancelled {
		t.Error("Expected result to be marked cancelled")
	}
	if got := text.calls.Load(); got != 8 {
		t.Errorf("Expected only the first batch to be recognized, got %d calls", got)
	}
	if vision.calls.Load() != 0 {
		t.Error("Expected no vision calls after cancellation")
	}
	if len(result.Warnings) == 0 || result.Warnings[len(result.Warnings)-1].Kind != models.WarningCancelled {
		t.Errorf("Expected a cancellation warning, got %+v", result.Warnings)
	}
}

func TestAnalyze_SkipsBlankTiles(t *testing.T) {
	text, vision := &fakeText{}, &fakeVision{}
	engine := newTestEngine(t, text, vision)

	img := createDrawing(200, 100)
	// ink only on the left tile
	for y := 40; y < 60; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.Black)
		}
	}

	opts := DefaultOptions().WithGrid(100, 0)
	result, err := engine.Analyze(context.Background(), models.Drawing{}, img, opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Stats.SkippedBlank != 1 {
		t.Errorf("Expected one blank tile, got %d", result.Stats.SkippedBlank)
	}
	if text.calls.Load() != 1 || vision.calls.Load() != 1 {
		t.Errorf("Expected calls only for the inked tile, got text=%d vision=%d", text.calls.Load(), vision.calls.Load())
	}
}

func TestAnalyze_ReusesCompatibleGrid(t *testing.T) {
	engine := newTestEngine(t, &fakeText{}, &fakeVision{})

	existing, err := slicing.BuildGrid(300, 200, 100, 0)
	if err != nil {
		t.Fatalf("Failed to build grid: %v", err)
	}
	result, err := engine.Analyze(context.Background(), models.Drawing{}, createDrawing(300, 200), testOptions().WithReusedTiles(&existing))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Stats.GridReused {
		t.Error("Expected grid to be reused")
	}

	mismatched, _ := slicing.BuildGrid(300, 200, 50, 0)
	result, err = engine.Analyze(context.Background(), models.Drawing{}, createDrawing(300, 200), testOptions().WithReusedTiles(&mismatched))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Stats.GridReused || result.Stats.Tiles != 6 {
		t.Errorf("Expected a rebuilt 6 tile grid, got reused=%v tiles=%d", result.Stats.GridReused, result.Stats.Tiles)
	}
}

func TestAnalyze_DimensionMismatch(t *testing.T) {
	engine := newTestEngine(t, &fakeText{}, &fakeVision{})
	_, err := engine.Analyze(context.Background(), models.Drawing{Width: 10, Height: 10}, createDrawing(200, 100), testOptions())
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestEngine_Close(t *testing.T) {
	engine := newTestEngine(t, &fakeText{}, &fakeVision{})
	if err := engine.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}
	if _, err := engine.Analyze(context.Background(), models.Drawing{}, createDrawing(200, 100), testOptions()); err == nil {
		t.Error("Expected error after close")
	}
}
