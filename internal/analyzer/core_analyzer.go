package analyzer

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync/atomic"
	"time"

	"go-drawing-inspector/internal/batch"
	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/internal/fusion"
	"go-drawing-inspector/internal/logger"
	"go-drawing-inspector/internal/quantity"
	"go-drawing-inspector/internal/recognition"
	"go-drawing-inspector/internal/slicing"
	"go-drawing-inspector/internal/strategy"
	"go-drawing-inspector/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine implements DrawingAnalyzer and orchestrates the tile pipeline:
// slicing, text pass, overview, vision pass, restoration, fusion and
// quantities.
type Engine struct {
	text        recognition.TextRecognizer
	vision      recognition.VisionRecognizer
	textTrack   *textStage
	visionTrack *visionStage
	overview    *overviewExtractor
	restorer    *fusion.Restorer
	quantities  *quantity.Engine
	closed      atomic.Bool
}

// NewEngine creates an engine. The language model is optional; without it
// every run uses the default overview.
func NewEngine(text recognition.TextRecognizer, vision recognition.VisionRecognizer, model recognition.LanguageModel) (*Engine, error) {
	if text == nil {
		return nil, fmt.Errorf("text recognizer is required")
	}
	if vision == nil {
		return nil, fmt.Errorf("vision recognizer is required")
	}

	return &Engine{
		text:        text,
		vision:      vision,
		textTrack:   &textStage{recognizer: text},
		visionTrack: &visionStage{recognizer: vision},
		overview:    &overviewExtractor{model: model},
		restorer:    fusion.NewRestorer(),
		quantities:  quantity.NewEngine(),
	}, nil
}

// Validate checks the options that do not depend on the image
func (opts AnalysisOptions) Validate() error {
	switch {
	case opts.BatchSize <= 0:
		return apperrors.NewValidationError(fmt.Sprintf("batch size must be positive, got %d", opts.BatchSize), nil)
	case opts.ConcurrencyCap <= 0:
		return apperrors.NewValidationError(fmt.Sprintf("concurrency cap must be positive, got %d", opts.ConcurrencyCap), nil)
	case opts.ContextualChaining && opts.ChainScope != strategy.ScopeSequence && opts.ChainScope != strategy.ScopeRow:
		return apperrors.NewValidationError(fmt.Sprintf("unknown chain scope %q", opts.ChainScope), nil)
	case opts.IDMatchMode != "" && opts.IDMatchMode != IDMatchAnywhere && opts.IDMatchMode != IDMatchProximity:
		return apperrors.NewValidationError(fmt.Sprintf("unknown ID match mode %q", opts.IDMatchMode), nil)
	}
	return nil
}

// Analyze runs the full pipeline over one drawing. Tile failures degrade the
// result into warnings. Errors are returned only for an invalid grid or
// options, and for a batch whose tiles all failed on both channels.
// Cancelling ctx stops between tile calls and returns the partial result.
func (e *Engine) Analyze(ctx context.Context, drawing models.Drawing, img image.Image, opts AnalysisOptions) (*models.AnalysisResult, error) {
	start := time.Now()
	if e.closed.Load() {
		return nil, apperrors.NewInternalError("analyzer is closed", nil)
	}
	if img == nil {
		return nil, apperrors.NewValidationError("drawing image is required", nil)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if drawing.Width == 0 && drawing.Height == 0 {
		drawing.Width, drawing.Height = bounds.Dx(), bounds.Dy()
	}
	if drawing.Width != bounds.Dx() || drawing.Height != bounds.Dy() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("drawing is %dx%d but image is %dx%d",
			drawing.Width, drawing.Height, bounds.Dx(), bounds.Dy()), nil)
	}

	grid, reused, err := resolveGrid(drawing, opts)
	if err != nil {
		return nil, err
	}
	plan, err := batch.NewPlan(grid, opts.BatchSize)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid batch plan", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	r := newRun(runID, drawing, img, opts, grid, reused)
	r.log.WithFields(logrus.Fields{
		"tiles":       len(grid.Tiles),
		"batches":     plan.Len(),
		"grid_reused": reused,
		"strategy":    opts.schedulingStrategy().GetStrategyName(),
	}).Info("Starting drawing analysis")

	cancelled := !e.textPass(ctx, r, plan)

	regions := e.mergedText(r)
	if !cancelled {
		r.overview = e.overview.extract(ctx, r, regions)
		cancelled, err = e.visionPass(ctx, r, plan)
		if err != nil {
			return nil, err
		}
	}
	if cancelled {
		r.warn(models.WarningCancelled, "", "", "analysis cancelled, result covers completed tiles only")
	}

	result := e.assemble(r, regions)
	result.Cancelled = cancelled
	result.Stats.Batches = plan.Len()
	result.Stats.ProcessingTime = time.Since(start).Seconds()

	r.log.WithFields(logrus.Fields{
		"components":      len(result.GlobalComponents),
		"warnings":        len(result.Warnings),
		"processing_time": result.Stats.ProcessingTime,
	}).Info("Drawing analysis completed")
	return result, nil
}

// resolveGrid reuses a compatible tile set when one is offered and builds a
// fresh grid otherwise
func resolveGrid(drawing models.Drawing, opts AnalysisOptions) (models.SliceGrid, bool, error) {
	if err := slicing.Validate(drawing.Width, drawing.Height, opts.TileSize, opts.Overlap); err != nil {
		return models.SliceGrid{}, false, err
	}
	if opts.ReuseExistingTiles != nil {
		res := slicing.ResolveShared(opts.ReuseExistingTiles, drawing.Width, drawing.Height, opts.TileSize, opts.Overlap)
		if res.Reusable {
			return res.Grid, true, nil
		}
		logger.WithFields(logrus.Fields{
			"drawing_id": drawing.ID,
			"reason":     res.Reason,
		}).Info("Existing tiles not reusable, rebuilding grid")
	}
	grid, err := slicing.BuildGrid(drawing.Width, drawing.Height, opts.TileSize, opts.Overlap)
	return grid, false, err
}

// textPass recognizes the text of every batch in order. It returns false
// when the run was cancelled.
func (e *Engine) textPass(ctx context.Context, r *run, plan *batch.Plan) bool {
	sched := strategy.NewConcurrentStrategy(r.opts.ConcurrencyCap)
	for _, b := range plan.Batches() {
		if ctx.Err() != nil {
			return false
		}
		tiles := plan.Tiles(b)
		err := sched.Run(ctx, tiles, func(ctx context.Context, i int) {
			_, _ = e.textTrack.process(ctx, r, tiles[i])
		})
		if err != nil {
			return false
		}
		r.progress("text", b, plan.Len())
	}
	return true
}

// visionPass detects components batch by batch. Chaining, when enabled,
// orders the tiles inside a batch through dependency edges.
func (e *Engine) visionPass(ctx context.Context, r *run, plan *batch.Plan) (bool, error) {
	sched := r.opts.schedulingStrategy()
	for _, b := range plan.Batches() {
		if ctx.Err() != nil {
			return true, nil
		}
		tiles := plan.Tiles(b)
		err := sched.Run(ctx, tiles, func(ctx context.Context, i int) {
			_, _ = e.visionTrack.process(ctx, r, tiles[i])
		})
		if err != nil {
			return true, nil
		}
		if exhausted, cause := r.exhausted(tiles); exhausted {
			r.log.WithField("batch_index", b.BatchIndex).Error("Every tile of the batch failed")
			return false, apperrors.NewBatchExhaustedError(b.BatchIndex, cause)
		}
		r.progress("vision", b, plan.Len())
	}
	return false, nil
}

// mergedText restores cached text to drawing space and removes overlap duplicates
func (e *Engine) mergedText(r *run) []models.TextRegion {
	var all []models.TextRegion
	for _, tile := range r.grid.Tiles {
		regions, ok := cached[[]models.TextRegion](r, tile.Key(), models.ChannelText)
		if !ok {
			continue
		}
		all = append(all, e.restorer.TextRegions(tile, regions)...)
	}
	return fusion.DedupTextRegions(all, r.opts.TextDedupIoU)
}

// assemble restores, merges and measures the committed vision results
func (e *Engine) assemble(r *run, regions []models.TextRegion) *models.AnalysisResult {
	var restored []models.GlobalComponent
	for _, tile := range r.grid.Tiles {
		comps, ok := cached[[]models.Component](r, tile.Key(), models.ChannelVision)
		if !ok {
			continue
		}
		restored = append(restored, e.restorer.Components(tile, comps)...)
	}

	merged := fusion.NewMerger(r.opts.mergerOptions(r.grid.Overlap)).Merge(restored)
	for _, gc := range merged {
		if gc.Conflict {
			err := apperrors.NewFusionConflictError(gc.ComponentID, gc.ConflictFields)
			r.warn(models.WarningFusionConflict, gc.TileKey, "", err.Error())
		}
	}
	e.quantities.Apply(merged)
	if merged == nil {
		merged = []models.GlobalComponent{}
	}

	cs := r.cache.Stats()
	return &models.AnalysisResult{
		RunID:            r.id,
		DrawingID:        r.drawing.ID,
		Timestamp:        time.Now(),
		GlobalComponents: merged,
		Overview:         r.overview,
		Warnings:         r.sortedWarnings(),
		TextRegions:      regions,
		Grid:             r.grid,
		Stats: models.RunStats{
			Tiles:        len(r.grid.Tiles),
			SkippedBlank: r.skippedBlank(),
			TextCalls:    r.textCalls.Load(),
			VisionCalls:  r.visionCalls.Load(),
			CacheHits:    cs.Hits,
			CacheMisses:  cs.Misses,
			GridReused:   r.reused,
		},
	}
}

// Close releases recognizers that hold native resources
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	var firstErr error
	for _, rec := range []interface{}{e.text, e.vision} {
		if c, ok := rec.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
