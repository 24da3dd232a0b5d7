package analyzer

import (
	"context"
	"errors"
	"image"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go-drawing-inspector/internal/cache"
	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/internal/logger"
	"go-drawing-inspector/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// run is the state of one drawing analysis. Every stage receives it
// explicitly; nothing is shared between runs.
type run struct {
	id      string
	drawing models.Drawing
	img     image.Image
	opts    AnalysisOptions
	grid    models.SliceGrid
	index   map[string]int
	reused  bool

	cache     *cache.SliceResultCache
	limiters  map[models.Channel]*rate.Limiter
	inspector TileInspector
	log       *logrus.Entry

	// overview is written once between the text and vision passes
	overview models.DrawingOverview

	mu       sync.Mutex
	warnings []models.Warning
	blank    map[string]bool
	failures map[models.Channel]map[string]error

	textCalls   atomic.Int64
	visionCalls atomic.Int64
}

func newRun(id string, drawing models.Drawing, img image.Image, opts AnalysisOptions, grid models.SliceGrid, reused bool) *run {
	index := make(map[string]int, len(grid.Tiles))
	for i, t := range grid.Tiles {
		index[t.Key()] = i
	}

	return &run{
		id:        id,
		drawing:   drawing,
		img:       img,
		opts:      opts,
		grid:      grid,
		index:     index,
		reused:    reused,
		cache:     cache.New(),
		limiters:  newLimiters(opts.RequestsPerMinute, opts.ConcurrencyCap),
		inspector: NewTileInspector(0, opts.BlankInkThreshold),
		log:       logger.ForRun(id, drawing.ID),
		overview:  DefaultOverview(),
		blank:     make(map[string]bool),
		failures: map[models.Channel]map[string]error{
			models.ChannelText:   {},
			models.ChannelVision: {},
		},
	}
}

// newLimiters shapes calls per channel. Zero requests per minute means unlimited.
func newLimiters(rpm, burst int) map[models.Channel]*rate.Limiter {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Every(time.Minute / time.Duration(rpm))
	}
	return map[models.Channel]*rate.Limiter{
		models.ChannelText:   rate.NewLimiter(limit, max(1, burst)),
		models.ChannelVision: rate.NewLimiter(limit, max(1, burst)),
	}
}

// call runs fn with the channel's rate limit and a per-attempt timeout.
// Only timeouts are retried.
func (r *run) call(ctx context.Context, ch models.Channel, tileKey string, fn func(ctx context.Context) error) error {
	attempts := max(0, r.opts.MaxRetries) + 1

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = r.limiters[ch].Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.opts.TileTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.opts.TileTimeout)
		}
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTimeout(err) {
			return err
		}

		r.log.WithFields(logrus.Fields{
			"tile_key": tileKey,
			"channel":  ch,
			"attempt":  attempt + 1,
		}).Warn("Recognition call timed out")
	}
	return apperrors.NewTimeoutError("recognition call timed out after retries", err)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || apperrors.IsType(err, apperrors.ErrorTypeTimeout)
}

func (r *run) warn(kind models.WarningKind, tileKey string, ch models.Channel, msg string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, models.Warning{Kind: kind, TileKey: tileKey, Channel: ch, Message: msg})
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"kind":     kind,
		"tile_key": tileKey,
		"channel":  ch,
	}).Warn(msg)
}

func (r *run) fail(ch models.Channel, tileKey string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[ch][tileKey] = err
}

// exhausted reports whether every tile failed on both channels
func (r *run) exhausted(tiles []models.TileSpec) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(tiles) == 0 {
		return false, nil
	}
	var cause error
	for _, t := range tiles {
		textErr, textFailed := r.failures[models.ChannelText][t.Key()]
		visionErr, visionFailed := r.failures[models.ChannelVision][t.Key()]
		if !textFailed || !visionFailed {
			return false, nil
		}
		if cause == nil {
			cause = errors.Join(textErr, visionErr)
		}
	}
	return true, cause
}

// isBlank decides once per tile whether it carries drawing content
func (r *run) isBlank(tile models.TileSpec, img image.Image) bool {
	if !r.opts.SkipBlankTiles {
		return false
	}
	key := tile.Key()

	r.mu.Lock()
	blank, ok := r.blank[key]
	r.mu.Unlock()
	if ok {
		return blank
	}

	blank = r.inspector.IsBlank(r.inspector.Inspect(img))
	r.mu.Lock()
	r.blank[key] = blank
	r.mu.Unlock()
	if blank {
		r.log.WithField("tile_key", key).Debug("Skipping blank tile")
	}
	return blank
}

func (r *run) skippedBlank() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.blank {
		if b {
			n++
		}
	}
	return n
}

func (r *run) warningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

// sortedWarnings orders warnings by tile position so results are reproducible
func (r *run) sortedWarnings() []models.Warning {
	r.mu.Lock()
	out := make([]models.Warning, len(r.warnings))
	copy(out, r.warnings)
	r.mu.Unlock()

	pos := func(w models.Warning) int {
		if i, ok := r.index[w.TileKey]; ok {
			return i
		}
		return len(r.index)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if pi, pj := pos(out[i]), pos(out[j]); pi != pj {
			return pi < pj
		}
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// cached returns the typed payload stored for a tile without touching the
// hit counters
func cached[T any](r *run, tileKey string, ch models.Channel) (T, bool) {
	var zero T
	e, ok := r.cache.Entry(tileKey, ch)
	if !ok {
		return zero, false
	}
	v, ok := e.Payload.(T)
	return v, ok
}

func (r *run) progress(stage string, b models.Batch, totalBatches int) {
	r.log.WithFields(logrus.Fields{
		"stage":         stage,
		"batch_index":   b.BatchIndex,
		"total_batches": totalBatches,
	}).Info("Batch completed")

	if r.opts.Progress == nil {
		return
	}
	r.opts.Progress(models.ProgressEvent{
		RunID:        r.id,
		DrawingID:    r.drawing.ID,
		Stage:        stage,
		BatchIndex:   b.BatchIndex,
		TotalBatches: totalBatches,
		TilesDone:    b.End,
		TotalTiles:   len(r.grid.Tiles),
		Warnings:     r.warningCount(),
	})
}
