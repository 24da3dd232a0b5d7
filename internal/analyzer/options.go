package analyzer

import (
	"time"

	"go-drawing-inspector/internal/fusion"
	"go-drawing-inspector/internal/strategy"
	"go-drawing-inspector/pkg/models"
)

// ID matching modes for fusion
const (
	IDMatchAnywhere  = fusion.IDMatchAnywhere
	IDMatchProximity = fusion.IDMatchProximity
)

// AnalysisOptions configures one drawing run
type AnalysisOptions struct {
	// RunID tags logs and progress events; generated when empty
	RunID string

	// Slicing
	TileSize           int
	Overlap            int
	ReuseExistingTiles *models.SliceGrid

	// Scheduling
	BatchSize         int
	ConcurrencyCap    int
	TileTimeout       time.Duration
	MaxRetries        int
	RequestsPerMinute int

	// Contextual chaining of vision prompts
	ContextualChaining bool
	ContextWindow      int
	ChainScope         string

	// Fusion
	FusionIoUThreshold float64
	IDMatchMode        string
	FuzzyIDDistance    int
	TextDedupIoU       float64

	// Overview
	OverviewCharBudget int

	// Tile preprocessing
	SkipBlankTiles    bool
	BlankInkThreshold float64
	VisionMaxEdge     int

	// Progress is invoked after every completed batch
	Progress func(models.ProgressEvent) `json:"-"`
}

// DefaultOptions returns default analysis options
func DefaultOptions() AnalysisOptions {
	return AnalysisOptions{
		TileSize:           2048,
		Overlap:            256,
		BatchSize:          8,
		ConcurrencyCap:     4,
		TileTimeout:        90 * time.Second,
		MaxRetries:         1,
		RequestsPerMinute:  0, // unlimited
		ContextualChaining: false,
		ContextWindow:      1,
		ChainScope:         strategy.ScopeSequence,
		FusionIoUThreshold: 0.5,
		IDMatchMode:        IDMatchProximity,
		FuzzyIDDistance:    0,
		TextDedupIoU:       0.5,
		OverviewCharBudget: 6000,
		SkipBlankTiles:     true,
		BlankInkThreshold:  0.002,
		VisionMaxEdge:      1536,
	}
}

// ContextualOptions returns options with contextual chaining enabled
func ContextualOptions() AnalysisOptions {
	opts := DefaultOptions()
	opts.ContextualChaining = true
	opts.ContextWindow = 1
	opts.ChainScope = strategy.ScopeSequence
	return opts
}

// FastOptions trades recall for throughput
func FastOptions() AnalysisOptions {
	opts := DefaultOptions()
	opts.Overlap = 128
	opts.BatchSize = 16
	opts.ConcurrencyCap = 8
	opts.VisionMaxEdge = 1024
	opts.OverviewCharBudget = 3000
	return opts
}

// QualityOptions uses smaller tiles with wider overlap
func QualityOptions() AnalysisOptions {
	opts := DefaultOptions()
	opts.TileSize = 1536
	opts.Overlap = 384
	opts.BatchSize = 4
	opts.MaxRetries = 2
	opts.VisionMaxEdge = 0 // full resolution
	opts.FusionIoUThreshold = 0.4
	opts.FuzzyIDDistance = 1
	return opts
}

// WithGrid sets the tile size and overlap
func (opts AnalysisOptions) WithGrid(tileSize, overlap int) AnalysisOptions {
	opts.TileSize = tileSize
	opts.Overlap = overlap
	return opts
}

// WithBatching sets the batch size and the per-batch concurrency cap
func (opts AnalysisOptions) WithBatching(batchSize, concurrency int) AnalysisOptions {
	opts.BatchSize = batchSize
	opts.ConcurrencyCap = concurrency
	return opts
}

// WithChaining enables contextual chaining for the given scope
func (opts AnalysisOptions) WithChaining(window int, scope string) AnalysisOptions {
	opts.ContextualChaining = true
	opts.ContextWindow = window
	opts.ChainScope = scope
	return opts
}

// WithReusedTiles offers a tile set from an earlier stage for reuse
func (opts AnalysisOptions) WithReusedTiles(grid *models.SliceGrid) AnalysisOptions {
	opts.ReuseExistingTiles = grid
	return opts
}

// WithRunID sets the identifier used in logs and progress events
func (opts AnalysisOptions) WithRunID(id string) AnalysisOptions {
	opts.RunID = id
	return opts
}

// WithProgress registers a per-batch progress callback
func (opts AnalysisOptions) WithProgress(fn func(models.ProgressEvent)) AnalysisOptions {
	opts.Progress = fn
	return opts
}

// WithoutBlankSkipping recognizes every tile regardless of content
func (opts AnalysisOptions) WithoutBlankSkipping() AnalysisOptions {
	opts.SkipBlankTiles = false
	return opts
}

// mergerOptions maps the fusion settings. Proximity matching uses the grid
// overlap as its radius.
func (opts AnalysisOptions) mergerOptions(overlap int) fusion.Options {
	return fusion.Options{
		SimilarityThreshold: opts.FusionIoUThreshold,
		IDMatchMode:         opts.IDMatchMode,
		ProximityRadius:     float64(overlap),
		FuzzyIDDistance:     opts.FuzzyIDDistance,
	}
}

// schedulingStrategy picks how the tiles of a batch are executed
func (opts AnalysisOptions) schedulingStrategy() strategy.SchedulingStrategy {
	if opts.ContextualChaining {
		return strategy.NewChainedStrategy(opts.ConcurrencyCap, opts.ContextWindow, opts.ChainScope)
	}
	return strategy.NewConcurrentStrategy(opts.ConcurrencyCap)
}
