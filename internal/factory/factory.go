package factory

import (
	"context"
	"fmt"

	"go-drawing-inspector/internal/analyzer"
	"go-drawing-inspector/internal/config"
	"go-drawing-inspector/internal/storage"
)

// Preset names a tuned set of analysis options
type Preset string

const (
	// StandardPreset balances recall and cost
	StandardPreset Preset = "standard"
	// FastPreset uses larger batches and smaller vision images
	FastPreset Preset = "fast"
	// QualityPreset uses smaller tiles with wider overlap
	QualityPreset Preset = "quality"
	// ContextualPreset chains vision prompts across neighbouring tiles
	ContextualPreset Preset = "contextual"
)

// OptionsFactory creates analysis options
type OptionsFactory interface {
	CreateOptions(preset Preset) (analyzer.AnalysisOptions, error)
}

// StorageFactory creates artifact stores
type StorageFactory interface {
	CreateStore(ctx context.Context, backend string) (storage.ObjectStore, error)
}

// optionsFactory implements OptionsFactory. Environment settings override
// the preset defaults.
type optionsFactory struct {
	cfg *config.Config
}

// NewOptionsFactory creates a new options factory
func NewOptionsFactory(cfg *config.Config) OptionsFactory {
	return &optionsFactory{cfg: cfg}
}

// CreateOptions returns the preset options with the configured settings applied
func (f *optionsFactory) CreateOptions(preset Preset) (analyzer.AnalysisOptions, error) {
	var opts analyzer.AnalysisOptions
	switch preset {
	case StandardPreset, "":
		opts = analyzer.DefaultOptions()
	case FastPreset:
		opts = analyzer.FastOptions()
	case QualityPreset:
		opts = analyzer.QualityOptions()
	case ContextualPreset:
		opts = analyzer.ContextualOptions()
	default:
		return analyzer.AnalysisOptions{}, fmt.Errorf("unsupported analysis preset: %s", preset)
	}

	c := f.cfg
	if c == nil {
		return opts, nil
	}
	opts = opts.WithGrid(c.TileSize, c.TileOverlap).WithBatching(c.BatchSize, c.ConcurrencyCap)
	if c.ContextualChaining {
		opts = opts.WithChaining(c.ContextWindow, c.ChainScope)
	}
	opts.ContextWindow = c.ContextWindow
	opts.ChainScope = c.ChainScope
	opts.TileTimeout = c.TileTimeout
	opts.MaxRetries = c.TileMaxRetries
	opts.RequestsPerMinute = c.RequestsPerMinute
	opts.SkipBlankTiles = c.SkipBlankTiles
	opts.FusionIoUThreshold = c.FusionSimilarityThreshold
	opts.FuzzyIDDistance = c.FusionFuzzyIDDistance
	opts.OverviewCharBudget = c.OverviewCharBudget
	opts.VisionMaxEdge = c.VisionMaxEdge
	return opts, nil
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStore creates the object store for the given backend
func (f *storageFactory) CreateStore(ctx context.Context, backend string) (storage.ObjectStore, error) {
	switch backend {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	case config.StorageAzure:
		return storage.NewAzureStore(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey, f.cfg.AzureStorageContainer)
	case config.StorageS3:
		return storage.NewS3Store(ctx, f.cfg.AWSRegion, f.cfg.S3Bucket)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}
