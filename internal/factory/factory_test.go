package factory

import (
	"context"
	"testing"
	"time"

	"go-drawing-inspector/internal/analyzer"
	"go-drawing-inspector/internal/config"
	"go-drawing-inspector/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		TileSize:                  1024,
		TileOverlap:               128,
		BatchSize:                 6,
		ConcurrencyCap:            3,
		ContextWindow:             2,
		ChainScope:                strategy.ScopeRow,
		TileTimeout:               45 * time.Second,
		TileMaxRetries:            2,
		SkipBlankTiles:            true,
		FusionSimilarityThreshold: 0.6,
		OverviewCharBudget:        4000,
		VisionMaxEdge:             1024,
		StorageBackend:            config.StorageMemory,
	}
}

func TestCreateOptions_AppliesConfig(t *testing.T) {
	opts, err := NewOptionsFactory(testConfig()).CreateOptions(StandardPreset)
	require.NoError(t, err)

	assert.Equal(t, 1024, opts.TileSize)
	assert.Equal(t, 128, opts.Overlap)
	assert.Equal(t, 6, opts.BatchSize)
	assert.Equal(t, 3, opts.ConcurrencyCap)
	assert.False(t, opts.ContextualChaining)
	assert.Equal(t, 45*time.Second, opts.TileTimeout)
	assert.Equal(t, 0.6, opts.FusionIoUThreshold)
	assert.NoError(t, opts.Validate())
}

func TestCreateOptions_ContextualPresetKeepsChaining(t *testing.T) {
	opts, err := NewOptionsFactory(testConfig()).CreateOptions(ContextualPreset)
	require.NoError(t, err)

	assert.True(t, opts.ContextualChaining)
	assert.Equal(t, 2, opts.ContextWindow)
	assert.Equal(t, strategy.ScopeRow, opts.ChainScope)
}

func TestCreateOptions_WithoutConfig(t *testing.T) {
	opts, err := NewOptionsFactory(nil).CreateOptions(QualityPreset)
	require.NoError(t, err)
	assert.Equal(t, analyzer.QualityOptions().TileSize, opts.TileSize)

	_, err = NewOptionsFactory(nil).CreateOptions("turbo")
	assert.Error(t, err)
}

func TestCreateStore(t *testing.T) {
	f := NewStorageFactory(testConfig())

	store, err := f.CreateStore(context.Background(), config.StorageMemory)
	require.NoError(t, err)
	assert.NotNil(t, store)

	_, err = f.CreateStore(context.Background(), "ftp")
	assert.Error(t, err)

	// missing container name is rejected before any network call
	_, err = f.CreateStore(context.Background(), config.StorageAzure)
	assert.Error(t, err)
}
