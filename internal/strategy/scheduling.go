// Package strategy decides how the tiles of one batch are executed: freely
// in parallel, or along dependency edges when a tile's prompt needs the
// committed result of an earlier tile.
package strategy

import (
	"context"
	"sync"

	"go-drawing-inspector/pkg/models"
)

// Chain scopes for contextual chaining
const (
	ScopeSequence = "sequence"
	ScopeRow      = "row"
)

// TileWork processes the tile at index i of the batch slice
type TileWork func(ctx context.Context, i int)

// SchedulingStrategy runs a batch of tile work items
type SchedulingStrategy interface {
	// Run returns after every started item finished. Items not started
	// before ctx is cancelled are skipped and ctx.Err() is returned.
	Run(ctx context.Context, tiles []models.TileSpec, work TileWork) error

	// Dependencies lists the indices tile i waits for
	Dependencies(tiles []models.TileSpec, i int) []int

	GetStrategyName() string
}

// ConcurrentStrategy runs every tile independently, bounded by a worker cap
type ConcurrentStrategy struct {
	concurrency int
}

// NewConcurrentStrategy creates a strategy running up to concurrency tiles at once
func NewConcurrentStrategy(concurrency int) SchedulingStrategy {
	return &ConcurrentStrategy{concurrency: max(1, concurrency)}
}

// Run executes all tiles of the batch
func (s *ConcurrentStrategy) Run(ctx context.Context, tiles []models.TileSpec, work TileWork) error {
	return execute(ctx, s.concurrency, tiles, s.Dependencies, work)
}

// Dependencies is always empty for independent tiles
func (s *ConcurrentStrategy) Dependencies([]models.TileSpec, int) []int {
	return nil
}

// GetStrategyName returns the strategy name
func (s *ConcurrentStrategy) GetStrategyName() string {
	return "concurrent"
}

// ChainedStrategy makes each tile wait for the committed result of the
// tiles before it. With ScopeSequence the predecessors are the previous
// indices in the batch, which serializes the batch. With ScopeRow they are
// the left neighbours in the same row, so distinct rows still run in parallel.
type ChainedStrategy struct {
	concurrency int
	window      int
	scope       string
}

// NewChainedStrategy creates a chained strategy. window is the number of
// predecessors each tile depends on.
func NewChainedStrategy(concurrency, window int, scope string) SchedulingStrategy {
	if scope != ScopeRow {
		scope = ScopeSequence
	}
	return &ChainedStrategy{
		concurrency: max(1, concurrency),
		window:      max(1, window),
		scope:       scope,
	}
}

// Run executes the batch honouring dependency edges
func (s *ChainedStrategy) Run(ctx context.Context, tiles []models.TileSpec, work TileWork) error {
	return execute(ctx, s.concurrency, tiles, s.Dependencies, work)
}

// Dependencies returns the predecessors of tile i, nearest first
func (s *ChainedStrategy) Dependencies(tiles []models.TileSpec, i int) []int {
	var deps []int
	if s.scope == ScopeSequence {
		for j := i - 1; j >= 0 && j >= i-s.window; j-- {
			deps = append(deps, j)
		}
		return deps
	}

	for j := i - 1; j >= 0 && len(deps) < s.window; j-- {
		if tiles[j].Row == tiles[i].Row && tiles[j].Col < tiles[i].Col {
			deps = append(deps, j)
		}
	}
	return deps
}

// GetStrategyName returns the strategy name
func (s *ChainedStrategy) GetStrategyName() string {
	return "chained_" + s.scope
}

// execute runs work for every tile on a per-batch worker pool. A tile only
// takes a worker once its dependencies have finished, so waiting tiles never
// hold a slot that another row could use.
func execute(ctx context.Context, concurrency int, tiles []models.TileSpec,
	deps func([]models.TileSpec, int) []int, work TileWork) error {
	if len(tiles) == 0 {
		return ctx.Err()
	}

	pool := NewWorkerPool(min(concurrency, len(tiles)))
	pool.Start()
	defer pool.Close()

	done := make([]chan struct{}, len(tiles))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for i := range tiles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for _, d := range deps(tiles, i) {
				select {
				case <-done[d]:
				case <-ctx.Done():
					close(done[i])
					return
				}
			}
			submitted := pool.Submit(func() {
				defer close(done[i])
				if ctx.Err() != nil {
					return
				}
				work(ctx, i)
			})
			if !submitted {
				close(done[i])
			}
		}(i)
	}

	wg.Wait()
	pool.Wait()
	return ctx.Err()
}
