package analyzer

import (
	"context"
	"fmt"

	"go-drawing-inspector/internal/cache"
	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/internal/recognition"
	"go-drawing-inspector/internal/strategy"
	"go-drawing-inspector/pkg/models"

	"github.com/sirupsen/logrus"
)

// visionStage runs the multimodal channel over the tiles of a batch
type visionStage struct {
	recognizer recognition.VisionRecognizer
}

// process returns the tile-local components of one tile. Timeouts, empty
// answers and unparseable answers give an empty list plus a warning.
func (s *visionStage) process(ctx context.Context, r *run, tile models.TileSpec) ([]models.Component, error) {
	key := tile.Key()

	components, look, err := cache.Fetch(ctx, r.cache, key, models.ChannelVision,
		func(ctx context.Context) ([]models.Component, error) {
			img := recognition.CropTile(r.img, tile)
			if r.isBlank(tile, img.Image) {
				return []models.Component{}, nil
			}

			prompt := buildVisionPrompt(tile, r.overview, r.previousContext(tile))
			scaled := img.Downscaled(r.opts.VisionMaxEdge)

			var raw string
			err := r.call(ctx, models.ChannelVision, key, func(ctx context.Context) error {
				r.visionCalls.Add(1)
				answer, err := s.recognizer.Analyze(ctx, scaled, prompt)
				if err != nil {
					return err
				}
				raw = answer
				return nil
			})
			if err != nil {
				return nil, apperrors.NewTileRecognitionError(key, err)
			}

			outcome := ParseComponents(raw)
			switch o := outcome.(type) {
			case Failed:
				return nil, apperrors.NewResponseParseError(o.Reason).WithDetails("tile %s", key)
			case PartialParsed:
				r.log.WithFields(logrus.Fields{"tile_key": key, "raw": o.Raw}).Debug("Partially parsed vision answer")
				r.warn(models.WarningResponseParse, key, models.ChannelVision,
					fmt.Sprintf("dropped %d malformed components", o.Dropped))
			}

			return toTileSpace(ComponentsOf(outcome), scaled, tile), nil
		})

	if look.Corrupted {
		r.warn(models.WarningCacheCorruption, key, models.ChannelVision, "unexpected cached payload, recomputed")
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		kind := models.WarningTileRecognition
		if apperrors.IsType(err, apperrors.ErrorTypeResponseParse) {
			kind = models.WarningResponseParse
		}
		r.fail(models.ChannelVision, key, err)
		r.warn(kind, key, models.ChannelVision, err.Error())
		return nil, err
	}
	return components, nil
}

// toTileSpace rescales boxes from the image the model saw to tile pixels and
// clips them to the tile. Boxes falling outside the tile are dropped.
func toTileSpace(components []models.Component, img recognition.TileImage, tile models.TileSpec) []models.Component {
	bounds := models.BBox{X2: float64(tile.Width), Y2: float64(tile.Height)}
	out := make([]models.Component, 0, len(components))
	for _, c := range components {
		c.BBox = img.ToTile(c.BBox).Intersection(bounds)
		if !c.BBox.Valid() {
			continue
		}
		c.TileKey = tile.Key()
		out = append(out, c)
	}
	return out
}

// previousContext collects the committed components of the tiles this tile
// is chained to, oldest first
func (r *run) previousContext(tile models.TileSpec) []tileContext {
	if !r.opts.ContextualChaining {
		return nil
	}
	window := max(1, r.opts.ContextWindow)

	var keys []string
	if r.opts.ChainScope == strategy.ScopeRow {
		for c := max(0, tile.Col-window); c < tile.Col; c++ {
			keys = append(keys, models.TileKey(tile.Row, c))
		}
	} else {
		idx := r.index[tile.Key()]
		for i := max(0, idx-window); i < idx; i++ {
			keys = append(keys, r.grid.Tiles[i].Key())
		}
	}

	var out []tileContext
	for _, k := range keys {
		if comps, ok := cached[[]models.Component](r, k, models.ChannelVision); ok && len(comps) > 0 {
			out = append(out, tileContext{TileKey: k, Components: comps})
		}
	}
	return out
}
