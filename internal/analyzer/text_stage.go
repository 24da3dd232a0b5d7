package analyzer

import (
	"context"

	"go-drawing-inspector/internal/cache"
	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/internal/recognition"
	"go-drawing-inspector/pkg/models"
)

// textStage runs the text-recognition channel over the tiles of a batch
type textStage struct {
	recognizer recognition.TextRecognizer
}

// process returns the tile-local text of one tile. A failing tile yields no
// regions and a warning; the error is returned for bookkeeping only.
func (s *textStage) process(ctx context.Context, r *run, tile models.TileSpec) ([]models.TextRegion, error) {
	key := tile.Key()

	regions, look, err := cache.Fetch(ctx, r.cache, key, models.ChannelText,
		func(ctx context.Context) ([]models.TextRegion, error) {
			img := recognition.CropTile(r.img, tile)
			if r.isBlank(tile, img.Image) {
				return []models.TextRegion{}, nil
			}

			var out []models.TextRegion
			err := r.call(ctx, models.ChannelText, key, func(ctx context.Context) error {
				r.textCalls.Add(1)
				found, err := s.recognizer.Recognize(ctx, img)
				if err != nil {
					return err
				}
				out = found
				return nil
			})
			if err != nil {
				return nil, apperrors.NewTileRecognitionError(key, err)
			}

			for i := range out {
				out[i].TileKey = key
				out[i].Restored = false
			}
			return out, nil
		})

	if look.Corrupted {
		r.warn(models.WarningCacheCorruption, key, models.ChannelText, "unexpected cached payload, recomputed")
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.fail(models.ChannelText, key, err)
		r.warn(models.WarningTileRecognition, key, models.ChannelText, err.Error())
		return nil, err
	}
	return regions, nil
}
