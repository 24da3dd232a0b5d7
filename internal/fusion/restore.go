// Package fusion lifts per-tile detections into drawing space and merges the
// duplicates that appear where tiles overlap.
package fusion

import (
	"errors"

	"go-drawing-inspector/pkg/models"
)

// ErrAlreadyRestored is returned when a tile offset would be applied twice
var ErrAlreadyRestored = errors.New("component already restored to drawing coordinates")

// Restorer translates tile-local boxes by the tile offset
type Restorer struct{}

// NewRestorer creates a coordinate restorer
func NewRestorer() *Restorer {
	return &Restorer{}
}

// RestoreComponent applies the tile offset to gc exactly once
func (r *Restorer) RestoreComponent(gc *models.GlobalComponent, tile models.TileSpec) error {
	if gc.Restored {
		return ErrAlreadyRestored
	}
	gc.BBox = gc.BBox.Translate(float64(tile.XOffset), float64(tile.YOffset))
	gc.TileKey = tile.Key()
	gc.Restored = true
	return nil
}

// RestoreRegion applies the tile offset to a text region exactly once
func (r *Restorer) RestoreRegion(region *models.TextRegion, tile models.TileSpec) error {
	if region.Restored {
		return ErrAlreadyRestored
	}
	region.BBox = region.BBox.Translate(float64(tile.XOffset), float64(tile.YOffset))
	region.TileKey = tile.Key()
	region.Restored = true
	return nil
}

// Components lifts the detections of one tile into drawing space. The input
// is left untouched.
func (r *Restorer) Components(tile models.TileSpec, components []models.Component) []models.GlobalComponent {
	out := make([]models.GlobalComponent, 0, len(components))
	for _, c := range components {
		gc := models.GlobalComponent{
			Component:    c.Clone(),
			SourceBlocks: []string{tile.Key()},
		}
		// freshly built, cannot already be restored
		_ = r.RestoreComponent(&gc, tile)
		out = append(out, gc)
	}
	return out
}

// TextRegions lifts the text of one tile into drawing space
func (r *Restorer) TextRegions(tile models.TileSpec, regions []models.TextRegion) []models.TextRegion {
	out := make([]models.TextRegion, 0, len(regions))
	for _, region := range regions {
		// regions that are already global pass through unchanged
		_ = r.RestoreRegion(&region, tile)
		out = append(out, region)
	}
	return out
}
