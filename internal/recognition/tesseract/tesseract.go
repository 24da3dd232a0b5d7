// Package tesseract implements the text-recognition channel with gosseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"go-drawing-inspector/internal/recognition"
	"go-drawing-inspector/pkg/models"

	"github.com/otiai10/gosseract/v2"
)

// Options configures the Tesseract client used per tile
type Options struct {
	Languages     []string
	PageSegMode   gosseract.PageSegMode
	Level         gosseract.PageIteratorLevel
	MinConfidence float64
}

// DefaultOptions favour sparse annotations scattered over a drawing
func DefaultOptions() Options {
	return Options{
		Languages:     []string{"eng"},
		PageSegMode:   gosseract.PSM_SPARSE_TEXT,
		Level:         gosseract.RIL_TEXTLINE,
		MinConfidence: 0.3,
	}
}

// Recognizer runs Tesseract on tile images
type Recognizer struct {
	opts          Options
	clientFactory func() *gosseract.Client
}

// NewRecognizer creates a Recognizer. Callers start from DefaultOptions:
// PageSegMode and Level are used as given, since PSM_OSD_ONLY and RIL_BLOCK
// are both zero. Only an empty language list falls back to the default.
func NewRecognizer(opts Options) *Recognizer {
	if len(opts.Languages) == 0 {
		opts.Languages = DefaultOptions().Languages
	}
	return &Recognizer{opts: opts, clientFactory: gosseract.NewClient}
}

type ocrResult struct {
	regions []models.TextRegion
	err     error
}

// Recognize returns tile-local text regions. The cgo call cannot be
// interrupted, so on cancellation the result is abandoned.
func (r *Recognizer) Recognize(ctx context.Context, tile recognition.TileImage) ([]models.TextRegion, error) {
	data, err := tile.PNG()
	if err != nil {
		return nil, fmt.Errorf("encode tile %s: %w", tile.Tile.Key(), err)
	}

	done := make(chan ocrResult, 1)
	go func() {
		regions, err := r.recognize(data)
		done <- ocrResult{regions, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		for i := range res.regions {
			res.regions[i].BBox = tile.ToTile(res.regions[i].BBox)
			res.regions[i].TileKey = tile.Tile.Key()
		}
		return res.regions, nil
	}
}

func (r *Recognizer) recognize(data []byte) ([]models.TextRegion, error) {
	c := r.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(r.opts.Languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetPageSegMode(r.opts.PageSegMode); err != nil {
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(r.opts.Level)
	if err != nil {
		return nil, fmt.Errorf("bounding boxes: %w", err)
	}
	return regionsFromBoxes(boxes, r.opts.MinConfidence), nil
}

func regionsFromBoxes(boxes []gosseract.BoundingBox, minConfidence float64) []models.TextRegion {
	regions := make([]models.TextRegion, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		conf := b.Confidence / 100.0
		if text == "" || conf < minConfidence {
			continue
		}
		regions = append(regions, models.TextRegion{
			Text:       text,
			Confidence: conf,
			BBox: models.BBox{
				X1: float64(b.Box.Min.X),
				Y1: float64(b.Box.Min.Y),
				X2: float64(b.Box.Max.X),
				Y2: float64(b.Box.Max.Y),
			},
		})
	}
	return regions
}
