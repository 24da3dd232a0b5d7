// Package recognition defines the external recognition channels and the tile
// image handed to them.
package recognition

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"go-drawing-inspector/pkg/models"

	xdraw "golang.org/x/image/draw"
)

// TextRecognizer is the text-recognition channel
type TextRecognizer interface {
	Recognize(ctx context.Context, tile TileImage) ([]models.TextRegion, error)
}

// VisionRecognizer is the multimodal vision channel. It returns the raw
// model answer, which is parsed by the caller.
type VisionRecognizer interface {
	Analyze(ctx context.Context, tile TileImage, prompt string) (string, error)
}

// LanguageModel answers text-only prompts
type LanguageModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TileImage is the pixel content of one tile with its origin at (0,0).
// ScaleX and ScaleY convert coordinates in Image back to tile pixels; they
// are 1 unless the image was downscaled.
type TileImage struct {
	Tile   models.TileSpec
	Image  image.Image
	ScaleX float64
	ScaleY float64
}

// CropTile copies the tile rectangle out of the drawing
func CropTile(src image.Image, tile models.TileSpec) TileImage {
	rect := tile.Rect().Add(src.Bounds().Min)
	dst := image.NewNRGBA(image.Rect(0, 0, tile.Width, tile.Height))
	xdraw.Copy(dst, image.Point{}, src, rect, xdraw.Src, nil)
	return TileImage{Tile: tile, Image: dst, ScaleX: 1, ScaleY: 1}
}

// Downscaled returns a copy whose longest edge is at most maxEdge pixels.
// maxEdge <= 0 or an already small image returns t unchanged.
func (t TileImage) Downscaled(maxEdge int) TileImage {
	b := t.Image.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxEdge <= 0 || longest <= maxEdge {
		return t
	}

	ratio := float64(maxEdge) / float64(longest)
	w := max(1, int(float64(b.Dx())*ratio))
	h := max(1, int(float64(b.Dy())*ratio))
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), t.Image, b, xdraw.Src, nil)

	return TileImage{
		Tile:   t.Tile,
		Image:  dst,
		ScaleX: t.ScaleX * float64(b.Dx()) / float64(w),
		ScaleY: t.ScaleY * float64(b.Dy()) / float64(h),
	}
}

// ToTile maps a box in image coordinates back to tile pixels
func (t TileImage) ToTile(b models.BBox) models.BBox {
	sx, sy := t.ScaleX, t.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return b.Scale(sx, sy)
}

// PNG encodes the tile image
func (t TileImage) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, t.Image); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
