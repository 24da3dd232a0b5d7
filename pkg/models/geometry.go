package models

import "math"

// BBox is an axis-aligned bounding box in pixel coordinates.
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether the box has positive extent on both axes
func (b BBox) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Width of the box, zero for inverted boxes
func (b BBox) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

// Height of the box, zero for inverted boxes
func (b BBox) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area of the box in square pixels
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// Translate shifts the box by dx, dy
func (b BBox) Translate(dx, dy float64) BBox {
	return BBox{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Scale multiplies every coordinate by the given factors
func (b BBox) Scale(sx, sy float64) BBox {
	return BBox{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

// Intersection returns the overlapping region of two boxes. The result is
// not Valid when the boxes do not overlap.
func (b BBox) Intersection(o BBox) BBox {
	return BBox{
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
		X2: math.Min(b.X2, o.X2),
		Y2: math.Min(b.Y2, o.Y2),
	}
}

// IoU computes intersection over union of two boxes in [0,1]
func (b BBox) IoU(o BBox) float64 {
	inter := b.Intersection(o).Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Contains reports whether the point lies inside the box (half-open)
func (b BBox) Contains(x, y float64) bool {
	return x >= b.X1 && x < b.X2 && y >= b.Y1 && y < b.Y2
}
