// Package quantity derives lengths, areas and volumes from the dimension
// annotations of merged components.
package quantity

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go-drawing-inspector/pkg/models"

	"golang.org/x/text/width"
)

// bareMillimetreFloor is the value from which a unitless number is read as
// millimetres rather than metres, so "100" is a 100mm slab
const bareMillimetreFloor = 100

var dimensionAliases = map[string]string{
	"length": "length", "l": "length", "len": "length", "span": "length", "长": "length", "长度": "length", "跨度": "length",
	"width": "width", "w": "width", "b": "width", "宽": "width", "宽度": "width",
	"height": "height", "h": "height", "depth": "height", "高": "height", "高度": "height",
	"thickness": "thickness", "t": "thickness", "厚": "thickness", "厚度": "thickness", "板厚": "thickness",
	"section": "section", "size": "section", "截面": "section", "截面尺寸": "section",
}

var (
	valuePattern   = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*(mm|cm|m)?$`)
	sectionPattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*(?:mm|cm|m)?\s*[x×*]\s*([0-9]*\.?[0-9]+)\s*(mm|cm|m)?$`)
)

// Engine computes quantities per component type
type Engine struct{}

// NewEngine creates a quantity engine
func NewEngine() *Engine {
	return &Engine{}
}

// Apply attaches a quantity to every component
func (e *Engine) Apply(components []models.GlobalComponent) {
	for i := range components {
		q := e.Compute(components[i].ComponentType, components[i].Dimensions)
		components[i].Quantity = &q
	}
}

// Compute extracts the dimensions and applies the formula for the type.
// Missing or non-positive dimensions give zero results, never an error.
func (e *Engine) Compute(componentType string, dims map[string]string) models.Quantity {
	q := extract(dims)
	l, w, h, t := q.Length, q.Width, q.Height, q.Thickness

	switch models.CanonicalComponentType(componentType) {
	case models.ComponentSlab:
		q.Area = l * w
		q.Volume = l * w * firstPositive(t, h)
	case models.ComponentWall:
		q.Area = l * h
		q.Volume = l * h * firstPositive(t, w)
	case models.ComponentBeam:
		q.Area = w * h
		q.Volume = l * w * h
	case models.ComponentColumn:
		q.Area = w * h
		q.Volume = w * h * firstPositive(l, t)
	default:
		largest := positiveDesc(l, w, h, t)
		if len(largest) >= 2 {
			q.Area = largest[0] * largest[1]
		}
		if len(largest) >= 3 {
			q.Volume = largest[0] * largest[1] * largest[2]
		}
	}

	q.Area = round6(q.Area)
	q.Volume = round6(q.Volume)
	return q
}

func extract(dims map[string]string) models.Quantity {
	var q models.Quantity
	var sectionW, sectionH float64
	seen := make(map[string]bool, 5)

	for _, key := range dimensionKeys(dims) {
		name := dimensionAliases[strings.ToLower(strings.TrimSpace(key))]
		if seen[name] {
			continue
		}
		raw := dims[key]
		if name == "section" {
			w, h, ok := ParseSection(raw)
			if ok {
				sectionW, sectionH = w, h
				seen[name] = true
			}
			continue
		}
		v, ok := ParseLength(raw)
		if !ok {
			continue
		}
		seen[name] = true
		switch name {
		case "length":
			q.Length = v
		case "width":
			q.Width = v
		case "height":
			q.Height = v
		case "thickness":
			q.Thickness = v
		}
	}

	if q.Width <= 0 {
		q.Width = sectionW
	}
	if q.Height <= 0 {
		q.Height = sectionH
	}
	return q
}

// dimensionKeys returns the recognized keys in resolution order: a canonical
// name before its aliases, then alphabetical.
func dimensionKeys(dims map[string]string) []string {
	keys := make([]string, 0, len(dims))
	for key := range dims {
		if _, ok := dimensionAliases[strings.ToLower(strings.TrimSpace(key))]; ok {
			keys = append(keys, key)
		}
	}
	rank := func(key string) int {
		k := strings.ToLower(strings.TrimSpace(key))
		if dimensionAliases[k] == k {
			return 0
		}
		return 1
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// ParseLength converts "300mm", "30cm", "3m" or "3" to metres
func ParseLength(raw string) (float64, bool) {
	s := normalize(raw)
	m := valuePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return toMetres(v, m[2]), true
}

// ParseSection reads a cross-section such as "400x400" or "300×600mm".
// A trailing unit applies to both numbers.
func ParseSection(raw string) (w, h float64, ok bool) {
	s := normalize(raw)
	m := sectionPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	a, errA := strconv.ParseFloat(m[1], 64)
	b, errB := strconv.ParseFloat(m[2], 64)
	if errA != nil || errB != nil || a <= 0 || b <= 0 {
		return 0, 0, false
	}
	return toMetres(a, m[3]), toMetres(b, m[3]), true
}

func normalize(raw string) string {
	s := strings.ToLower(width.Fold.String(raw))
	s = strings.ReplaceAll(s, "毫米", "mm")
	s = strings.ReplaceAll(s, "厘米", "cm")
	s = strings.ReplaceAll(s, "米", "m")
	return strings.TrimSpace(s)
}

func toMetres(v float64, unit string) float64 {
	switch unit {
	case "mm":
		return v / 1000
	case "cm":
		return v / 100
	case "m":
		return v
	}
	if v >= bareMillimetreFloor {
		return v / 1000
	}
	return v
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func positiveDesc(vals ...float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v > 0 {
			out = append(out, v)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

func round6(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e6) / 1e6
}
