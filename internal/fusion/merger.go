package fusion

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"go-drawing-inspector/pkg/models"

	"github.com/arbovm/levenshtein"
	"golang.org/x/text/width"
)

// ID matching modes
const (
	// IDMatchAnywhere links equal IDs regardless of where they were seen.
	// Repeated type marks such as three KZ1 columns collapse into one.
	IDMatchAnywhere = "anywhere"
	// IDMatchProximity links equal IDs only when their boxes are close
	IDMatchProximity = "proximity"
)

// Options tunes how candidates are grouped
type Options struct {
	// SimilarityThreshold is the IoU at or above which two boxes of the same
	// type are the same component
	SimilarityThreshold float64

	IDMatchMode     string
	ProximityRadius float64

	// FuzzyIDDistance allows IDs to differ by this many letter edits, 0 disables
	FuzzyIDDistance int
}

// DefaultProximityRadius matches the default tile overlap in pixels
const DefaultProximityRadius = 256

// DefaultOptions returns the merger defaults
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.5,
		IDMatchMode:         IDMatchProximity,
		ProximityRadius:     DefaultProximityRadius,
	}
}

// Merger groups drawing-space detections into unique components
type Merger struct {
	opts Options
}

// NewMerger creates a merger. A non-positive threshold falls back to the default.
func NewMerger(opts Options) *Merger {
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		opts.SimilarityThreshold = DefaultOptions().SimilarityThreshold
	}
	if opts.IDMatchMode == "" {
		opts.IDMatchMode = IDMatchProximity
	}
	return &Merger{opts: opts}
}

// NormalizeID folds full-width characters, upper-cases and strips separators
// so that "ＫＺ-1", "kz 1" and "KZ1" compare equal.
func NormalizeID(id string) string {
	folded := width.Fold.String(id)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

type candidate struct {
	gc   models.GlobalComponent
	typ  string
	id   string
	row  int
	col  int
	seen int
}

// Merge returns one component per group of duplicates. The output is sorted
// canonically, so merging an already merged set changes nothing.
func (m *Merger) Merge(components []models.GlobalComponent) []models.GlobalComponent {
	if len(components) == 0 {
		return nil
	}

	items := make([]candidate, len(components))
	for i, gc := range components {
		row, col, ok := models.ParseTileKey(gc.TileKey)
		if !ok {
			row, col = math.MaxInt32, math.MaxInt32
		}
		items[i] = candidate{
			gc:   gc,
			typ:  models.CanonicalComponentType(gc.ComponentType),
			id:   NormalizeID(gc.ComponentID),
			row:  row,
			col:  col,
			seen: i,
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return canonicalLess(items[i], items[j]) })

	uf := newUnionFind(len(items))
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if m.linked(items[i], items[j]) {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range items {
		root := uf.find(i)
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], i)
	}

	out := make([]models.GlobalComponent, 0, len(roots))
	for _, root := range roots {
		members := make([]candidate, 0, len(groups[root]))
		for _, idx := range groups[root] {
			members = append(members, items[idx])
		}
		out = append(out, fuse(members))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return canonicalLess(asCandidate(out[i]), asCandidate(out[j]))
	})
	return out
}

func asCandidate(gc models.GlobalComponent) candidate {
	row, col, ok := models.ParseTileKey(gc.TileKey)
	if !ok {
		row, col = math.MaxInt32, math.MaxInt32
	}
	return candidate{gc: gc, typ: models.CanonicalComponentType(gc.ComponentType), id: NormalizeID(gc.ComponentID), row: row, col: col}
}

// canonicalLess orders by tile row, tile column, then geometry and identity
func canonicalLess(a, b candidate) bool {
	if a.row != b.row {
		return a.row < b.row
	}
	if a.col != b.col {
		return a.col < b.col
	}
	ab, bb := a.gc.BBox, b.gc.BBox
	switch {
	case ab.Y1 != bb.Y1:
		return ab.Y1 < bb.Y1
	case ab.X1 != bb.X1:
		return ab.X1 < bb.X1
	case ab.Y2 != bb.Y2:
		return ab.Y2 < bb.Y2
	case ab.X2 != bb.X2:
		return ab.X2 < bb.X2
	case a.typ != b.typ:
		return a.typ < b.typ
	case a.id != b.id:
		return a.id < b.id
	case a.gc.Confidence != b.gc.Confidence:
		return a.gc.Confidence > b.gc.Confidence
	}
	return a.seen < b.seen
}

func (m *Merger) linked(a, b candidate) bool {
	if a.typ != b.typ {
		return false
	}
	if a.gc.BBox.IoU(b.gc.BBox) >= m.opts.SimilarityThreshold {
		return true
	}
	if !m.sameID(a.id, b.id) {
		return false
	}
	if m.opts.IDMatchMode == IDMatchProximity {
		return gap(a.gc.BBox, b.gc.BBox) <= m.opts.ProximityRadius
	}
	return true
}

func (m *Merger) sameID(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if m.opts.FuzzyIDDistance <= 0 {
		return false
	}
	// numbering must agree exactly, only the letter code may be misread
	letterA, digitsA := splitID(a)
	letterB, digitsB := splitID(b)
	if digitsA != digitsB || letterA == "" || letterB == "" {
		return false
	}
	return levenshtein.Distance(letterA, letterB) <= m.opts.FuzzyIDDistance
}

func splitID(id string) (letters, digits string) {
	var l, d strings.Builder
	for _, r := range id {
		if unicode.IsDigit(r) {
			d.WriteRune(r)
		} else {
			l.WriteRune(r)
		}
	}
	return l.String(), d.String()
}

// gap is the distance between the closest edges of two boxes, 0 if they touch
func gap(a, b models.BBox) float64 {
	dx := math.Max(0, math.Max(a.X1-b.X2, b.X1-a.X2))
	dy := math.Max(0, math.Max(a.Y1-b.Y2, b.Y1-a.Y2))
	return math.Hypot(dx, dy)
}

// fuse builds the group result. Members arrive in canonical order.
func fuse(members []candidate) models.GlobalComponent {
	best := 0
	for i := 1; i < len(members); i++ {
		if members[i].gc.Confidence > members[best].gc.Confidence {
			best = i
		}
	}

	rep := members[best].gc
	out := models.GlobalComponent{
		Component: rep.Component.Clone(),
		Quantity:  rep.Quantity,
		Restored:  rep.Restored,
	}
	out.ComponentType = members[best].typ

	sources := make(map[string]struct{})
	conflicts := make(map[string]struct{})
	for _, mbr := range members {
		for _, s := range mbr.gc.SourceBlocks {
			sources[s] = struct{}{}
		}
		if len(mbr.gc.SourceBlocks) == 0 && mbr.gc.TileKey != "" {
			sources[mbr.gc.TileKey] = struct{}{}
		}
		if mbr.gc.Conflict {
			for _, f := range mbr.gc.ConflictFields {
				conflicts[f] = struct{}{}
			}
		}
	}

	for _, mbr := range members {
		if mbr.id != "" && members[best].id != "" && mbr.id != members[best].id {
			conflicts["component_id"] = struct{}{}
		}
		switch {
		case mbr.gc.Material == "":
		case out.Material == "":
			out.Material = mbr.gc.Material
		case normalizeValue(mbr.gc.Material) != normalizeValue(out.Material):
			conflicts["material"] = struct{}{}
		}
		for k, v := range mbr.gc.Dimensions {
			repValue, ok := out.Dimensions[k]
			if !ok {
				// fill gaps from lower-confidence members
				if out.Dimensions == nil {
					out.Dimensions = make(map[string]string)
				}
				out.Dimensions[k] = v
				continue
			}
			if normalizeValue(repValue) != normalizeValue(v) {
				conflicts["dimensions."+k] = struct{}{}
			}
		}
	}

	out.SourceBlocks = sortedKeys(sources)
	out.ConflictFields = sortedKeys(conflicts)
	out.Conflict = len(out.ConflictFields) > 0 || anyConflict(members)
	return out
}

func anyConflict(members []candidate) bool {
	for _, m := range members {
		if m.gc.Conflict {
			return true
		}
	}
	return false
}

func normalizeValue(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(width.Fold.String(v)), ""))
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
