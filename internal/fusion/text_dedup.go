package fusion

import (
	"math"
	"sort"
	"strings"

	"go-drawing-inspector/pkg/models"

	"github.com/codycollier/wer"
	"golang.org/x/text/width"
)

// maxDuplicateWER is the word error rate below which two overlapping
// regions are read as the same annotation
const maxDuplicateWER = 0.34

// DedupTextRegions removes text that was recognized twice because it lies in
// the overlap of two tiles. Regions must already be in drawing space. Of two
// duplicates the one with higher confidence is kept.
func DedupTextRegions(regions []models.TextRegion, iouThreshold float64) []models.TextRegion {
	if len(regions) == 0 {
		return nil
	}
	if iouThreshold <= 0 {
		iouThreshold = 0.5
	}

	sorted := make([]models.TextRegion, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool { return regionLess(sorted[i], sorted[j]) })

	kept := make([]models.TextRegion, 0, len(sorted))
	for _, r := range sorted {
		dup := -1
		for k := range kept {
			if kept[k].BBox.IoU(r.BBox) >= iouThreshold && SameText(kept[k].Text, r.Text) {
				dup = k
				break
			}
		}
		switch {
		case dup < 0:
			kept = append(kept, r)
		case r.Confidence > kept[dup].Confidence:
			kept[dup] = r
		}
	}
	return kept
}

func regionLess(a, b models.TextRegion) bool {
	ar, ac, _ := models.ParseTileKey(a.TileKey)
	br, bc, _ := models.ParseTileKey(b.TileKey)
	switch {
	case ar != br:
		return ar < br
	case ac != bc:
		return ac < bc
	case a.BBox.Y1 != b.BBox.Y1:
		return a.BBox.Y1 < b.BBox.Y1
	case a.BBox.X1 != b.BBox.X1:
		return a.BBox.X1 < b.BBox.X1
	}
	return a.Text < b.Text
}

// SameText compares two readings of an annotation. Multi-word texts are
// compared by word error rate, single words by character error rate.
func SameText(a, b string) bool {
	ref := strings.Fields(strings.ToUpper(width.Fold.String(a)))
	cand := strings.Fields(strings.ToUpper(width.Fold.String(b)))
	if len(ref) == 0 || len(cand) == 0 {
		return len(ref) == len(cand)
	}
	if len(ref) == 1 && len(cand) == 1 {
		ref, cand = strings.Split(ref[0], ""), strings.Split(cand[0], "")
	}
	rate, _ := wer.WER(ref, cand)
	if math.IsNaN(rate) {
		return false
	}
	return rate < maxDuplicateWER
}
