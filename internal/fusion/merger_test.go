package fusion

import (
	"testing"

	"go-drawing-inspector/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func global(tile, id, typ string, conf float64, box models.BBox) models.GlobalComponent {
	return models.GlobalComponent{
		Component: models.Component{
			ComponentID:   id,
			ComponentType: typ,
			Confidence:    conf,
			BBox:          box,
			TileKey:       tile,
		},
		SourceBlocks: []string{tile},
		Restored:     true,
	}
}

func TestMerge_OverlapDuplicates(t *testing.T) {
	m := NewMerger(DefaultOptions())
	in := []models.GlobalComponent{
		global("r0_c1", "", models.ComponentWall, 0.9, models.BBox{X1: 10, Y1: 0, X2: 110, Y2: 100}),
		global("r0_c0", "", models.ComponentWall, 0.6, models.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}),
	}

	out := m.Merge(in)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"r0_c0", "r0_c1"}, out[0].SourceBlocks)
	assert.Equal(t, models.BBox{X1: 10, Y1: 0, X2: 110, Y2: 100}, out[0].BBox, "geometry comes from the most confident member")
	assert.False(t, out[0].Conflict)
}

func TestMerge_SameIDAcrossTiles(t *testing.T) {
	in := []models.GlobalComponent{
		global("r0_c0", "KZ-1", "column", 0.8, models.BBox{X1: 0, Y1: 0, X2: 40, Y2: 40}),
		global("r3_c5", "ｋｚ1", "柱", 0.7, models.BBox{X1: 9000, Y1: 6000, X2: 9040, Y2: 6040}),
	}

	near := NewMerger(DefaultOptions()).Merge(in)
	assert.Len(t, near, 2, "distant boxes with equal IDs stay apart by default")

	opts := DefaultOptions()
	opts.IDMatchMode = IDMatchAnywhere
	anywhere := NewMerger(opts).Merge(in)
	require.Len(t, anywhere, 1)
	assert.Equal(t, []string{"r0_c0", "r3_c5"}, anywhere[0].SourceBlocks)
	assert.Equal(t, models.ComponentColumn, anywhere[0].ComponentType)
}

func TestMerge_RepeatedTypeMarksStaySeparate(t *testing.T) {
	in := []models.GlobalComponent{
		global("r0_c0", "KZ1", models.ComponentColumn, 0.9, models.BBox{X1: 100, Y1: 100, X2: 160, Y2: 160}),
		global("r0_c5", "KZ1", models.ComponentColumn, 0.9, models.BBox{X1: 9000, Y1: 100, X2: 9060, Y2: 160}),
		global("r3_c2", "KZ1", models.ComponentColumn, 0.9, models.BBox{X1: 4000, Y1: 5500, X2: 4060, Y2: 5560}),
		global("r0_c1", "KZ1", models.ComponentColumn, 0.6, models.BBox{X1: 200, Y1: 100, X2: 260, Y2: 160}),
	}

	out := NewMerger(DefaultOptions()).Merge(in)
	require.Len(t, out, 3, "each placed column is counted once")
	assert.Equal(t, []string{"r0_c0", "r0_c1"}, out[0].SourceBlocks, "a neighbouring sighting within the radius still merges")
	for _, gc := range out[1:] {
		assert.Len(t, gc.SourceBlocks, 1)
	}
}

func TestMerge_DifferentTypesStayApart(t *testing.T) {
	box := models.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	out := NewMerger(DefaultOptions()).Merge([]models.GlobalComponent{
		global("r0_c0", "B1", models.ComponentBeam, 0.9, box),
		global("r0_c0", "B1", models.ComponentSlab, 0.9, box),
	})
	assert.Len(t, out, 2)
}

func TestMerge_ConflictingAttributes(t *testing.T) {
	a := global("r0_c0", "KL2", models.ComponentBeam, 0.9, models.BBox{X1: 0, Y1: 0, X2: 300, Y2: 30})
	a.Material = "C30"
	a.Dimensions = map[string]string{"width": "300mm", "height": "600mm"}
	b := global("r0_c1", "KL2", models.ComponentBeam, 0.5, models.BBox{X1: 500, Y1: 0, X2: 800, Y2: 30})
	b.Material = "C35"
	b.Dimensions = map[string]string{"width": "300 mm", "length": "6000mm"}

	out := NewMerger(DefaultOptions()).Merge([]models.GlobalComponent{a, b})
	require.Len(t, out, 1)
	got := out[0]
	assert.True(t, got.Conflict)
	assert.Equal(t, []string{"material"}, got.ConflictFields)
	assert.Equal(t, "C30", got.Material, "attributes come from the most confident member")
	assert.Equal(t, "6000mm", got.Dimensions["length"], "missing dimensions are filled in")
}

func TestMerge_Idempotent(t *testing.T) {
	a := global("r1_c0", "KZ1", models.ComponentColumn, 0.7, models.BBox{X1: 1800, Y1: 1800, X2: 1900, Y2: 1900})
	a.Material = "C30"
	b := global("r1_c1", "KZ1", models.ComponentColumn, 0.9, models.BBox{X1: 1805, Y1: 1800, X2: 1905, Y2: 1900})
	b.Material = "C35"
	in := []models.GlobalComponent{
		a,
		global("r0_c0", "", models.ComponentWall, 0.6, models.BBox{X1: 0, Y1: 0, X2: 500, Y2: 20}),
		global("r0_c1", "", models.ComponentWall, 0.8, models.BBox{X1: 5, Y1: 0, X2: 505, Y2: 20}),
		b,
		global("r2_c2", "L1", models.ComponentBeam, 0.5, models.BBox{X1: 4000, Y1: 4000, X2: 4600, Y2: 4030}),
	}

	m := NewMerger(DefaultOptions())
	once := m.Merge(in)
	twice := m.Merge(once)

	require.Len(t, once, 3)
	assert.Equal(t, once, twice)
}

func TestMerge_DeterministicForInputOrder(t *testing.T) {
	in := []models.GlobalComponent{
		global("r0_c0", "A1", models.ComponentColumn, 0.5, models.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}),
		global("r0_c1", "A1", models.ComponentColumn, 0.5, models.BBox{X1: 1, Y1: 0, X2: 11, Y2: 10}),
		global("r1_c0", "", models.ComponentSlab, 0.9, models.BBox{X1: 0, Y1: 900, X2: 800, Y2: 1500}),
	}
	reversed := []models.GlobalComponent{in[2], in[1], in[0]}

	m := NewMerger(DefaultOptions())
	assert.Equal(t, m.Merge(in), m.Merge(reversed))
}

func TestMerge_FuzzyIDs(t *testing.T) {
	in := []models.GlobalComponent{
		global("r0_c0", "KZ1", models.ComponentColumn, 0.8, models.BBox{X1: 0, Y1: 0, X2: 40, Y2: 40}),
		global("r2_c2", "KX1", models.ComponentColumn, 0.8, models.BBox{X1: 5000, Y1: 5000, X2: 5040, Y2: 5040}),
		global("r2_c3", "KZ2", models.ComponentColumn, 0.8, models.BBox{X1: 7000, Y1: 5000, X2: 7040, Y2: 5040}),
	}

	assert.Len(t, NewMerger(DefaultOptions()).Merge(in), 3)

	opts := DefaultOptions()
	opts.IDMatchMode = IDMatchAnywhere
	opts.FuzzyIDDistance = 1
	out := NewMerger(opts).Merge(in)
	assert.Len(t, out, 2, "KZ1 and KX1 merge, KZ2 keeps its own number")
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KZ1", "KZ1"},
		{"ＫＺ-1", "KZ1"},
		{"kz 1", "KZ1"},
		{"KL_2a", "KL2A"},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeID(tt.in))
		})
	}
}

func TestDedupTextRegions(t *testing.T) {
	regions := []models.TextRegion{
		{Text: "KL2 300x600", Confidence: 0.7, TileKey: "r0_c0", BBox: models.BBox{X1: 1900, Y1: 100, X2: 2000, Y2: 120}},
		{Text: "KL2 300x600", Confidence: 0.9, TileKey: "r0_c1", BBox: models.BBox{X1: 1902, Y1: 100, X2: 2002, Y2: 120}},
		{Text: "C30", Confidence: 0.8, TileKey: "r0_c1", BBox: models.BBox{X1: 1902, Y1: 100, X2: 2002, Y2: 120}},
		{Text: "KL2 300x600", Confidence: 0.8, TileKey: "r1_c0", BBox: models.BBox{X1: 100, Y1: 3000, X2: 200, Y2: 3020}},
	}

	out := DedupTextRegions(regions, 0.5)
	require.Len(t, out, 3)
	assert.Equal(t, "r0_c1", out[0].TileKey, "the more confident reading wins")
	assert.Equal(t, 0.9, out[0].Confidence)
}

func TestSameText(t *testing.T) {
	assert.True(t, SameText("KL2 300x600", "kl2 300x600"))
	assert.True(t, SameText("ＫＬ２", "KL2"))
	assert.False(t, SameText("C30", "KL2"))
	assert.False(t, SameText("", "C30"))
}
