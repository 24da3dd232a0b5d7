package models

import "strings"

// Component types recognized by the quantity engine
const (
	ComponentSlab       = "slab"
	ComponentWall       = "wall"
	ComponentBeam       = "beam"
	ComponentColumn     = "column"
	ComponentFoundation = "foundation"
)

var componentAliases = map[string]string{
	"slab": ComponentSlab, "floor slab": ComponentSlab, "plate": ComponentSlab, "板": ComponentSlab, "楼板": ComponentSlab,
	"wall": ComponentWall, "shear wall": ComponentWall, "墙": ComponentWall, "剪力墙": ComponentWall,
	"beam": ComponentBeam, "girder": ComponentBeam, "梁": ComponentBeam, "框架梁": ComponentBeam,
	"column": ComponentColumn, "pillar": ComponentColumn, "柱": ComponentColumn, "框架柱": ComponentColumn,
	"foundation": ComponentFoundation, "footing": ComponentFoundation, "基础": ComponentFoundation,
}

// CanonicalComponentType maps English and Chinese type names onto the
// component constants. Unknown types are lower-cased and returned as is.
func CanonicalComponentType(t string) string {
	key := strings.ToLower(strings.TrimSpace(t))
	if canon, ok := componentAliases[key]; ok {
		return canon
	}
	return key
}

// TextRegion is a piece of recognized text. BBox is tile-local until the
// region has been restored to drawing space.
type TextRegion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
	TileKey    string  `json:"tile_key,omitempty"`
	Restored   bool    `json:"-"`
}

// Component is a structural element detected on a single tile
type Component struct {
	ComponentID   string            `json:"component_id"`
	ComponentType string            `json:"component_type"`
	Dimensions    map[string]string `json:"dimensions,omitempty"`
	Material      string            `json:"material,omitempty"`
	Confidence    float64           `json:"confidence"`
	BBox          BBox              `json:"bbox"`
	TileKey       string            `json:"tile_key,omitempty"`
}

// Clone returns a deep copy of the component
func (c Component) Clone() Component {
	out := c
	if c.Dimensions != nil {
		out.Dimensions = make(map[string]string, len(c.Dimensions))
		for k, v := range c.Dimensions {
			out.Dimensions[k] = v
		}
	}
	return out
}

// GlobalComponent is a component whose BBox is in drawing pixel space.
// SourceBlocks lists every tile that contributed to it after fusion.
type GlobalComponent struct {
	Component
	SourceBlocks   []string  `json:"source_blocks"`
	Conflict       bool      `json:"conflict"`
	ConflictFields []string  `json:"conflict_fields,omitempty"`
	Quantity       *Quantity `json:"quantity,omitempty"`

	// Restored marks that the tile offset has already been applied
	Restored bool `json:"restored"`
}

// Quantity holds derived measurements in meters, square meters and cubic meters
type Quantity struct {
	Length    float64 `json:"length"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Thickness float64 `json:"thickness"`
	Area      float64 `json:"area"`
	Volume    float64 `json:"volume"`
}

// DrawingOverview is drawing-level metadata used to prime the vision channel
type DrawingOverview struct {
	Title          string   `json:"title"`
	Scale          string   `json:"scale"`
	DrawingNumber  string   `json:"drawing_number"`
	ComponentTypes []string `json:"component_types"`
	Summary        string   `json:"summary,omitempty"`

	// Fallback is set when the overview could not be derived from the text
	Fallback bool `json:"fallback,omitempty"`
}
