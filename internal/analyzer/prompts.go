package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"go-drawing-inspector/pkg/models"
)

const visionInstructions = `You are reading one tile of a structural engineering drawing.
List every structural component visible in this tile as a JSON object
{"components": [{"component_id": "...", "component_type": "slab|wall|beam|column|foundation",
"dimensions": {"length": "...", "width": "...", "height": "...", "thickness": "...", "section": "..."},
"material": "...", "confidence": 0.0, "bbox": [x1, y1, x2, y2]}]}.
Coordinates are pixels of the attached image. Answer with JSON only.`

const overviewInstructions = `The following text was recognized on a structural engineering drawing.
Return a JSON object {"title": "...", "scale": "...", "drawing_number": "...",
"component_types": ["..."], "summary": "..."}. Use empty strings for unknown fields.
Answer with JSON only.`

// tileContext is the prior-tile information passed along in chained mode
type tileContext struct {
	TileKey    string             `json:"tile"`
	Components []models.Component `json:"components"`
}

func buildVisionPrompt(tile models.TileSpec, overview models.DrawingOverview, previous []tileContext) string {
	var b strings.Builder
	b.WriteString(visionInstructions)
	fmt.Fprintf(&b, "\n\nTile %s at offset (%d,%d), %dx%d pixels.", tile.Key(), tile.XOffset, tile.YOffset, tile.Width, tile.Height)

	if !overview.Fallback {
		fmt.Fprintf(&b, "\nDrawing: %q, scale %q, number %q.", overview.Title, overview.Scale, overview.DrawingNumber)
		if len(overview.ComponentTypes) > 0 {
			fmt.Fprintf(&b, "\nExpected component types: %s.", strings.Join(overview.ComponentTypes, ", "))
		}
		if overview.Summary != "" {
			fmt.Fprintf(&b, "\nSummary: %s", overview.Summary)
		}
	}

	if len(previous) > 0 {
		ctx, err := json.Marshal(previous)
		if err == nil {
			b.WriteString("\n\nComponents already found on the preceding tile(s). Keep their IDs and material grades consistent:\n")
			b.Write(ctx)
		}
	}
	return b.String()
}

func buildOverviewPrompt(text string) string {
	return overviewInstructions + "\n\n" + text
}
