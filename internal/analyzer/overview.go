package analyzer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go-drawing-inspector/internal/recognition"
	"go-drawing-inspector/pkg/models"
)

// DefaultOverview is used when no overview could be derived
func DefaultOverview() models.DrawingOverview {
	return models.DrawingOverview{
		Title:          "",
		Scale:          "",
		DrawingNumber:  "",
		ComponentTypes: []string{},
		Fallback:       true,
	}
}

// overviewExtractor summarizes the drawing text once per run
type overviewExtractor struct {
	model recognition.LanguageModel
}

// extract asks the language model for drawing metadata. It never fails; on
// any problem it records a warning and returns DefaultOverview.
func (o *overviewExtractor) extract(ctx context.Context, r *run, regions []models.TextRegion) models.DrawingOverview {
	if o.model == nil {
		return DefaultOverview()
	}

	text := truncateText(joinRegions(regions), r.opts.OverviewCharBudget)
	if text == "" {
		r.warn(models.WarningOverview, "", "", "no text recognized, using default overview")
		return DefaultOverview()
	}

	var raw string
	err := r.call(ctx, models.ChannelVision, "", func(ctx context.Context) error {
		answer, err := o.model.Complete(ctx, buildOverviewPrompt(text))
		if err != nil {
			return err
		}
		raw = answer
		return nil
	})
	if err != nil {
		r.warn(models.WarningOverview, "", "", fmt.Sprintf("overview request failed: %v", err))
		return DefaultOverview()
	}

	ov, err := ParseOverview(raw)
	if err != nil {
		r.warn(models.WarningOverview, "", "", fmt.Sprintf("malformed overview: %v", err))
		return DefaultOverview()
	}
	if ov.ComponentTypes == nil {
		ov.ComponentTypes = []string{}
	}
	return ov
}

func joinRegions(regions []models.TextRegion) string {
	parts := make([]string, 0, len(regions))
	for _, r := range regions {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// truncateText keeps at most budget characters and marks what was cut
func truncateText(text string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}
	runes := []rune(text)
	return string(runes[:budget]) + fmt.Sprintf("…[truncated %d chars]", len(runes)-budget)
}
