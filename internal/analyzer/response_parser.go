package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go-drawing-inspector/pkg/models"
)

// ParseOutcome is the result of parsing a model answer. It is one of
// Parsed, PartialParsed or Failed.
type ParseOutcome interface {
	outcome()
}

// Parsed means every element of the answer decoded cleanly
type Parsed struct {
	Components []models.Component
	Strategy   string
}

// PartialParsed means some elements were dropped. Raw keeps the full answer
// for later review.
type PartialParsed struct {
	Components []models.Component
	Strategy   string
	Dropped    int
	Raw        string
}

// Failed means no parser strategy produced usable data
type Failed struct {
	Reason string
}

func (Parsed) outcome()        {}
func (PartialParsed) outcome() {}
func (Failed) outcome()        {}

// ComponentsOf returns the components carried by an outcome
func ComponentsOf(o ParseOutcome) []models.Component {
	switch v := o.(type) {
	case Parsed:
		return v.Components
	case PartialParsed:
		return v.Components
	default:
		return nil
	}
}

// extractor turns a raw answer into a JSON candidate
type extractor struct {
	name    string
	extract func(raw string) (string, bool)
}

// parserChain is tried in order; the first candidate that decodes wins
var parserChain = []extractor{
	{name: "direct", extract: extractDirect},
	{name: "fenced", extract: extractFenced},
	{name: "markers", extract: extractMarkers},
	{name: "span", extract: extractSpan},
}

func extractDirect(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	return s, s != ""
}

func extractFenced(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return "", false
	}
	rest := raw[start+3:]
	// drop the language tag on the opening fence
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return "", false
	}
	s := strings.TrimSpace(rest[:end])
	return s, s != ""
}

// extractMarkers drops leading and trailing lines that cannot start or end
// a JSON document, such as "JSON:" labels, "---" rules or prose.
func extractMarkers(raw string) (string, bool) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	first, last := 0, len(lines)-1
	for first <= last && !opensJSON(lines[first]) {
		first++
	}
	for last >= first && !closesJSON(lines[last]) {
		last--
	}
	if first > last {
		return "", false
	}
	s := strings.TrimSpace(strings.Join(lines[first:last+1], "\n"))
	return s, s != ""
}

func opensJSON(line string) bool {
	l := strings.TrimSpace(line)
	return strings.HasPrefix(l, "{") || strings.HasPrefix(l, "[")
}

func closesJSON(line string) bool {
	l := strings.TrimSpace(line)
	return strings.HasSuffix(l, "}") || strings.HasSuffix(l, "]")
}

// extractSpan takes the outermost bracketed span of the answer
func extractSpan(raw string) (string, bool) {
	start := strings.IndexAny(raw, "[{")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if raw[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(raw, closer)
	if end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// decodeLayered feeds each extractor's candidate to decode until one succeeds
func decodeLayered(raw string, decode func([]byte) error) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("empty response")
	}
	var lastErr error
	for _, p := range parserChain {
		candidate, ok := p.extract(raw)
		if !ok {
			continue
		}
		if err := decode([]byte(candidate)); err != nil {
			lastErr = err
			continue
		}
		return p.name, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON found")
	}
	return "", lastErr
}

// ParseComponents parses a vision answer. Accepted shapes are a bare array of
// components, an object with a "components" array, or a single component.
func ParseComponents(raw string) ParseOutcome {
	var items []json.RawMessage
	name, err := decodeLayered(raw, func(data []byte) error {
		list, err := componentList(data)
		if err != nil {
			return err
		}
		items = list
		return nil
	})
	if err != nil {
		return Failed{Reason: err.Error()}
	}

	components := make([]models.Component, 0, len(items))
	dropped := 0
	for _, item := range items {
		c, err := decodeComponent(item)
		if err != nil {
			dropped++
			continue
		}
		components = append(components, c)
	}
	if dropped > 0 {
		if len(components) == 0 {
			return Failed{Reason: fmt.Sprintf("all %d components malformed", dropped)}
		}
		return PartialParsed{Components: components, Strategy: name, Dropped: dropped, Raw: raw}
	}
	return Parsed{Components: components, Strategy: name}
}

func componentList(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if inner, ok := obj["components"]; ok {
		var list []json.RawMessage
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, fmt.Errorf("components field: %w", err)
		}
		return list, nil
	}
	if _, ok := obj["component_type"]; ok {
		return []json.RawMessage{data}, nil
	}
	return nil, fmt.Errorf("object has no components")
}

type rawComponent struct {
	ComponentID   string                     `json:"component_id"`
	ID            string                     `json:"id"`
	ComponentType string                     `json:"component_type"`
	Type          string                     `json:"type"`
	Dimensions    map[string]json.RawMessage `json:"dimensions"`
	Material      string                     `json:"material"`
	Confidence    *float64                   `json:"confidence"`
	BBox          json.RawMessage            `json:"bbox"`
}

func decodeComponent(data json.RawMessage) (models.Component, error) {
	var rc rawComponent
	if err := json.Unmarshal(data, &rc); err != nil {
		return models.Component{}, err
	}

	typ := rc.ComponentType
	if typ == "" {
		typ = rc.Type
	}
	if strings.TrimSpace(typ) == "" {
		return models.Component{}, fmt.Errorf("component without type")
	}
	id := rc.ComponentID
	if id == "" {
		id = rc.ID
	}

	bbox, err := decodeBBox(rc.BBox)
	if err != nil {
		return models.Component{}, err
	}

	c := models.Component{
		ComponentID:   strings.TrimSpace(id),
		ComponentType: models.CanonicalComponentType(typ),
		Material:      strings.TrimSpace(rc.Material),
		Confidence:    0.5,
		BBox:          bbox,
	}
	if rc.Confidence != nil {
		c.Confidence = clamp01(*rc.Confidence)
	}
	if len(rc.Dimensions) > 0 {
		c.Dimensions = make(map[string]string, len(rc.Dimensions))
		for k, v := range rc.Dimensions {
			if s, ok := scalarString(v); ok {
				c.Dimensions[strings.ToLower(strings.TrimSpace(k))] = s
			}
		}
	}
	return c, nil
}

// decodeBBox accepts [x1,y1,x2,y2], {x1,y1,x2,y2} or {x,y,width,height}
func decodeBBox(data json.RawMessage) (models.BBox, error) {
	if len(data) == 0 || string(data) == "null" {
		return models.BBox{}, fmt.Errorf("component without bbox")
	}

	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 4 {
			return models.BBox{}, fmt.Errorf("bbox needs 4 values, got %d", len(arr))
		}
		return normalizeBBox(models.BBox{X1: arr[0], Y1: arr[1], X2: arr[2], Y2: arr[3]})
	}

	var obj struct {
		X1, Y1, X2, Y2 *float64
		X, Y           *float64
		Width, Height  *float64
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return models.BBox{}, fmt.Errorf("bbox: %w", err)
	}
	switch {
	case obj.X1 != nil && obj.Y1 != nil && obj.X2 != nil && obj.Y2 != nil:
		return normalizeBBox(models.BBox{X1: *obj.X1, Y1: *obj.Y1, X2: *obj.X2, Y2: *obj.Y2})
	case obj.X != nil && obj.Y != nil && obj.Width != nil && obj.Height != nil:
		return normalizeBBox(models.BBox{X1: *obj.X, Y1: *obj.Y, X2: *obj.X + *obj.Width, Y2: *obj.Y + *obj.Height})
	}
	return models.BBox{}, fmt.Errorf("unrecognized bbox shape")
}

func normalizeBBox(b models.BBox) (models.BBox, error) {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	if !b.Valid() {
		return models.BBox{}, fmt.Errorf("degenerate bbox %v", b)
	}
	return b, nil
}

func scalarString(v json.RawMessage) (string, bool) {
	if string(bytes.TrimSpace(v)) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

// ParseOverview parses the language model's overview answer
func ParseOverview(raw string) (models.DrawingOverview, error) {
	var ov models.DrawingOverview
	_, err := decodeLayered(raw, func(data []byte) error {
		var candidate models.DrawingOverview
		if err := json.Unmarshal(data, &candidate); err != nil {
			return err
		}
		if candidate.Title == "" && candidate.Scale == "" && candidate.DrawingNumber == "" &&
			len(candidate.ComponentTypes) == 0 && candidate.Summary == "" {
			return fmt.Errorf("overview has no fields")
		}
		ov = candidate
		return nil
	})
	if err != nil {
		return models.DrawingOverview{}, err
	}
	for i, t := range ov.ComponentTypes {
		ov.ComponentTypes[i] = models.CanonicalComponentType(t)
	}
	ov.Fallback = false
	return ov, nil
}
