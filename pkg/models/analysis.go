package models

import "time"

// Channel identifies a recognition track
type Channel string

const (
	ChannelText   Channel = "text"
	ChannelVision Channel = "vision"
)

// CacheEntry is one cached recognition output for a tile and channel
type CacheEntry struct {
	TileKey   string      `json:"tile_key"`
	Channel   Channel     `json:"channel"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

// WarningKind categorizes a non-fatal problem recorded during a run
type WarningKind string

const (
	WarningTileRecognition WarningKind = "tile_recognition_failure"
	WarningResponseParse   WarningKind = "response_parse_failure"
	WarningFusionConflict  WarningKind = "fusion_conflict"
	WarningCacheCorruption WarningKind = "cache_corruption"
	WarningOverview        WarningKind = "overview_fallback"
	WarningCancelled       WarningKind = "cancelled"
)

// Warning describes a degraded step of the run
type Warning struct {
	Kind    WarningKind `json:"kind"`
	TileKey string      `json:"tile_key,omitempty"`
	Channel Channel     `json:"channel,omitempty"`
	Message string      `json:"message"`
}

// RunStats summarizes the work performed by one analysis run
type RunStats struct {
	Tiles          int     `json:"tiles"`
	Batches        int     `json:"batches"`
	SkippedBlank   int     `json:"skipped_blank"`
	TextCalls      int64   `json:"text_calls"`
	VisionCalls    int64   `json:"vision_calls"`
	CacheHits      int64   `json:"cache_hits"`
	CacheMisses    int64   `json:"cache_misses"`
	GridReused     bool    `json:"grid_reused"`
	ProcessingTime float64 `json:"processing_time_sec"`
}

// AnalysisResult is the terminal output of one drawing run
type AnalysisResult struct {
	RunID            string            `json:"run_id"`
	DrawingID        string            `json:"drawing_id"`
	Timestamp        time.Time         `json:"timestamp"`
	GlobalComponents []GlobalComponent `json:"global_components"`
	Overview         DrawingOverview   `json:"overview"`
	Warnings         []Warning         `json:"warnings"`

	// Merged drawing-space text, de-duplicated across tile overlaps
	TextRegions []TextRegion `json:"text_regions,omitempty"`

	Grid      SliceGrid `json:"grid"`
	Stats     RunStats  `json:"stats"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

// WarningsFor returns the warnings that reference the given tile
func (r *AnalysisResult) WarningsFor(tileKey string) []Warning {
	var out []Warning
	for _, w := range r.Warnings {
		if w.TileKey == tileKey {
			out = append(out, w)
		}
	}
	return out
}

// ProgressEvent is emitted after every completed batch
type ProgressEvent struct {
	RunID        string `json:"run_id"`
	DrawingID    string `json:"drawing_id"`
	Stage        string `json:"stage"`
	BatchIndex   int    `json:"batch_index"`
	TotalBatches int    `json:"total_batches"`
	TilesDone    int    `json:"tiles_done"`
	TotalTiles   int    `json:"total_tiles"`
	Warnings     int    `json:"warnings"`
}
