package models

// AnalysisRequest represents a request for drawing analysis
type AnalysisRequest struct {
	URL       string `json:"url" binding:"required,url"`
	DrawingID string `json:"drawing_id,omitempty"`

	// Optional overrides of the configured slicing parameters
	TileSize           *int  `json:"tile_size,omitempty"`
	Overlap            *int  `json:"overlap,omitempty"`
	BatchSize          *int  `json:"batch_size,omitempty"`
	ConcurrencyCap     *int  `json:"concurrency_cap,omitempty"`
	ContextualChaining *bool `json:"contextual_chaining,omitempty"`
	ReuseExistingTiles bool  `json:"reuse_existing_tiles,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DrawingAnalysisResponse is the HTTP view of an AnalysisResult
type DrawingAnalysisResponse struct {
	RunID             string            `json:"run_id"`
	DrawingID         string            `json:"drawing_id"`
	ImageURL          string            `json:"image_url"`
	Timestamp         string            `json:"timestamp"`
	ProcessingTimeSec float64           `json:"processing_time_sec"`
	Components        []GlobalComponent `json:"components"`
	Overview          DrawingOverview   `json:"overview"`
	Warnings          []Warning         `json:"warnings"`
	Stats             RunStats          `json:"stats"`
	Artifacts         map[string]string `json:"artifacts,omitempty"`
	Cancelled         bool              `json:"cancelled,omitempty"`
}
