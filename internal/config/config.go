package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends for drawing artifacts
const (
	StorageMemory = "memory"
	StorageAzure  = "azure"
	StorageS3     = "s3"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64

	// Slicing and scheduling
	TileSize           int
	TileOverlap        int
	BatchSize          int
	ConcurrencyCap     int
	ContextualChaining bool
	ContextWindow      int
	ChainScope         string
	TileTimeout        time.Duration
	TileMaxRetries     int
	RequestsPerMinute  int
	SkipBlankTiles     bool

	// Fusion and overview
	FusionSimilarityThreshold float64
	FusionFuzzyIDDistance     int
	OverviewCharBudget        int
	VisionMaxEdge             int

	// Recognition channels
	OCRLanguage   string
	VisionBaseURL string
	VisionModel   string
	VisionAPIKey  string

	// Artifact storage
	StorageBackend        string
	AzureStorageAccount   string
	AzureStorageKey       string
	AzureStorageContainer string
	S3Bucket              string
	AWSRegion             string

	// Progress fan-out; disabled when RedisHost is empty
	RedisHost             string
	RedisPort             string
	ProgressChannelPrefix string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// RedisAddress returns host:port of the progress broker
func (c *Config) RedisAddress() string {
	return net.JoinHostPort(strings.TrimSpace(c.RedisHost), strings.TrimSpace(c.RedisPort))
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 60*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 30*time.Minute),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 1024*1024), // 1MB

		TileSize:           int(parseIntOrDefault("TILE_SIZE", 2048)),
		TileOverlap:        int(parseIntOrDefault("TILE_OVERLAP", 256)),
		BatchSize:          int(parseIntOrDefault("BATCH_SIZE", 8)),
		ConcurrencyCap:     int(parseIntOrDefault("CONCURRENCY_CAP", 4)),
		ContextualChaining: parseBoolOrDefault("CONTEXTUAL_CHAINING", false),
		ContextWindow:      int(parseIntOrDefault("CONTEXT_WINDOW", 1)),
		ChainScope:         getEnvOrDefault("CHAIN_SCOPE", "sequence"),
		TileTimeout:        parseDurationOrDefault("TILE_TIMEOUT", 90*time.Second),
		TileMaxRetries:     int(parseIntOrDefault("TILE_MAX_RETRIES", 1)),
		RequestsPerMinute:  int(parseIntOrDefault("REQUESTS_PER_MINUTE", 0)),
		SkipBlankTiles:     parseBoolOrDefault("SKIP_BLANK_TILES", true),

		FusionSimilarityThreshold: parseFloatOrDefault("FUSION_SIMILARITY_THRESHOLD", 0.5),
		FusionFuzzyIDDistance:     int(parseIntOrDefault("FUSION_FUZZY_ID_DISTANCE", 0)),
		OverviewCharBudget:        int(parseIntOrDefault("OVERVIEW_CHAR_BUDGET", 6000)),
		VisionMaxEdge:             int(parseIntOrDefault("VISION_MAX_EDGE", 1536)),

		OCRLanguage:   getEnvOrDefault("OCR_LANGUAGE", "chi_sim+eng"),
		VisionBaseURL: getEnvOrDefault("VISION_BASE_URL", "https://api.openai.com/v1"),
		VisionModel:   getEnvOrDefault("VISION_MODEL", "gpt-4o"),
		VisionAPIKey:  os.Getenv("VISION_API_KEY"),

		StorageBackend:        strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StorageMemory)),
		AzureStorageAccount:   os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:       os.Getenv("AZURE_STORAGE_KEY"),
		AzureStorageContainer: getEnvOrDefault("AZURE_STORAGE_CONTAINER", "drawings"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		AWSRegion:             getEnvOrDefault("AWS_REGION", "us-east-1"),

		RedisHost:             os.Getenv("REDIS_HOST"),
		RedisPort:             getEnvOrDefault("REDIS_PORT", "6379"),
		ProgressChannelPrefix: getEnvOrDefault("PROGRESS_CHANNEL_PREFIX", "drawing_progress:"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and backend-specific requirements
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.AnalysisTimeout)
	}
	if c.TileSize <= 0 || c.TileOverlap < 0 || c.TileOverlap >= c.TileSize {
		return fmt.Errorf("invalid tile grid: TILE_SIZE=%d TILE_OVERLAP=%d", c.TileSize, c.TileOverlap)
	}
	if c.BatchSize <= 0 || c.ConcurrencyCap <= 0 {
		return fmt.Errorf("BATCH_SIZE and CONCURRENCY_CAP must be > 0 (got %d, %d)", c.BatchSize, c.ConcurrencyCap)
	}
	if c.ChainScope != "sequence" && c.ChainScope != "row" {
		return fmt.Errorf("CHAIN_SCOPE must be sequence or row (got %q)", c.ChainScope)
	}
	if c.FusionSimilarityThreshold <= 0 || c.FusionSimilarityThreshold > 1 {
		return fmt.Errorf("FUSION_SIMILARITY_THRESHOLD must be in (0, 1] (got %g)", c.FusionSimilarityThreshold)
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageAzure:
		if c.AzureStorageAccount == "" || c.AzureStorageKey == "" {
			return fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 storage requires S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
