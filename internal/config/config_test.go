package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.TileSize != 2048 || cfg.TileOverlap != 256 || cfg.BatchSize != 8 {
		t.Errorf("Unexpected slicing defaults %d/%d/%d", cfg.TileSize, cfg.TileOverlap, cfg.BatchSize)
	}
	if cfg.StorageBackend != StorageMemory {
		t.Errorf("Expected memory storage by default, got %s", cfg.StorageBackend)
	}
	if !cfg.SkipBlankTiles || cfg.ContextualChaining {
		t.Error("Unexpected boolean defaults")
	}
	if cfg.ServerAddress() != "0.0.0.0:8080" {
		t.Errorf("Unexpected server address %s", cfg.ServerAddress())
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("TILE_SIZE", "1024")
	t.Setenv("TILE_OVERLAP", "128")
	t.Setenv("CONTEXTUAL_CHAINING", "true")
	t.Setenv("CHAIN_SCOPE", "row")
	t.Setenv("FUSION_SIMILARITY_THRESHOLD", "0.4")
	t.Setenv("TILE_TIMEOUT", "2m")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "drawings")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.TileSize != 1024 || cfg.TileOverlap != 128 {
		t.Errorf("Expected 1024/128, got %d/%d", cfg.TileSize, cfg.TileOverlap)
	}
	if !cfg.ContextualChaining || cfg.ChainScope != "row" {
		t.Error("Expected row-scoped chaining")
	}
	if cfg.FusionSimilarityThreshold != 0.4 {
		t.Errorf("Expected threshold 0.4, got %g", cfg.FusionSimilarityThreshold)
	}
	if cfg.TileTimeout != 2*time.Minute {
		t.Errorf("Expected 2m tile timeout, got %s", cfg.TileTimeout)
	}
	if cfg.StorageBackend != StorageS3 {
		t.Errorf("Expected s3 backend, got %s", cfg.StorageBackend)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"PORT": "http"}, "invalid PORT"},
		{"overlap too large", map[string]string{"TILE_SIZE": "512", "TILE_OVERLAP": "512"}, "invalid tile grid"},
		{"zero batch", map[string]string{"BATCH_SIZE": "0"}, "BATCH_SIZE"},
		{"unknown scope", map[string]string{"CHAIN_SCOPE": "column"}, "CHAIN_SCOPE"},
		{"threshold out of range", map[string]string{"FUSION_SIMILARITY_THRESHOLD": "1.5"}, "FUSION_SIMILARITY_THRESHOLD"},
		{"azure without key", map[string]string{"STORAGE_BACKEND": "azure", "AZURE_STORAGE_ACCOUNT": "acct"}, "AZURE_STORAGE_KEY"},
		{"s3 without bucket", map[string]string{"STORAGE_BACKEND": "s3"}, "S3_BUCKET"},
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "ftp"}, "unknown STORAGE_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("Expected error, got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseHelpers_IgnoreGarbage(t *testing.T) {
	t.Setenv("X_FLOAT", "abc")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DURATION", "-5s")

	if parseFloatOrDefault("X_FLOAT", 0.25) != 0.25 {
		t.Error("Expected float default")
	}
	if !parseBoolOrDefault("X_BOOL", true) {
		t.Error("Expected bool default")
	}
	if parseDurationOrDefault("X_DURATION", time.Second) != time.Second {
		t.Error("Expected duration default for negative value")
	}
}
