package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go-drawing-inspector/internal/recognition"
	"go-drawing-inspector/pkg/models"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: url, APIKey: "test-key", Model: "vision-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.backoff = time.Millisecond
	return c
}

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, content)
}

func TestClient_AnalyzeSendsImageAndPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string            `json:"role"`
				Content []json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "vision-test" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Errorf("expected one message with two parts, got %+v", req.Messages)
			return
		}
		if !strings.Contains(string(req.Messages[0].Content[1]), "data:image/png;base64,") {
			t.Error("expected inline png image")
		}
		reply(w, `[{"component_id":"KZ1"}]`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	tile := recognition.CropTile(image.NewGray(image.Rect(0, 0, 16, 16)), models.TileSpec{Width: 16, Height: 16})

	out, err := c.Analyze(context.Background(), tile, "list the components")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `[{"component_id":"KZ1"}]` {
		t.Errorf("unexpected content %q", out)
	}
}

func TestClient_RetryPolicy(t *testing.T) {
	tests := []struct {
		name          string
		responses     []int
		expectCalls   int32
		expectError   bool
		errorContains string
	}{
		{"success first try", []int{200}, 1, false, ""},
		{"5xx then success", []int{503, 200}, 2, false, ""},
		{"429 is retried", []int{429, 200}, 2, false, ""},
		{"4xx is final", []int{400}, 1, true, "openai upstream 400"},
		{"all 5xx", []int{500, 502, 503}, 3, true, "after 3 attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.responses[min(int(n)-1, len(tt.responses)-1)]
				if status != http.StatusOK {
					http.Error(w, "upstream busy", status)
					return
				}
				reply(w, `{"title":"Plan"}`)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)
			_, err := c.Complete(context.Background(), "summarize")

			if calls.Load() != tt.expectCalls {
				t.Errorf("expected %d calls, got %d", tt.expectCalls, calls.Load())
			}
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error containing %q, got %v", tt.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestClient_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	c.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Complete(ctx, "x"); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("expected cancellation to interrupt backoff")
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without api key")
	}
}
