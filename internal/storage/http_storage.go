package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DrawingFetcher downloads and decodes a rasterized drawing
type DrawingFetcher interface {
	FetchDrawing(ctx context.Context, drawingURL string) (image.Image, string, error)
}

const fetchAttempts = 3

// HTTPDrawingFetcher implements DrawingFetcher over plain HTTP(S)
type HTTPDrawingFetcher struct {
	client  *http.Client
	backoff time.Duration
}

// NewHTTPDrawingFetcher creates an HTTP drawing fetcher. Scanned sheets are
// large, so the client timeout is longer than for ordinary images.
func NewHTTPDrawingFetcher(timeout time.Duration) *HTTPDrawingFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
	}

	return &HTTPDrawingFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		backoff: time.Second,
	}
}

// WithBackoff sets the base delay between retries. Attempt n waits n*base.
func (h *HTTPDrawingFetcher) WithBackoff(base time.Duration) *HTTPDrawingFetcher {
	h.backoff = base
	return h
}

// FetchDrawing downloads the drawing and returns it with its decoded format.
// 5xx answers and network errors are retried; 4xx answers are not.
func (h *HTTPDrawingFetcher) FetchDrawing(ctx context.Context, drawingURL string) (image.Image, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, drawingURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/png, image/tiff, image/jpeg, image/webp, image/bmp, */*")
	req.Header.Set("User-Agent", "Go-Drawing-Inspector/1.0")

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		resp, err = h.client.Do(req)
		if err != nil {
			lastErr = err
			resp = nil
		} else if resp.StatusCode == http.StatusOK {
			break
		} else {
			resp.Body.Close()
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, "", fmt.Errorf("failed to fetch drawing: %w",
					fmt.Errorf("client error: status code %d", resp.StatusCode))
			}
			lastErr = fmt.Errorf("server error: status code %d", resp.StatusCode)
			resp = nil
		}

		if attempt < fetchAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(time.Duration(attempt+1) * h.backoff):
			}
		}
	}

	if resp == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("unknown error")
		}
		return nil, "", fmt.Errorf("failed to fetch drawing after %d attempts: %w", fetchAttempts, lastErr)
	}
	defer resp.Body.Close()

	img, format, err := image.Decode(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode drawing: %w", err)
	}
	return img, format, nil
}
