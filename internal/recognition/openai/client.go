// Package openai talks to an OpenAI-compatible chat completions endpoint and
// serves as both the vision channel and the overview language model.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-drawing-inspector/internal/logger"
	"go-drawing-inspector/internal/recognition"

	"github.com/sirupsen/logrus"
)

const maxAttempts = 3

// Options configures the client
type Options struct {
	BaseURL      string
	Model        string
	APIKey       string
	Timeout      time.Duration
	Temperature  *float64
	SystemPrompt string
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
}

// Client implements recognition.VisionRecognizer and recognition.LanguageModel
type Client struct {
	hc      *http.Client
	url     string
	opts    Options
	backoff time.Duration
}

// New creates a client for the chat completions endpoint under opts.BaseURL
func New(opts Options) (*Client, error) {
	opts.defaults()
	if opts.APIKey == "" {
		return nil, errors.New("openai: missing api key")
	}
	return &Client{
		hc:      &http.Client{Timeout: opts.Timeout},
		url:     strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		opts:    opts,
		backoff: time.Second,
	}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// UpstreamError carries a non-2xx status from the endpoint
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("openai upstream %d: %s", e.Status, e.Body)
}

// Retryable reports whether another attempt may succeed
func (e *UpstreamError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Analyze sends the tile image together with prompt
func (c *Client) Analyze(ctx context.Context, tile recognition.TileImage, prompt string) (string, error) {
	data, err := tile.PNG()
	if err != nil {
		return "", fmt.Errorf("encode tile %s: %w", tile.Tile.Key(), err)
	}
	parts := []contentPart{
		{Type: "text", Text: prompt},
		{Type: "image_url", ImageURL: &imageURL{
			URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
			Detail: "high",
		}},
	}
	return c.chat(ctx, message{Role: "user", Content: parts})
}

// Complete sends a text-only prompt
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, message{Role: "user", Content: prompt})
}

func (c *Client) chat(ctx context.Context, user message) (string, error) {
	req := chatRequest{Model: c.opts.Model, Temperature: c.opts.Temperature}
	if c.opts.SystemPrompt != "" {
		req.Messages = append(req.Messages, message{Role: "system", Content: c.opts.SystemPrompt})
	}
	req.Messages = append(req.Messages, user)

	body, err := json.Marshal(&req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts++
		content, err := c.post(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err

		var upstream *UpstreamError
		if errors.As(err, &upstream) && !upstream.Retryable() {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < maxAttempts-1 {
			logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"model":   c.opts.Model,
			}).WithError(err).Warn("Chat completion failed, retrying")
			if err := sleepCtx(ctx, time.Duration(attempt+1)*c.backoff); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
