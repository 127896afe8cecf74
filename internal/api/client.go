// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat API client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrTimeout  = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrCanceled = &ClientError{Type: ErrTypeCanceled, Message: "request canceled"}
)

// IsCanceled checks if an error indicates a canceled request, directly or
// anywhere in its cause chain.
func IsCanceled(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrTypeCanceled
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the chat API client.
type ClientConfig struct {
	// BaseURL is the API base URL (default: https://api.openai.com/v1)
	BaseURL string

	// APIKey is the bearer credential sent with every request.
	APIKey string

	// Model is the model requested for completions.
	Model string

	// Timeout bounds the wait for response headers. The streaming body is
	// not subject to it; cancellation happens via context.
	Timeout time.Duration

	// Temperature and MaxTokens are passed through to the request when set.
	Temperature float64
	MaxTokens   int
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with an OpenAI-compatible chat endpoint.
//
// Example:
//
//	client := api.NewClient(&api.ClientConfig{APIKey: key, Model: "gpt-4o-mini"})
//	res := client.StreamChat(ctx, messages, func(delta string) {
//	    fmt.Print(delta)
//	})
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new client, filling in defaults for zero values.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		// No whole-request timeout: a healthy stream can outlive any fixed
		// deadline. Only the wait for response headers is bounded.
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: config.Timeout,
			},
		},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// SetModel updates the model used for subsequent requests.
func (c *Client) SetModel(model string) {
	c.config.Model = model
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// DeltaCallback is called for each content delta, in arrival order.
type DeltaCallback func(delta string)

// StreamChat performs one streaming chat attempt carrying the full
// conversation history and returns its outcome. The callback runs
// synchronously for every delta, so terminal output is live.
//
// Failure classification:
//   - request could not be sent or got no response: OK=false, Status=0, Err set
//   - non-2xx response: OK=false with Status and the error body; nothing emitted
//   - terminator frame: OK=true, stream abandoned immediately
//   - EOF without terminator: OK=true with whatever was accumulated
//     (partial output is never discarded)
func (c *Client) StreamChat(ctx context.Context, messages []Message, onDelta DeltaCallback) AttemptResult {
	reqBody := ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return AttemptResult{Err: &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		return AttemptResult{Err: &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return AttemptResult{Err: ErrTimeout}
		case errors.Is(err, context.Canceled):
			return AttemptResult{Err: ErrCanceled}
		default:
			return AttemptResult{Err: &ClientError{Type: ErrTypeConnection, Message: "request failed", Cause: err}}
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AttemptResult{
			Status:    resp.StatusCode,
			ErrorBody: readErrorBody(resp.Body),
		}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return AttemptResult{Status: resp.StatusCode, ErrorBody: "empty response body"}
	}

	return c.consumeStream(ctx, resp, onDelta)
}

// consumeStream drives decoder -> frame parser -> callback over the response
// body, accumulating every delta into the reply.
func (c *Client) consumeStream(ctx context.Context, resp *http.Response, onDelta DeltaCallback) AttemptResult {
	var (
		decoder LineDecoder
		// PERFORMANCE: strings.Builder avoids quadratic accumulation
		reply strings.Builder
		buf   = make([]byte, 4096)
	)

	emit := func(frame Frame) (done bool) {
		switch frame.Kind {
		case FrameDelta:
			reply.WriteString(frame.Delta)
			if onDelta != nil {
				onDelta(frame.Delta)
			}
		case FrameDone:
			return true
		}
		return false
	}

	for {
		if err := ctx.Err(); err != nil {
			// Cancellation ends the turn; keep what already arrived.
			return AttemptResult{OK: true, Reply: reply.String(), Status: resp.StatusCode}
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range decoder.Feed(buf[:n]) {
				if emit(ParseFrame(line)) {
					// Terminator: stop consuming immediately, even if more
					// bytes are pending.
					return AttemptResult{OK: true, Reply: reply.String(), Status: resp.StatusCode}
				}
			}
		}
		if err != nil {
			// A final unterminated line still counts; flush it through the
			// parser before deciding the outcome.
			if tail := decoder.Flush(); tail != "" {
				emit(ParseFrame(tail))
			}
			if err == io.EOF || reply.Len() > 0 {
				// Early close without a terminator is a successful partial
				// completion, not an error.
				return AttemptResult{OK: true, Reply: reply.String(), Status: resp.StatusCode}
			}
			return AttemptResult{
				Status: resp.StatusCode,
				Err:    &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err},
			}
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// endpoint joins the base URL and a path without doubling slashes.
func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + path
}

// maxErrorBody caps how much of a failed response is retained.
const maxErrorBody = 8 << 10

// readErrorBody extracts a concise error message from a failed response,
// preferring the structured API error envelope over the raw body.
func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var envelope apiError
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
