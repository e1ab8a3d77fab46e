// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anthropic implements the client for the Anthropic Messages API.
//
// Only the streaming endpoint is used: the app renders responses as they
// arrive, and the stream carries the token usage needed for accounting.
package anthropic

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultBaseURL is the Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// apiVersion is the value of the required anthropic-version header.
	apiVersion = "2023-06-01"

	// DefaultMaxRetries is the number of attempts for transient errors
	// before the first response fragment. Once content has been delivered
	// the request is never retried: replaying a half-rendered answer would
	// duplicate text and double-count usage.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the exponential backoff.
	retryMaxDelay = 10 * time.Second

	// requestsPerSecond paces outbound requests well under the API's
	// account-level rate limits.
	requestsPerSecond = 2
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead. A single
// shared client serves all streaming requests; timeouts are context-driven
// because a healthy stream can legitimately run for minutes.
// SECURITY: TLS verification required, 1.2 minimum.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: false,
		},
	},
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates no API key is set.
	ErrNotConfigured = errors.New("Anthropic API key not configured")

	// ErrAuthFailed indicates the API rejected the key.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrOverloaded indicates the API is temporarily over capacity.
	ErrOverloaded = errors.New("API overloaded")
)

// APIError represents a structured error response from the Messages API.
type APIError struct {
	Type    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("Anthropic API error [%s] (HTTP %d): %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("Anthropic API error (HTTP %d): %s", e.Status, e.Message)
}

// Is maps API errors onto the package sentinels so callers can use errors.Is
// without inspecting status codes.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrOverloaded:
		return e.Type == "overloaded_error" || e.Status == http.StatusServiceUnavailable
	}
	return false
}

// apiErrorResponse is the JSON error envelope returned by the API.
type apiErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage is one turn of the conversation as sent on the wire.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request describes one streaming generation call.
type Request struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []ChatMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	maxRetries int

	// limiter paces outbound requests.
	limiter *rate.Limiter
}

// NewClient creates a client for the given API key. An empty key is allowed;
// requests then fail with ErrNotConfigured, which lets the app start and
// offer setup instead of refusing to launch.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		maxRetries: DefaultMaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// WithBaseURL overrides the API endpoint. Used by tests to point the client
// at a local server.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithMaxRetries overrides the retry budget.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// setHeaders sets the headers the Messages API requires.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", "claudechat/0.1.0")
}

// calculateBackoff returns the delay before the next retry attempt.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// handleErrorResponse converts a non-200 response body into a typed error.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &APIError{
			Type:    apiErr.Error.Type,
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}
	}

	// Fallback for unparseable error bodies.
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable:
		return ErrOverloaded
	default:
		return &APIError{
			Message: strings.TrimSpace(string(body)),
			Status:  statusCode,
		}
	}
}

// isRetryable reports whether an error before the first fragment should
// trigger another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrOverloaded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	return false
}
