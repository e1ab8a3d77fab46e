// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// STREAMING: Robust SSE parsing with error handling

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
// SECURITY: Bounds memory use against a misbehaving server.
const MaxEventSize = 64 * 1024

// =============================================================================
// STREAM EVENTS
// =============================================================================

// Event is one decoded occurrence on the response stream, already reduced to
// what callers need. Exactly one category applies per event:
//
//   - Text != ""       a response fragment
//   - InputTokens > 0  prompt-side usage, known at stream start
//   - StopReason != "" the generation finished; OutputTokens carries the
//     final response-side count
type Event struct {
	Text         string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// EventCallback receives each decoded stream event in arrival order.
type EventCallback func(Event)

// Wire format of the Messages API stream. Each SSE event's data is a JSON
// object discriminated by "type"; one struct covers the fields of all the
// event types this client cares about.
type wireEvent struct {
	Type    string `json:"type"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// StreamError is an error that interrupted an in-progress stream, preserving
// how much content had arrived before the failure.
type StreamError struct {
	Partial int // fragment characters received before the error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial > 0 {
		return fmt.Sprintf("stream interrupted after %d chars: %v", e.Partial, e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates an SSE reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event, returning its event type and joined
// data payload. Returns io.EOF when the stream ends cleanly.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	var size int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// Flush a trailing unterminated event before EOF.
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		size += len(line)
		if size > MaxEventSize {
			return "", nil, fmt.Errorf("SSE event too large: %d bytes", size)
		}

		if bytes.HasPrefix(line, []byte("event:")) {
			eventType = string(bytes.TrimSpace(line[6:]))
		} else if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (id:, retry:, comments starting with :).
	}
}

// =============================================================================
// STREAMING MESSAGES CALL
// =============================================================================

// Stream sends a generation request and delivers decoded events to the
// callback in order. It retries transient failures (429, 5xx, overload) with
// exponential backoff, but only before the first fragment: once any content
// has been delivered, failures surface as a StreamError instead, so the
// caller can keep the partial response.
func (c *Client) Stream(ctx context.Context, req Request, callback EventCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	req.Stream = true

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	delivered := 0

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			// SECURITY: log the failure class only, never the request body.
			log.Printf("anthropic: retrying after transient error (attempt %d/%d): %v",
				attempt+1, c.maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		// Pace outbound requests under the account rate limit.
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(httpReq)

		resp, err := sharedStreamingClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxEventSize))
			resp.Body.Close()
			apiErr := handleErrorResponse(resp.StatusCode, body)
			if isRetryable(apiErr) {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		err = c.processStream(ctx, resp.Body, callback, &delivered)
		resp.Body.Close()
		if err != nil {
			if delivered > 0 || ctx.Err() != nil {
				// Mid-stream failure: no retry, the caller keeps the partial.
				return err
			}
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return fmt.Errorf("max retries exceeded")
}

// processStream decodes SSE events until message_stop or stream end.
// delivered counts fragment characters handed to the callback so the retry
// loop knows whether any content escaped.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback EventCallback, delivered *int) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		eventType, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &StreamError{Partial: *delivered, Err: err}
		}

		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Skip malformed events rather than abort the stream.
			continue
		}
		if ev.Type == "" {
			ev.Type = eventType
		}

		switch ev.Type {
		case "message_start":
			if ev.Message.Usage.InputTokens > 0 {
				callback(Event{InputTokens: ev.Message.Usage.InputTokens})
			}

		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				*delivered += len(ev.Delta.Text)
				callback(Event{Text: ev.Delta.Text})
			}

		case "message_delta":
			callback(Event{
				StopReason:   ev.Delta.StopReason,
				OutputTokens: ev.Usage.OutputTokens,
			})

		case "message_stop":
			return nil

		case "error":
			return &StreamError{
				Partial: *delivered,
				Err: &APIError{
					Type:    ev.Error.Type,
					Message: ev.Error.Message,
					Status:  http.StatusOK, // carried in-band, not as HTTP status
				},
			}
		}
		// ping, content_block_start, content_block_stop carry nothing we use.
	}
}

// =============================================================================
// CHANNEL-BASED STREAMING
// =============================================================================

// StreamChan runs Stream in a goroutine and returns its events on a channel.
// The event channel closes when the stream ends; a terminal error, if any,
// arrives on the error channel.
func (c *Client) StreamChan(ctx context.Context, req Request) (<-chan Event, <-chan error) {
	events := make(chan Event, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		err := c.Stream(ctx, req, func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errc <- err
		}
	}()

	return events, errc
}
