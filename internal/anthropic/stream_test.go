// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// writeSSE writes one SSE event and flushes it.
func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func testRequest() Request {
	return Request{
		Model:     "claude-sonnet-4-6",
		MaxTokens: 1024,
		Messages:  []ChatMessage{{Role: "user", Content: "hello"}},
	}
}

func TestStream_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-ant-test" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "message_start", `{"type":"message_start","message":{"usage":{"input_tokens":12}}}`)
		writeSSE(w, "content_block_start", `{"type":"content_block_start"}`)
		writeSSE(w, "ping", `{"type":"ping"}`)
		writeSSE(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello"}}`)
		writeSSE(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":" world"}}`)
		writeSSE(w, "content_block_stop", `{"type":"content_block_stop"}`)
		writeSSE(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`)
		writeSSE(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	c := NewClient("sk-ant-test").WithBaseURL(srv.URL)

	var text strings.Builder
	var inputTokens, outputTokens int
	var stopReason string

	err := c.Stream(context.Background(), testRequest(), func(ev Event) {
		text.WriteString(ev.Text)
		if ev.InputTokens > 0 {
			inputTokens = ev.InputTokens
		}
		if ev.StopReason != "" {
			stopReason = ev.StopReason
			outputTokens = ev.OutputTokens
		}
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if text.String() != "Hello world" {
		t.Errorf("text = %q, want %q", text.String(), "Hello world")
	}
	if inputTokens != 12 || outputTokens != 7 {
		t.Errorf("usage = (%d, %d), want (12, 7)", inputTokens, outputTokens)
	}
	if stopReason != "end_turn" {
		t.Errorf("stop reason = %q", stopReason)
	}
}

func TestStream_NotConfigured(t *testing.T) {
	c := NewClient("")
	err := c.Stream(context.Background(), testRequest(), func(Event) {})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStream_AuthFailedNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c := NewClient("sk-ant-bad").WithBaseURL(srv.URL)
	err := c.Stream(context.Background(), testRequest(), func(Event) {})

	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth failure was retried: %d calls", calls.Load())
	}
}

func TestStream_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"ok"}}`)
		writeSSE(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	c := NewClient("sk-ant-test").WithBaseURL(srv.URL)

	var text strings.Builder
	err := c.Stream(context.Background(), testRequest(), func(ev Event) {
		text.WriteString(ev.Text)
	})
	if err != nil {
		t.Fatalf("Stream failed after retry: %v", err)
	}
	if text.String() != "ok" {
		t.Errorf("text = %q", text.String())
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestStream_NoRetryAfterFirstFragment(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`)
		writeSSE(w, "error", `{"type":"error","error":{"type":"overloaded_error","message":"mid-stream failure"}}`)
	}))
	defer srv.Close()

	c := NewClient("sk-ant-test").WithBaseURL(srv.URL)

	var text strings.Builder
	err := c.Stream(context.Background(), testRequest(), func(ev Event) {
		text.WriteString(ev.Text)
	})

	if err == nil {
		t.Fatal("expected error")
	}
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected StreamError, got %T: %v", err, err)
	}
	if streamErr.Partial == 0 {
		t.Error("StreamError should report partial content")
	}
	if text.String() != "partial" {
		t.Errorf("text = %q, partial content must be delivered", text.String())
	}
	if calls.Load() != 1 {
		t.Errorf("mid-stream failure was retried: %d calls", calls.Load())
	}
}

func TestStream_Cancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"first"}}`)
		<-release // hold the stream open until the client gives up
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient("sk-ant-test").WithBaseURL(srv.URL)

	var text strings.Builder
	err := c.Stream(ctx, testRequest(), func(ev Event) {
		text.WriteString(ev.Text)
		cancel() // cancel as soon as the first fragment lands
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if text.String() != "first" {
		t.Errorf("text = %q, fragment before cancel must survive", text.String())
	}
}

func TestStreamChan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"a"}}`)
		writeSSE(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"b"}}`)
		writeSSE(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	c := NewClient("sk-ant-test").WithBaseURL(srv.URL)
	events, errc := c.StreamChan(context.Background(), testRequest())

	var text strings.Builder
	for ev := range events {
		text.WriteString(ev.Text)
	}
	if err := <-errc; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if text.String() != "ab" {
		t.Errorf("text = %q, want %q", text.String(), "ab")
	}
}

func TestSSEReader(t *testing.T) {
	input := "event: message_start\ndata: {\"a\":1}\n\n" +
		": comment line\n" +
		"data: {\"b\":2}\n\n" +
		"data: line1\ndata: line2\n\n"

	r := NewSSEReader(strings.NewReader(input))

	typ, data, err := r.ReadEvent()
	if err != nil || typ != "message_start" || string(data) != `{"a":1}` {
		t.Errorf("event 1 = (%q, %q, %v)", typ, data, err)
	}

	typ, data, err = r.ReadEvent()
	if err != nil || typ != "" || string(data) != `{"b":2}` {
		t.Errorf("event 2 = (%q, %q, %v)", typ, data, err)
	}

	_, data, err = r.ReadEvent()
	if err != nil || string(data) != "line1\nline2" {
		t.Errorf("event 3 = (%q, %v)", data, err)
	}

	if _, _, err = r.ReadEvent(); err == nil {
		t.Error("expected EOF")
	}
}
