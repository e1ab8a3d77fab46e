// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
	"time"
)

func TestStreamingBuffer_BatchThreshold(t *testing.T) {
	sb := NewStreamingBuffer()

	// Below the batch size and inside the frame interval: no flush.
	sb.Write("a")
	if _, ok := sb.Flush(); ok {
		t.Error("flushed a single fresh fragment")
	}

	// Reaching the batch size flushes regardless of elapsed time.
	for i := 0; i < 20; i++ {
		sb.Write("x")
	}
	content, ok := sb.Flush()
	if !ok {
		t.Fatal("batch threshold did not trigger a flush")
	}
	if content != "a"+strings.Repeat("x", 20) {
		t.Errorf("content = %q", content)
	}
	if sb.Pending() != 0 {
		t.Errorf("pending = %d after flush", sb.Pending())
	}
}

func TestStreamingBuffer_TimeThreshold(t *testing.T) {
	sb := NewStreamingBuffer()
	sb.Write("hello")

	time.Sleep(50 * time.Millisecond)
	content, ok := sb.Flush()
	if !ok {
		t.Fatal("time threshold did not trigger a flush")
	}
	if content != "hello" {
		t.Errorf("content = %q", content)
	}
}

func TestStreamingBuffer_ForceFlush(t *testing.T) {
	sb := NewStreamingBuffer()

	if _, ok := sb.ForceFlush(); ok {
		t.Error("force flush on empty buffer returned content")
	}

	sb.Write("tail")
	content, ok := sb.ForceFlush()
	if !ok || content != "tail" {
		t.Errorf("force flush = (%q, %v)", content, ok)
	}
}

func TestStreamingBuffer_Reset(t *testing.T) {
	sb := NewStreamingBuffer()
	sb.Write("discard me")
	sb.Reset()

	if _, ok := sb.ForceFlush(); ok {
		t.Error("reset did not discard buffered content")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"short line untouched", "hello world", 20, "hello world"},
		{"wraps at word boundary", "alpha beta gamma", 11, "alpha beta\ngamma"},
		{"preserves existing newlines", "one\ntwo", 10, "one\ntwo"},
		{"zero width is a no-op", "anything", 0, "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapText(tt.in, tt.width); got != tt.want {
				t.Errorf("wrapText(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestWrapText_LongWord(t *testing.T) {
	got := wrapText("abcdefghij", 4)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > 4 {
			t.Errorf("line %q exceeds width 4", line)
		}
	}
	if strings.ReplaceAll(got, "\n", "") != "abcdefghij" {
		t.Errorf("content lost during hard break: %q", got)
	}
}

func TestWrapText_WideRunes(t *testing.T) {
	// CJK characters are two cells wide; four of them exceed width 6.
	got := wrapText("你好世界", 6)
	if !strings.Contains(got, "\n") {
		t.Errorf("wide-rune line was not wrapped: %q", got)
	}
}
