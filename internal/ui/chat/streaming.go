// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file batches streaming fragments for flicker-free rendering. Without
// batching the viewport re-renders per fragment, which at provider speeds
// means hundreds of frames a second.
package chat

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// StreamingBuffer accumulates fragments and releases them in batches, either
// when enough fragments have collected or when the frame interval elapses.
//
// Thread-safety: Write happens on the streaming goroutine, Flush on the
// Bubble Tea loop.
type StreamingBuffer struct {
	mu            sync.Mutex
	buffer        strings.Builder
	fragmentCount int
	lastFlush     time.Time

	batchSize     int
	flushInterval time.Duration
}

// NewStreamingBuffer creates a buffer tuned for ~30fps rendering.
func NewStreamingBuffer() *StreamingBuffer {
	return &StreamingBuffer{
		batchSize:     15,
		flushInterval: 33 * time.Millisecond,
		lastFlush:     time.Now(),
	}
}

// Write adds a fragment to the buffer.
func (sb *StreamingBuffer) Write(fragment string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(fragment)
	sb.fragmentCount++
}

// Flush returns the accumulated content if a batch or time threshold has
// been reached, and whether anything was returned.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	if sb.fragmentCount < sb.batchSize && time.Since(sb.lastFlush) < sb.flushInterval {
		return "", false
	}
	return sb.takeLocked(), true
}

// ForceFlush returns everything buffered regardless of thresholds. Called
// when a stream ends so no tail fragment is left unrendered.
func (sb *StreamingBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.takeLocked(), true
}

// Reset discards buffered content. Used when a stream is cancelled.
func (sb *StreamingBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.Reset()
	sb.fragmentCount = 0
	sb.lastFlush = time.Now()
}

// Pending returns the number of unflushed fragments.
func (sb *StreamingBuffer) Pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.fragmentCount
}

// takeLocked extracts the content and resets counters. Caller holds mu.
func (sb *StreamingBuffer) takeLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.fragmentCount = 0
	sb.lastFlush = time.Now()
	return content
}

// =============================================================================
// TICK COMMAND
// =============================================================================

// streamTickCmd drives the render loop at ~30fps while a stream is active.
func streamTickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return streamTickMsg{at: t}
	})
}
