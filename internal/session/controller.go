// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session coordinates one exchange at a time per conversation: it
// persists the user's message, streams the model's reply, commits the result
// and records its usage.
//
// RELIABILITY: Every payment-relevant step is ordered so a crash at any point
// loses at most the in-flight exchange. The user message is durable before
// the network call starts; the assistant message is durable before its usage
// reaches the ledger.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mforge/claudechat/internal/anthropic"
	"github.com/mforge/claudechat/internal/model"
	"github.com/mforge/claudechat/internal/storage"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrBusySession indicates a send was attempted while the session already
// has an exchange in flight. One exchange at a time keeps the on-disk
// history strictly alternating and the accounting unambiguous.
var ErrBusySession = errors.New("session busy")

// =============================================================================
// STATES
// =============================================================================

// State describes where a session's in-flight exchange currently is.
type State int

const (
	// StateIdle means no exchange is in flight.
	StateIdle State = iota
	// StateSending covers user-message persistence and request setup.
	StateSending
	// StateStreaming means response fragments are arriving.
	StateStreaming
	// StateFinalizing covers commit and usage recording.
	StateFinalizing
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Streamer is the transport dependency: it runs one streaming generation
// call and delivers decoded events in order.
type Streamer interface {
	Stream(ctx context.Context, req anthropic.Request, callback anthropic.EventCallback) error
}

// Recorder is the accounting dependency, satisfied by *usage.Ledger.
type Recorder interface {
	Record(model string, inputTokens, outputTokens int) (float64, error)
}

// =============================================================================
// UPDATES
// =============================================================================

// UpdateKind discriminates the updates emitted during an exchange.
type UpdateKind int

const (
	// UpdateText carries one response fragment.
	UpdateText UpdateKind = iota
	// UpdateDone carries the committed assistant message of a completed
	// or cancelled exchange, plus its recorded cost.
	UpdateDone
	// UpdateError carries the committed assistant message of a failed
	// exchange and the terminal error.
	UpdateError
)

// Update is one event on the channel returned by Send.
type Update struct {
	Kind    UpdateKind
	Text    string        // UpdateText
	Message model.Message // UpdateDone, UpdateError
	CostUSD float64       // UpdateDone
	Err     error         // UpdateError, or a non-fatal accounting warning on UpdateDone
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs exchanges against sessions. Safe for concurrent use;
// different sessions may stream simultaneously, each session at most once.
type Controller struct {
	store  *storage.Store
	ledger Recorder
	stream Streamer

	mu     sync.Mutex
	active map[string]*flight
}

// flight tracks one in-progress exchange.
type flight struct {
	state  State
	cancel context.CancelFunc
}

// NewController wires the controller to its store, ledger and transport.
func NewController(store *storage.Store, ledger Recorder, stream Streamer) *Controller {
	return &Controller{
		store:  store,
		ledger: ledger,
		stream: stream,
		active: make(map[string]*flight),
	}
}

// State returns the session's current exchange state.
func (c *Controller) State(sessionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.active[sessionID]; ok {
		return f.state
	}
	return StateIdle
}

// Cancel aborts the session's in-flight exchange, if any. The partial
// response received so far is still committed; Cancel reports whether there
// was anything to cancel.
func (c *Controller) Cancel(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.active[sessionID]; ok {
		f.cancel()
		return true
	}
	return false
}

// setState updates the in-flight state if the exchange is still registered.
func (c *Controller) setState(sessionID string, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.active[sessionID]; ok {
		f.state = s
	}
}

// Send starts one exchange: it persists the user message, then streams the
// reply in a background goroutine, delivering updates on the returned
// channel. The channel closes after the terminal UpdateDone or UpdateError.
//
// Returns ErrBusySession if the session already has an exchange in flight,
// and persists nothing in that case.
func (c *Controller) Send(ctx context.Context, sessionID, content string) (<-chan Update, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	// Per-session gate. Registered before any disk write so a racing second
	// Send fails cleanly without touching the history.
	c.mu.Lock()
	if _, busy := c.active[sessionID]; busy {
		c.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrBusySession, sessionID)
	}
	c.active[sessionID] = &flight{state: StateSending, cancel: cancel}
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.active, sessionID)
		c.mu.Unlock()
		cancel()
	}

	// The user message must be durable before the network call: a crash
	// mid-stream must never lose what the user typed.
	sess, err := c.store.AppendMessage(sessionID, model.NewUserMessage(content))
	if err != nil {
		release()
		return nil, err
	}

	updates := make(chan Update, 64)
	go func() {
		defer close(updates)
		defer release()
		c.run(streamCtx, sess, updates)
	}()
	return updates, nil
}

// run executes the streaming exchange. The session snapshot already contains
// the persisted user message.
func (c *Controller) run(ctx context.Context, sess *model.Session, updates chan<- Update) {
	var builder model.AssistantBuilder
	stopReason := ""

	streamErr := c.stream.Stream(ctx, buildRequest(sess), func(ev anthropic.Event) {
		switch {
		case ev.Text != "":
			if builder.Len() == 0 {
				c.setState(sess.ID, StateStreaming)
			}
			builder.Append(ev.Text)
			updates <- Update{Kind: UpdateText, Text: ev.Text}
		case ev.InputTokens > 0:
			builder.SetUsage(ev.InputTokens, 0)
		case ev.StopReason != "":
			stopReason = ev.StopReason
			builder.SetUsage(0, ev.OutputTokens)
		case ev.OutputTokens > 0:
			// Running output count without a stop reason yet.
			builder.SetUsage(0, ev.OutputTokens)
		}
	})

	c.setState(sess.ID, StateFinalizing)

	cancelled := streamErr != nil &&
		(errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded))

	var msg model.Message
	switch {
	case streamErr == nil:
		if stopReason == "" {
			stopReason = model.StopEndTurn
		}
		msg = builder.Finalize(stopReason)
	case cancelled:
		// User abort: keep the partial text as a normal message.
		msg = builder.Finalize(model.StopCancelled)
	default:
		msg = builder.FinalizeError(streamErr.Error())
	}

	// Commit before recording. If the append fails the exchange surfaces as
	// an error and the ledger is untouched: usage may be under-counted after
	// a crash, never attributed to a message that does not exist.
	if _, err := c.store.AppendMessage(sess.ID, msg); err != nil {
		updates <- Update{Kind: UpdateError, Message: msg, Err: err}
		return
	}

	// Any reported usage reaches the ledger, even when the stream died before
	// the first text delta: the provider bills for the prompt as soon as it
	// reports counts. Only an exchange that never reported usage at all stays
	// unrecorded.
	var cost float64
	var recordErr error
	if in, out := builder.Usage(); in+out > 0 {
		cost, recordErr = c.ledger.Record(sess.Model, in, out)
	}

	if streamErr != nil && !cancelled {
		updates <- Update{Kind: UpdateError, Message: msg, Err: streamErr}
		return
	}
	// A pricing gap or ledger write failure rides along as a warning; the
	// exchange itself succeeded and its message is committed.
	updates <- Update{Kind: UpdateDone, Message: msg, CostUSD: cost, Err: recordErr}
}

// buildRequest converts the session history into a wire request. Messages
// with no content are dropped: the API rejects empty turns, and a failed
// exchange's empty assistant bubble is history for the user, not context for
// the model.
func buildRequest(sess *model.Session) anthropic.Request {
	msgs := make([]anthropic.ChatMessage, 0, len(sess.Messages))
	for i := range sess.Messages {
		m := &sess.Messages[i]
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, anthropic.ChatMessage{
			Role:    m.Role.String(),
			Content: m.Content,
		})
	}
	return anthropic.Request{
		Model:       sess.Model,
		MaxTokens:   sess.MaxTokens,
		Temperature: sess.Temperature,
		System:      sess.SystemPrompt,
		Messages:    msgs,
		Stream:      true,
	}
}
