// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package usage tracks cumulative token counts and API spend across restarts.
//
// The ledger is a single file-backed accumulator keyed by model. Counters
// only ever grow; normal operation never resets them. Every Record call
// performs exactly one durable write, so a crash loses at most the in-flight
// exchange's counters.
package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mforge/claudechat/internal/pricing"
	"github.com/mforge/claudechat/internal/util"
)

// ErrCorruptLedger indicates the backing file exists but cannot be parsed.
// The ledger refuses to start from zero in that case — silently discarding a
// user's historical spend would hide real data loss.
var ErrCorruptLedger = errors.New("corrupt usage ledger")

// ModelUsage holds the cumulative totals for one model.
type ModelUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Snapshot is a read-only copy of the ledger: per-model breakdown plus
// grand totals. It reflects the most recent committed Record call.
type Snapshot struct {
	InputTokens  int                   `json:"input_tokens"`
	OutputTokens int                   `json:"output_tokens"`
	CostUSD      float64               `json:"total_cost_usd"`
	ByModel      map[string]ModelUsage `json:"by_model"`
}

// TotalTokens returns the combined input and output token count.
func (s Snapshot) TotalTokens() int {
	return s.InputTokens + s.OutputTokens
}

// Ledger is the process-wide usage accumulator. All mutation goes through a
// single mutex so concurrent Record calls from two finishing sessions
// compose as sequential increments.
type Ledger struct {
	mu   sync.Mutex
	path string
	data Snapshot
}

// Open loads the ledger from path. A missing file yields an empty ledger; a
// present but unparsable file yields ErrCorruptLedger.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		data: Snapshot{ByModel: make(map[string]ModelUsage)},
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read usage ledger: %w", err)
	}

	if err := json.Unmarshal(raw, &l.data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLedger, path, err)
	}
	if l.data.ByModel == nil {
		l.data.ByModel = make(map[string]ModelUsage)
	}

	return l, nil
}

// Record adds an exchange's token counts to the model's running totals,
// computes its cost from the pricing table, and persists the whole ledger
// atomically. It returns the cost of this call.
//
// A model without a pricing entry still has its tokens recorded — billed
// tokens must always be reflected — but contributes zero cost, and
// pricing.ErrUnknownModel is returned so the caller can surface a warning.
func (l *Ledger) Record(model string, inputTokens, outputTokens int) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cost, priceErr := pricing.Cost(model, inputTokens, outputTokens)
	if priceErr != nil && !errors.Is(priceErr, pricing.ErrUnknownModel) {
		return 0, priceErr
	}

	l.data.InputTokens += inputTokens
	l.data.OutputTokens += outputTokens
	l.data.CostUSD += cost

	mu := l.data.ByModel[model]
	mu.InputTokens += inputTokens
	mu.OutputTokens += outputTokens
	mu.CostUSD += cost
	l.data.ByModel[model] = mu

	if err := l.persistLocked(); err != nil {
		return cost, err
	}
	return cost, priceErr
}

// Snapshot returns a deep copy of the current totals.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.data
	out.ByModel = make(map[string]ModelUsage, len(l.data.ByModel))
	for k, v := range l.data.ByModel {
		out.ByModel[k] = v
	}
	return out
}

// Path returns the backing file location.
func (l *Ledger) Path() string {
	return l.path
}

// persistLocked writes the ledger to disk. Callers must hold l.mu.
func (l *Ledger) persistLocked() error {
	data, err := json.MarshalIndent(&l.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage ledger: %w", err)
	}
	if err := util.AtomicWriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to persist usage ledger: %w", err)
	}
	return nil
}
