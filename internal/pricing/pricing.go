// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pricing maps model identifiers to per-token rates and computes
// exchange costs. Rates are data, not logic: the table can be updated or
// extended without touching the calculation.
package pricing

import (
	"errors"
	"fmt"
	"sync"
)

// Rates holds a model's price per one million tokens in USD.
type Rates struct {
	Input  float64 // USD per 1M input tokens
	Output float64 // USD per 1M output tokens
}

// ErrUnknownModel indicates the model has no pricing entry. The caller
// decides whether to treat the cost as zero or surface a warning; this
// package never substitutes a default rate, since a guessed rate would
// corrupt the ledger's accounting meaning.
var ErrUnknownModel = errors.New("unknown model")

// defaultRates is the built-in price list, per Anthropic pricing as of
// February 2026.
var defaultRates = map[string]Rates{
	"claude-opus-4-6":           {Input: 5.00, Output: 25.00},
	"claude-sonnet-4-6":         {Input: 3.00, Output: 15.00},
	"claude-haiku-4-5-20251001": {Input: 1.00, Output: 5.00},
}

var (
	mu    sync.RWMutex
	rates = func() map[string]Rates {
		m := make(map[string]Rates, len(defaultRates))
		for k, v := range defaultRates {
			m[k] = v
		}
		return m
	}()
)

// Lookup returns the rates for a model.
func Lookup(model string) (Rates, error) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := rates[model]
	if !ok {
		return Rates{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return r, nil
}

// Register adds or replaces the rates for a model. Used when the price list
// changes or a new model ships before a release carries its entry.
func Register(model string, r Rates) {
	mu.Lock()
	defer mu.Unlock()
	rates[model] = r
}

// Models returns the identifiers with pricing entries.
func Models() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(rates))
	for m := range rates {
		out = append(out, m)
	}
	return out
}

// Cost computes the USD cost of an exchange.
func Cost(model string, inputTokens, outputTokens int) (float64, error) {
	r, err := Lookup(model)
	if err != nil {
		return 0, err
	}
	return float64(inputTokens)/1e6*r.Input + float64(outputTokens)/1e6*r.Output, nil
}
