// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"
)

func TestArgParser_Flags(t *testing.T) {
	p := NewArgParser([]string{"abc123", "--format", "json", "--out=chat.json", "--verbose"})

	if p.Positional(0) != "abc123" {
		t.Errorf("positional = %q", p.Positional(0))
	}
	if p.Flag("format") != "json" {
		t.Errorf("format = %q", p.Flag("format"))
	}
	if p.Flag("out") != "chat.json" {
		t.Errorf("out = %q", p.Flag("out"))
	}
	if !p.BoolFlag("verbose") {
		t.Error("verbose flag not set")
	}
	if p.BoolFlag("missing") {
		t.Error("missing bool flag reported as set")
	}
}

func TestArgParser_ExplicitBool(t *testing.T) {
	p := NewArgParser([]string{"--markdown=false", "--color=true"})

	if p.BoolFlag("markdown") {
		t.Error("markdown=false parsed as true")
	}
	if !p.BoolFlag("color") {
		t.Error("color=true parsed as false")
	}
}

func TestArgParser_IntFlag(t *testing.T) {
	p := NewArgParser([]string{"--limit", "25", "--bad", "xyz"})

	if got := p.IntFlag("limit", 10); got != 25 {
		t.Errorf("limit = %d", got)
	}
	if got := p.IntFlag("bad", 10); got != 10 {
		t.Errorf("unparsable int flag should fall back: %d", got)
	}
	if got := p.IntFlag("absent", 7); got != 7 {
		t.Errorf("absent int flag should fall back: %d", got)
	}
}

func TestArgParser_FlagOr(t *testing.T) {
	p := NewArgParser([]string{"--format", "json"})

	if got := p.FlagOr("format", "markdown"); got != "json" {
		t.Errorf("FlagOr = %q", got)
	}
	if got := p.FlagOr("missing", "markdown"); got != "markdown" {
		t.Errorf("FlagOr default = %q", got)
	}
}

func TestArgParser_Empty(t *testing.T) {
	p := NewArgParser(nil)

	if p.PositionalCount() != 0 {
		t.Errorf("count = %d", p.PositionalCount())
	}
	if p.Positional(0) != "" {
		t.Errorf("positional(0) = %q", p.Positional(0))
	}
}
