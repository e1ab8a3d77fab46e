// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mforge/claudechat/internal/keystore"
)

// cmdSetup prompts for the API key and stores it.
func cmdSetup(p *ArgParser) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if a.keys.Exists() {
		fmt.Println("An API key is already configured. Entering a new one replaces it.")
	}

	fmt.Print("Anthropic API key (input hidden): ")
	// SECURITY: Read without echo so the key never lands in the scrollback.
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}

	key := strings.TrimSpace(string(raw))
	if key == "" {
		return fmt.Errorf("no key entered")
	}
	if !keystore.ValidateKeyFormat(key) {
		fmt.Println("warning: key does not look like an Anthropic key (expected sk-ant-... prefix)")
	}

	if err := a.keys.Store(key); err != nil {
		return err
	}
	fmt.Println("API key stored in", a.dataDir)
	return nil
}
