// claudechat - a terminal chat client for the Anthropic API.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/mforge/claudechat/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
