// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the claudechat command-line interface.
//
// Commands:
//
//	claudechat              launch the chat TUI
//	claudechat chat [id]    launch the TUI, resuming a session
//	claudechat repl         plain readline chat without the TUI
//	claudechat list         list saved sessions
//	claudechat delete <id>  delete a session
//	claudechat export <id>  export a session (markdown or json)
//	claudechat usage        show cumulative token usage and spend
//	claudechat setup        store the API key
//	claudechat version      print version
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mforge/claudechat/internal/anthropic"
	"github.com/mforge/claudechat/internal/config"
	"github.com/mforge/claudechat/internal/history"
	"github.com/mforge/claudechat/internal/keystore"
	"github.com/mforge/claudechat/internal/model"
	"github.com/mforge/claudechat/internal/session"
	"github.com/mforge/claudechat/internal/storage"
	"github.com/mforge/claudechat/internal/ui/chat"
	"github.com/mforge/claudechat/internal/usage"
	"github.com/mforge/claudechat/internal/util"
)

// Version is the release version, overridden at build time via ldflags.
var Version = "0.1.0-dev"

// app bundles the wired subsystems every command draws from.
type app struct {
	dataDir string
	cfg     *config.Config
	store   *storage.Store
	ledger  *usage.Ledger
	keys    *keystore.FileKeyStore
}

// newApp loads configuration and opens the stores.
func newApp() (*app, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(config.SessionsDir(dataDir))
	if err != nil {
		return nil, err
	}
	ledger, err := usage.Open(config.UsagePath(dataDir))
	if err != nil {
		return nil, err
	}

	return &app{
		dataDir: dataDir,
		cfg:     cfg,
		store:   store,
		ledger:  ledger,
		keys:    keystore.NewFileKeyStore(dataDir),
	}, nil
}

// controller builds the session controller over the live API client.
func (a *app) controller() (*session.Controller, error) {
	key, err := a.keys.Retrieve()
	if err != nil {
		return nil, fmt.Errorf("%w (run 'claudechat setup')", err)
	}
	client := anthropic.NewClient(key)
	return session.NewController(a.store, a.ledger, client), nil
}

// Run executes the CLI and returns the process exit code.
func Run(args []string) int {
	command := "chat"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}
	parser := NewArgParser(args)

	var err error
	switch command {
	case "chat":
		err = cmdChat(parser)
	case "repl":
		err = cmdRepl(parser)
	case "list":
		err = cmdList(parser)
	case "delete":
		err = cmdDelete(parser)
	case "export":
		err = cmdExport(parser)
	case "usage":
		err = cmdUsage(parser)
	case "setup":
		err = cmdSetup(parser)
	case "version":
		fmt.Println("claudechat " + Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		return 2
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Print(`claudechat - terminal chat client for Claude

Usage:
  claudechat [chat [session-id]]   launch the chat TUI
  claudechat repl [session-id]     plain readline chat
  claudechat list                  list saved sessions
  claudechat delete <session-id>   delete a session
  claudechat export <session-id> [--format markdown|json] [--out FILE]
  claudechat usage                 show token usage and spend
  claudechat setup                 store the API key
  claudechat version               print version
`)
}

// =============================================================================
// CHAT (TUI)
// =============================================================================

func cmdChat(p *ArgParser) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctrl, err := a.controller()
	if err != nil {
		return err
	}

	sess, err := resolveSession(a, p.Positional(0))
	if err != nil {
		return err
	}

	watcher, err := history.NewWatcher(a.store.BaseDir, history.DefaultDebounce)
	if err == nil {
		if err := watcher.Start(); err != nil {
			watcher = nil // refresh-on-change is best effort
		}
	} else {
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
	}

	m := chat.New(ctrl, a.store, a.ledger, a.cfg, watcher, sess)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err = prog.Run()
	return err
}

// resolveSession loads the named session, or allocates a fresh one. A fresh
// session stays in memory until its first message; quitting without typing
// leaves no empty record behind.
func resolveSession(a *app, id string) (*model.Session, error) {
	if id != "" {
		return a.store.Load(id)
	}
	return a.store.Create(a.cfg.Params()), nil
}

// =============================================================================
// LIST
// =============================================================================

func cmdList(p *ArgParser) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	metas, err := a.store.List()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}

	for _, m := range metas {
		fmt.Printf("%s  %s  %3d msgs  %s\n",
			m.ID,
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
			m.MessageCount,
			util.TruncateRunes(m.Preview, 60))
	}
	return nil
}

// =============================================================================
// DELETE
// =============================================================================

func cmdDelete(p *ArgParser) error {
	id := p.Positional(0)
	if id == "" {
		return fmt.Errorf("usage: claudechat delete <session-id>")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.store.Delete(id); err != nil {
		return err
	}
	fmt.Println("deleted", id)
	return nil
}

// =============================================================================
// EXPORT
// =============================================================================

func cmdExport(p *ArgParser) error {
	id := p.Positional(0)
	if id == "" {
		return fmt.Errorf("usage: claudechat export <session-id> [--format markdown|json] [--out FILE]")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	sess, err := a.store.Load(id)
	if err != nil {
		return err
	}

	format := p.FlagOr("format", "markdown")
	var data []byte
	var ext string
	switch format {
	case "markdown", "md":
		data = []byte(sess.ExportMarkdown())
		ext = ".md"
	case "json":
		data, err = sess.ExportJSON()
		if err != nil {
			return err
		}
		ext = ".json"
	default:
		return fmt.Errorf("unknown export format: %s", format)
	}

	out := p.Flag("out")
	if out == "" {
		fmt.Print(string(data))
		return nil
	}
	if filepath.Ext(out) == "" {
		out += ext
	}
	if err := util.AtomicWriteFile(out, data, 0644); err != nil {
		return err
	}
	fmt.Println("exported to", out)
	return nil
}

// =============================================================================
// USAGE
// =============================================================================

func cmdUsage(p *ArgParser) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	snap := a.ledger.Snapshot()

	fmt.Printf("Total: %s input + %s output tokens, %s\n",
		util.FormatTokens(snap.InputTokens),
		util.FormatTokens(snap.OutputTokens),
		util.FormatUSD(snap.CostUSD))

	if len(snap.ByModel) == 0 {
		return nil
	}
	fmt.Println("\nBy model:")
	for name, mu := range snap.ByModel {
		fmt.Printf("  %-28s %12s in %12s out  %s\n",
			name,
			util.FormatTokens(mu.InputTokens),
			util.FormatTokens(mu.OutputTokens),
			util.FormatUSD(mu.CostUSD))
	}
	return nil
}
