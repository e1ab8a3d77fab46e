// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/mforge/claudechat/internal/session"
	"github.com/mforge/claudechat/internal/util"
)

// cmdRepl runs a plain readline chat for dumb terminals, scripting and SSH
// sessions where the full TUI is unwanted.
func cmdRepl(p *ArgParser) error {
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
	onDisk := p.Positional(0) != ""

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(a.dataDir, "repl_history")
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Printf("claudechat repl · %s · session %s\n", sess.Model, sess.ID)
	fmt.Println("Type a message, /quit to exit, Ctrl-C to cancel a response.")

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			return nil
		}
		line.AppendHistory(input)

		// First message makes the session durable.
		if !onDisk {
			if err := a.store.Save(sess); err != nil {
				return err
			}
			onDisk = true
		}

		if err := replExchange(ctrl, sess.ID, input); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

// replExchange streams one exchange to stdout. SIGINT cancels the stream but
// not the REPL.
func replExchange(ctrl *session.Controller, sessionID, content string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	defer signal.Stop(sigc)
	go func() {
		select {
		case <-sigc:
			ctrl.Cancel(sessionID)
		case <-ctx.Done():
		}
	}()

	updates, err := ctrl.Send(ctx, sessionID, content)
	if err != nil {
		return err
	}

	for u := range updates {
		switch u.Kind {
		case session.UpdateText:
			fmt.Print(u.Text)
		case session.UpdateDone:
			fmt.Println()
			if u.Message.StopReason != "" && u.Message.StopReason != "end_turn" {
				fmt.Printf("[%s]\n", u.Message.StopReason)
			}
			if u.CostUSD > 0 {
				fmt.Printf("(%d tokens, %s)\n",
					u.Message.InputTokens+u.Message.OutputTokens,
					util.FormatUSD(u.CostUSD))
			}
			if u.Err != nil {
				fmt.Fprintln(os.Stderr, "warning:", u.Err)
			}
		case session.UpdateError:
			fmt.Println()
			if errors.Is(u.Err, context.Canceled) {
				return nil
			}
			return u.Err
		}
	}
	return nil
}
