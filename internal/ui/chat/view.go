// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mforge/claudechat/internal/model"
	"github.com/mforge/claudechat/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "starting..."
	}
	if m.historyOpen {
		return m.renderHistory()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// renderHeader draws the title line with the active model.
func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("claudechat")
	modelName := m.theme.HeaderModel.Render(" · " + m.sess.Model)
	return m.theme.Header.Width(m.width).Render(title + modelName)
}

// renderStatusBar draws shortcuts, session totals and any pending error.
func (m *Model) renderStatusBar() string {
	if m.lastErr != nil {
		return m.theme.StatusBar.Render(
			m.theme.ErrorBox.UnsetBorderStyle().UnsetPadding().Render("error: " + m.lastErr.Error()))
	}

	var left string
	if m.streaming {
		left = m.theme.Spinner.Render(m.spin.View()) +
			m.theme.ThinkingText.Render(" Claude is responding... (Esc to cancel)")
	} else {
		var parts []string
		for _, binding := range m.keys.ShortHelp() {
			h := binding.Help()
			parts = append(parts,
				m.theme.StatusKey.Render(h.Key)+" "+m.theme.StatusDesc.Render(h.Desc))
		}
		left = strings.Join(parts, "  ")
	}

	in, out := m.sess.TotalTokens()
	right := m.theme.StatusTokens.Render(util.FormatTokens(in+out) + " tok")
	if m.lastCost > 0 {
		right += " " + m.theme.StatusCost.Render(util.FormatUSD(m.lastCost))
	}
	right += " " + m.theme.StatusCost.Render(util.FormatUSD(m.ledger.Snapshot().CostUSD)+" total")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshViewport rebuilds the transcript content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
}

// renderTranscript renders the full message history plus the live partial.
func (m *Model) renderTranscript() string {
	var b strings.Builder

	for i := range m.sess.Messages {
		b.WriteString(m.renderMessage(&m.sess.Messages[i]))
		b.WriteString("\n")
	}

	if m.streaming {
		b.WriteString(m.theme.AssistantLabel.Render("Claude"))
		b.WriteString("\n")
		if m.partial != "" {
			b.WriteString(m.theme.Assistant.Render(wrapText(m.partial, m.contentWidth())))
		} else {
			b.WriteString(m.theme.ThinkingText.Render("thinking..."))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// renderMessage renders one committed message.
func (m *Model) renderMessage(msg *model.Message) string {
	var b strings.Builder

	label := m.theme.UserLabel
	if msg.Role == model.RoleAssistant {
		label = m.theme.AssistantLabel
	}
	ts := m.theme.Timestamp.Render(" " + msg.Timestamp.Local().Format("15:04"))
	b.WriteString(label.Render(msg.Role.DisplayName()) + ts)
	b.WriteString("\n")

	switch {
	case msg.Role == model.RoleAssistant && msg.Content != "":
		b.WriteString(m.renderAssistantBody(msg.Content))
	case msg.Content != "":
		b.WriteString(m.theme.UserBubble.Render(wrapText(msg.Content, m.contentWidth())))
		b.WriteString("\n")
	}

	if msg.StopReason == model.StopCancelled {
		b.WriteString(m.theme.CancelledNote.Render("· response cancelled ·"))
		b.WriteString("\n")
	}
	if msg.IsError() {
		b.WriteString(m.theme.ErrorBox.Width(m.contentWidth()).Render(msg.Error))
		b.WriteString("\n")
	}
	return b.String()
}

// renderAssistantBody renders assistant text, through glamour when markdown
// rendering is enabled.
func (m *Model) renderAssistantBody(content string) string {
	if m.cfg.UI.Markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.GlamourStyle()),
			glamour.WithWordWrap(m.contentWidth()),
		)
		if err == nil {
			if out, err := r.Render(content); err == nil {
				return out
			}
		}
		// Fall through to plain text on renderer failure.
	}
	return m.theme.Assistant.Render(wrapText(content, m.contentWidth())) + "\n"
}

// contentWidth is the usable width for message bodies.
func (m *Model) contentWidth() int {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return w
}

// =============================================================================
// HISTORY OVERLAY
// =============================================================================

// renderHistory draws the session list overlay.
func (m *Model) renderHistory() string {
	var b strings.Builder
	b.WriteString(m.theme.HistoryTitle.Render("Chat History"))
	b.WriteString("\n\n")

	if len(m.historyItems) == 0 {
		b.WriteString(m.theme.HistoryMeta.Render("No saved chats yet."))
	}

	for i, item := range m.historyItems {
		line := fmt.Sprintf("%s  %s",
			item.CreatedAt.Local().Format("Jan 02 15:04"),
			runewidth.Truncate(item.Preview, 48, "..."))
		meta := fmt.Sprintf("  (%d messages, %s)", item.MessageCount, item.Model)

		if i == m.historySel {
			b.WriteString(m.theme.HistorySelected.Render("> " + line))
		} else {
			b.WriteString(m.theme.HistoryItem.Render("  " + line))
		}
		b.WriteString(m.theme.HistoryMeta.Render(meta))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.HistoryMeta.Render(
		"Enter open · C-x delete · Esc close"))

	box := m.theme.HistoryBox.Width(m.width - 4).Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// =============================================================================
// TEXT WRAPPING
// =============================================================================

// wrapText hard-wraps text to the given display width.
// UNICODE: widths are measured in terminal cells, not bytes or runes, so CJK
// and emoji do not break the layout.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	var out strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(wrapLine(line, width))
	}
	return out.String()
}

// wrapLine wraps a single logical line at word boundaries where possible.
func wrapLine(line string, width int) string {
	if runewidth.StringWidth(line) <= width {
		return line
	}

	var out strings.Builder
	var cur strings.Builder
	curWidth := 0

	for _, word := range strings.Split(line, " ") {
		ww := runewidth.StringWidth(word)
		if curWidth > 0 && curWidth+1+ww > width {
			out.WriteString(cur.String())
			out.WriteString("\n")
			cur.Reset()
			curWidth = 0
		}
		if curWidth > 0 {
			cur.WriteString(" ")
			curWidth++
		}
		// A single word wider than the line is broken hard.
		for ww > width {
			if curWidth > 0 {
				out.WriteString(strings.TrimRight(cur.String(), " "))
				out.WriteString("\n")
				cur.Reset()
				curWidth = 0
			}
			broken := runewidth.Truncate(word, width, "")
			if broken == "" {
				break
			}
			out.WriteString(broken)
			out.WriteString("\n")
			word = strings.TrimPrefix(word, broken)
			ww = runewidth.StringWidth(word)
		}
		cur.WriteString(word)
		curWidth += ww
	}
	out.WriteString(cur.String())
	return out.String()
}
