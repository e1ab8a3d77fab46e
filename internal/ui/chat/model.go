// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mforge/claudechat/internal/config"
	"github.com/mforge/claudechat/internal/history"
	"github.com/mforge/claudechat/internal/model"
	"github.com/mforge/claudechat/internal/session"
	"github.com/mforge/claudechat/internal/storage"
	"github.com/mforge/claudechat/internal/ui/styles"
	"github.com/mforge/claudechat/internal/usage"
)

// =============================================================================
// MESSAGES
// =============================================================================

type streamUpdateMsg struct {
	update session.Update
	ch     <-chan session.Update
}

type streamClosedMsg struct{}

type streamTickMsg struct{ at time.Time }

type historyChangedMsg struct{}

type errMsg struct{ err error }

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	ctrl    *session.Controller
	store   *storage.Store
	ledger  *usage.Ledger
	cfg     *config.Config
	watcher *history.Watcher

	theme *styles.Theme
	keys  KeyMap

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model

	// Current session and the live partial response.
	sess      *model.Session
	streaming bool
	partial   string
	buf       *StreamingBuffer

	// History overlay.
	historyOpen  bool
	historyItems []model.SessionMeta
	historySel   int

	width  int
	height int
	ready  bool

	// lastErr is shown in the status line until the next action.
	lastErr error

	// lastCost is the cost of the most recent exchange.
	lastCost float64
}

// New creates the chat model over an existing session.
func New(ctrl *session.Controller, store *storage.Store, ledger *usage.Ledger,
	cfg *config.Config, watcher *history.Watcher, sess *model.Session) *Model {

	input := textarea.New()
	input.Placeholder = "Message Claude..."
	input.Prompt = "│ "
	input.CharLimit = 0
	input.SetHeight(3)
	input.ShowLineNumbers = false
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return &Model{
		ctrl:    ctrl,
		store:   store,
		ledger:  ledger,
		cfg:     cfg,
		watcher: watcher,
		theme:   styles.NewTheme(cfg.UI.Theme),
		keys:    DefaultKeyMap(),
		input:   input,
		spin:    spin,
		sess:    sess,
		buf:     NewStreamingBuffer(),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.watcher != nil {
		cmds = append(cmds, watchHistoryCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForUpdate reads the next controller update off the channel.
func waitForUpdate(ch <-chan session.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return streamUpdateMsg{update: u, ch: ch}
	}
}

// watchHistoryCmd blocks on the next sessions-directory change.
func watchHistoryCmd(w *history.Watcher) tea.Cmd {
	return func() tea.Msg {
		<-w.Changes()
		return historyChangedMsg{}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case streamUpdateMsg:
		return m.handleStreamUpdate(msg)

	case streamClosedMsg:
		// Channel drained after the terminal update; nothing left to do.
		return m, nil

	case streamTickMsg:
		if chunk, ok := m.buf.Flush(); ok {
			m.partial += chunk
			m.refreshViewport()
		}
		if m.streaming {
			return m, streamTickCmd()
		}
		return m, nil

	case historyChangedMsg:
		if m.historyOpen {
			m.reloadHistory()
		}
		return m, watchHistoryCmd(m.watcher)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.streaming {
			return m, cmd
		}
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil
	}

	return m.updateComponents(msg)
}

// handleKey routes key presses by UI state.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.historyOpen {
		return m.handleHistoryKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.streaming {
			m.ctrl.Cancel(m.sess.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.History):
		m.historyOpen = true
		m.historySel = 0
		m.reloadHistory()
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		if m.streaming {
			return m, nil
		}
		// In memory only; the session reaches disk with its first message.
		m.switchSession(m.store.Create(m.cfg.Params()))
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	return m.updateComponents(msg)
}

// handleHistoryKey drives the history overlay.
func (m *Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+h":
		m.historyOpen = false

	case "up", "k":
		if m.historySel > 0 {
			m.historySel--
		}

	case "down", "j":
		if m.historySel < len(m.historyItems)-1 {
			m.historySel++
		}

	case "enter":
		if m.historySel < len(m.historyItems) {
			sess, err := m.store.Load(m.historyItems[m.historySel].ID)
			if err != nil {
				m.lastErr = err
				return m, nil
			}
			m.switchSession(sess)
			m.historyOpen = false
		}

	case "ctrl+x", "d":
		if m.historySel < len(m.historyItems) {
			id := m.historyItems[m.historySel].ID
			if id == m.sess.ID && m.streaming {
				return m, nil // never delete under an active stream
			}
			if err := m.store.Delete(id); err != nil {
				m.lastErr = err
				return m, nil
			}
			m.reloadHistory()
			if m.historySel >= len(m.historyItems) && m.historySel > 0 {
				m.historySel--
			}
		}
	}
	return m, nil
}

// submit sends the typed message through the controller.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	content := m.input.Value()
	if content == "" || m.streaming {
		return m, nil
	}

	// A session with no committed turns may not be on disk yet; the mirror
	// below keeps IsEmpty accurate, so an active chat is never re-saved.
	if m.sess.IsEmpty() {
		if err := m.store.Save(m.sess); err != nil {
			m.lastErr = err
			return m, nil
		}
	}

	updates, err := m.ctrl.Send(context.Background(), m.sess.ID, content)
	if err != nil {
		m.lastErr = err
		return m, nil
	}

	// Mirror the send locally; the store already has it.
	m.sess.Append(model.NewUserMessage(content))
	m.input.Reset()
	m.streaming = true
	m.partial = ""
	m.lastErr = nil
	m.buf.Reset()
	m.refreshViewport()
	m.viewport.GotoBottom()

	return m, tea.Batch(waitForUpdate(updates), streamTickCmd(), m.spin.Tick)
}

// handleStreamUpdate applies one controller update.
func (m *Model) handleStreamUpdate(msg streamUpdateMsg) (tea.Model, tea.Cmd) {
	u := msg.update
	switch u.Kind {
	case session.UpdateText:
		m.buf.Write(u.Text)
		return m, waitForUpdate(msg.ch)

	case session.UpdateDone, session.UpdateError:
		// Render any tail the tick loop has not flushed yet, then replace
		// the partial with the committed message.
		if chunk, ok := m.buf.ForceFlush(); ok {
			m.partial += chunk
		}
		m.streaming = false
		m.partial = ""
		m.sess.Append(u.Message)
		m.lastCost = u.CostUSD
		m.lastErr = u.Err
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, waitForUpdate(msg.ch)
	}
	return m, waitForUpdate(msg.ch)
}

// updateComponents forwards messages to the focused components.
func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// switchSession swaps the active session and re-renders.
func (m *Model) switchSession(sess *model.Session) {
	m.sess = sess
	m.partial = ""
	m.streaming = false
	m.lastErr = nil
	m.buf.Reset()
	m.refreshViewport()
	m.viewport.GotoBottom()
}

// reloadHistory refreshes the overlay's session list.
func (m *Model) reloadHistory() {
	items, err := m.store.List()
	if err != nil {
		m.lastErr = err
		return
	}
	m.historyItems = items
}

// resize lays out the components for a new terminal size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	headerHeight := 2
	inputHeight := 5
	statusHeight := 1
	vpHeight := height - headerHeight - inputHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(width - 4)

	m.refreshViewport()
	m.viewport.GotoBottom()
}
