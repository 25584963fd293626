// Package ui is the interactive chat terminal.
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/voxchat/internal/config"
	"github.com/dgnsrekt/voxchat/internal/history"
	"github.com/dgnsrekt/voxchat/internal/orchestrator"
)

const (
	inputHeight     = 5
	minHistoryWidth = 24
	statusBarHeight = 1
	// each pane has a one cell border on every side
	borderSize = 2
)

// Backend is what the TUI drives. *app.App satisfies it.
type Backend interface {
	Submit(prompt string) error
	Replay(i int) error
	StopPlayback() bool
	ToggleTTS() bool
	ToggleSpeakInput() bool
	Current() config.Settings
	Entries() []history.Entry
	AudioAvailable(token string) bool
	Shutdown() error
}

// NewProgram returns a new Tea program. Attach rep to it before running.
func NewProgram(cfg Config, b Backend) *tea.Program {
	log.Debug(
		"Starting voxchat",
		"glamour",
		cfg.GlamourEnabled,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, b), opts...)
}

type focus int

const (
	focusInput focus = iota
	focusHistory
)

type shutdownMsg struct{ err error }

type model struct {
	cfg   Config
	style string
	b     Backend

	width  int
	height int
	ready  bool

	input   textarea.Model
	output  viewport.Model
	spinner spinner.Model
	focus   focus

	entries  []history.Entry
	audio    []bool
	selected int

	// raw markdown of the visible response
	text     string
	status   string
	busy     bool
	playing  bool
	quitting bool
}

func newModel(cfg Config, b Backend) model {
	ta := textarea.New()
	ta.Placeholder = "Ask something..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := model{
		cfg:     cfg,
		style:   glamourStyle(cfg),
		b:       b,
		input:   ta,
		output:  viewport.New(0, 0),
		spinner: sp,
		status:  "Ready",
	}
	m.setEntries(b.Entries())
	return m
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *model) setEntries(entries []history.Entry) {
	m.entries = entries
	m.audio = make([]bool, len(entries))
	for i, e := range entries {
		m.audio[i] = e.HasAudio() && m.b.AudioAvailable(e.Token)
	}
	if m.selected >= len(entries) {
		m.selected = max(0, len(entries)-1)
	}
}

func (m model) historyWidth() int {
	return max(minHistoryWidth, m.width/3)
}

func (m *model) setSize(w, h int) {
	m.width, m.height = w, h
	m.ready = true

	rightWidth := max(1, w-m.historyWidth()-2*borderSize)
	m.input.SetWidth(rightWidth)
	m.input.SetHeight(inputHeight)
	m.output.Width = rightWidth
	m.output.Height = max(1, h-statusBarHeight-inputHeight-2*borderSize)
}

func (m model) render() tea.Cmd {
	return renderOutput(m.cfg, m.style, m.output.Width, m.text)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, m.render()

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case outputMsg:
		m.text = string(msg)
		return m, m.render()

	case renderedMsg:
		m.output.SetContent(string(msg))
		m.output.GotoTop()
		return m, nil

	case historyMsg:
		m.setEntries(msg)
		m.selected = 0
		return m, nil

	case playbackMsg:
		m.playing = bool(msg)
		return m, nil

	case doneMsg:
		m.busy = false
		if msg.Status != "" {
			m.status = msg.Status
		}
		// Recordings may have been pruned.
		m.setEntries(m.entries)
		return m, nil

	case shutdownMsg:
		if msg.err != nil {
			log.Error("Shutdown finished with errors", "error", msg.err)
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusInput:
		m.input, cmd = m.input.Update(msg)
	case focusHistory:
		m.output, cmd = m.output.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		m.status = "Shutting down..."
		b := m.b
		return func() tea.Msg { return shutdownMsg{err: b.Shutdown()} }, true

	case "ctrl+s":
		return m.submit(), true

	case "ctrl+t":
		if m.b.ToggleTTS() {
			m.status = "Speech enabled."
		} else {
			m.status = "Speech disabled."
		}
		return nil, true

	case "ctrl+e":
		if m.b.ToggleSpeakInput() {
			m.status = "Speak input enabled."
		} else {
			m.status = "Speak input disabled."
		}
		return nil, true

	case "ctrl+x":
		if !m.b.StopPlayback() {
			m.status = "Nothing is playing."
		}
		return nil, true

	case "ctrl+y":
		if m.text == "" {
			return nil, true
		}
		if err := clipboard.WriteAll(m.text); err != nil {
			log.Warn("Unable to copy to clipboard", "error", err)
			m.status = errorStatus(err)
		} else {
			m.status = "Copied response to clipboard."
		}
		return nil, true

	case "ctrl+p":
		if len(m.entries) == 0 {
			return nil, true
		}
		i, b := m.selected, m.b
		// Replay reports through the program, so it must not run on the
		// update goroutine.
		return func() tea.Msg {
			if err := b.Replay(i); err != nil {
				log.Debug("Replay rejected", "index", i, "error", err)
			}
			return nil
		}, true

	case "tab":
		if m.focus == focusInput {
			m.focus = focusHistory
			m.input.Blur()
			return nil, true
		}
		m.focus = focusInput
		return m.input.Focus(), true
	}

	if m.focus != focusHistory {
		return nil, false
	}
	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return nil, true
	case "down", "j":
		if m.selected < len(m.entries)-1 {
			m.selected++
		}
		return nil, true
	case "enter":
		return m.load(), true
	}
	return nil, false
}

func (m *model) submit() tea.Cmd {
	err := m.b.Submit(m.input.Value())
	switch {
	case err == nil:
		m.busy = true
		m.status = "Processing..."
		return m.spinner.Tick
	case errors.Is(err, orchestrator.ErrEmptyPrompt),
		errors.Is(err, orchestrator.ErrBusy):
		m.status = errorStatus(err)
	default:
		log.Error("Submit failed", "error", err)
		m.status = errorStatus(err)
	}
	return nil
}

// load puts the selected entry back into the editor and output panes.
func (m *model) load() tea.Cmd {
	if m.busy {
		m.status = "Error: Cannot load history while processing."
		return nil
	}
	if m.selected >= len(m.entries) {
		return nil
	}
	e := m.entries[m.selected]
	m.input.SetValue(e.Prompt)
	m.text = e.Response

	switch {
	case !e.HasAudio():
		m.status = "Loaded item. No audio recorded for this entry."
	case m.b.AudioAvailable(e.Token):
		m.audio[m.selected] = true
		m.status = "Loaded item. Audio available."
	default:
		m.audio[m.selected] = false
		m.status = "Loaded item. Audio file missing."
	}
	return m.render()
}

func errorStatus(err error) string {
	msg := err.Error()
	if msg == "" {
		return "Error"
	}
	return "Error: " + strings.ToUpper(msg[:1]) + msg[1:]
}

func (m model) View() string {
	if !m.ready {
		return ""
	}
	if m.quitting {
		return m.statusBarView()
	}

	histStyle, rightStyle := paneStyle, focusedPaneStyle
	if m.focus == focusHistory {
		histStyle, rightStyle = focusedPaneStyle, paneStyle
	}

	histHeight := max(1, m.height-statusBarHeight-borderSize)
	histWidth := m.historyWidth() - borderSize
	hist := histStyle.
		Width(histWidth).
		Height(histHeight).
		Render(historyView(m.entries, m.audio, m.selected, histWidth, histHeight))

	right := lipgloss.JoinVertical(lipgloss.Left,
		paneStyle.Render(m.output.View()),
		rightStyle.Render(m.input.View()),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, hist, right),
		m.statusBarView(),
	)
}

func (m model) statusBarView() string {
	s := m.b.Current()

	toggles := fmt.Sprintf(" tts:%s speak:%s ", onOff(s.TTSEnabled), onOff(s.SpeakInput))
	if m.playing {
		toggles = " " + audioMark + toggles
	}
	right := statusBarToggleStyle(toggles)

	left := logoView() + " "
	if m.busy {
		left += m.spinner.View() + " "
	}

	avail := max(0, m.width-ansi.PrintableRuneWidth(left)-ansi.PrintableRuneWidth(right))
	status := truncate.StringWithTail(" "+m.status, uint(avail), ellipsis) //nolint:gosec
	pad := strings.Repeat(" ", max(0, avail-ansi.PrintableRuneWidth(status)))

	style := statusBarNoteStyle
	if strings.HasPrefix(m.status, "Error") {
		style = statusBarErrorStyle
	}
	return left + style(status+pad) + right
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
