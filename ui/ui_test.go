package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/voxchat/internal/config"
	"github.com/dgnsrekt/voxchat/internal/history"
	"github.com/dgnsrekt/voxchat/internal/orchestrator"
)

type fakeBackend struct {
	settings  config.Settings
	entries   []history.Entry
	available map[string]bool

	submitErr error
	submitted []string
	replayed  []int
	stopped   int
	playing   bool
	shutdowns int
}

func (f *fakeBackend) Submit(prompt string) error {
	f.submitted = append(f.submitted, prompt)
	return f.submitErr
}

func (f *fakeBackend) Replay(i int) error {
	f.replayed = append(f.replayed, i)
	return nil
}

func (f *fakeBackend) StopPlayback() bool {
	f.stopped++
	return f.playing
}

func (f *fakeBackend) ToggleTTS() bool {
	f.settings.TTSEnabled = !f.settings.TTSEnabled
	return f.settings.TTSEnabled
}

func (f *fakeBackend) ToggleSpeakInput() bool {
	f.settings.SpeakInput = !f.settings.SpeakInput
	return f.settings.SpeakInput
}

func (f *fakeBackend) Current() config.Settings         { return f.settings }
func (f *fakeBackend) Entries() []history.Entry         { return f.entries }
func (f *fakeBackend) AudioAvailable(token string) bool { return f.available[token] }

func (f *fakeBackend) Shutdown() error {
	f.shutdowns++
	return nil
}

func newTestModel(t *testing.T, b *fakeBackend) model {
	t.Helper()
	m := newModel(Config{GlamourEnabled: false, Theme: "dark"}, b)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(model)
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	got, ok := next.(model)
	require.True(t, ok)
	return got, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "ctrl+t":
		return tea.KeyMsg{Type: tea.KeyCtrlT}
	case "ctrl+e":
		return tea.KeyMsg{Type: tea.KeyCtrlE}
	case "ctrl+x":
		return tea.KeyMsg{Type: tea.KeyCtrlX}
	case "ctrl+p":
		return tea.KeyMsg{Type: tea.KeyCtrlP}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSubmit(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(t, b)
	m.input.SetValue("hello there")

	m, cmd := update(t, m, key("ctrl+s"))
	assert.Equal(t, []string{"hello there"}, b.submitted)
	assert.True(t, m.busy)
	assert.NotNil(t, cmd)

	m, _ = update(t, m, statusMsg("Generating AI response."))
	assert.Equal(t, "Generating AI response.", m.status)

	m, _ = update(t, m, doneMsg(orchestrator.Result{Status: "Ready"}))
	assert.False(t, m.busy)
	assert.Equal(t, "Ready", m.status)
}

func TestSubmitRejected(t *testing.T) {
	tests := map[string]struct {
		err    error
		status string
	}{
		"empty": {orchestrator.ErrEmptyPrompt, "Error: Please enter some text"},
		"busy":  {orchestrator.ErrBusy, "Error: Processing already in progress"},
		"other": {errors.New("boom"), "Error: Boom"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			b := &fakeBackend{submitErr: tc.err}
			m := newTestModel(t, b)

			m, cmd := update(t, m, key("ctrl+s"))
			assert.Nil(t, cmd)
			assert.False(t, m.busy)
			assert.Equal(t, tc.status, m.status)
		})
	}
}

func TestToggles(t *testing.T) {
	b := &fakeBackend{settings: config.Settings{TTSEnabled: true}}
	m := newTestModel(t, b)

	m, _ = update(t, m, key("ctrl+t"))
	assert.False(t, b.settings.TTSEnabled)
	assert.Equal(t, "Speech disabled.", m.status)

	m, _ = update(t, m, key("ctrl+e"))
	assert.True(t, b.settings.SpeakInput)
	assert.Equal(t, "Speak input enabled.", m.status)

	assert.Contains(t, m.statusBarView(), "tts:off speak:on")
}

func TestStopPlayback(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(t, b)

	m, _ = update(t, m, key("ctrl+x"))
	assert.Equal(t, 1, b.stopped)
	assert.Equal(t, "Nothing is playing.", m.status)

	b.playing = true
	m.status = "Playing response..."
	m, _ = update(t, m, key("ctrl+x"))
	assert.Equal(t, 2, b.stopped)
	// the worker reports the outcome
	assert.Equal(t, "Playing response...", m.status)
}

func TestLoadHistory(t *testing.T) {
	b := &fakeBackend{
		entries: []history.Entry{
			{Prompt: "first", Response: "one", Token: "20240102_030405"},
			{Prompt: "second", Response: "two", Token: "20240101_000000"},
			{Prompt: "third", Response: "three"},
		},
		available: map[string]bool{"20240102_030405": true},
	}
	m := newTestModel(t, b)
	assert.Equal(t, []bool{true, false, false}, m.audio)

	m, _ = update(t, m, key("tab"))
	require.Equal(t, focusHistory, m.focus)

	m, _ = update(t, m, key("enter"))
	assert.Equal(t, "first", m.input.Value())
	assert.Equal(t, "one", m.text)
	assert.Equal(t, "Loaded item. Audio available.", m.status)

	m, _ = update(t, m, key("down"))
	m, _ = update(t, m, key("enter"))
	assert.Equal(t, "second", m.input.Value())
	assert.Equal(t, "Loaded item. Audio file missing.", m.status)

	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, key("enter"))
	assert.Equal(t, "Loaded item. No audio recorded for this entry.", m.status)

	m.busy = true
	m, _ = update(t, m, key("enter"))
	assert.Equal(t, "Error: Cannot load history while processing.", m.status)
	assert.Equal(t, "third", m.input.Value())
}

func TestReplayRunsOffUpdate(t *testing.T) {
	b := &fakeBackend{entries: []history.Entry{
		{Prompt: "a", Token: "t1"},
		{Prompt: "b", Token: "t2"},
	}}
	m := newTestModel(t, b)
	m, _ = update(t, m, key("tab"))
	m, _ = update(t, m, key("down"))

	_, cmd := update(t, m, key("ctrl+p"))
	require.NotNil(t, cmd)
	assert.Empty(t, b.replayed)

	cmd()
	assert.Equal(t, []int{1}, b.replayed)
}

func TestHistoryMsgResetsSelection(t *testing.T) {
	b := &fakeBackend{entries: []history.Entry{{Prompt: "a"}, {Prompt: "b"}}}
	m := newTestModel(t, b)
	m.selected = 1

	m, _ = update(t, m, historyMsg([]history.Entry{{Prompt: "new"}, {Prompt: "a"}, {Prompt: "b"}}))
	assert.Equal(t, 0, m.selected)
	assert.Len(t, m.entries, 3)
}

func TestQuitRunsShutdown(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(t, b)

	m, cmd := update(t, m, key("ctrl+c"))
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Zero(t, b.shutdowns)

	msg := cmd()
	assert.Equal(t, 1, b.shutdowns)

	// keys are ignored while shutting down
	m, cmd = update(t, m, key("ctrl+s"))
	assert.Nil(t, cmd)
	assert.Empty(t, b.submitted)

	_, cmd = update(t, m, msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestHistoryRow(t *testing.T) {
	long := strings.Repeat("word ", 20)
	row := historyRow(history.Entry{Prompt: long}, false, 30)
	assert.LessOrEqual(t, len([]rune(row)), 30)
	assert.Contains(t, row, ellipsis)

	row = historyRow(history.Entry{Prompt: "multi\nline  prompt", Token: "bad"}, false, 40)
	assert.Contains(t, row, "multi line prompt")
	assert.Contains(t, row, missingMark)

	row = historyRow(history.Entry{Prompt: "x", Token: "20200101_000000"}, true, 40)
	assert.True(t, strings.HasPrefix(row, audioMark))
	assert.Contains(t, row, "ago")
}

func TestHistoryViewEmpty(t *testing.T) {
	assert.Contains(t, historyView(nil, nil, 0, 30, 10), "No history yet.")
}

func TestGlamourRenderDisabled(t *testing.T) {
	out, err := glamourRender(Config{GlamourEnabled: false}, "dark", 80, "# hi")
	require.NoError(t, err)
	assert.Equal(t, "# hi", out)
}
