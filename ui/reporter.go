package ui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/voxchat/internal/history"
	"github.com/dgnsrekt/voxchat/internal/orchestrator"
)

type (
	statusMsg   string
	outputMsg   string
	historyMsg  []history.Entry
	playbackMsg bool
	doneMsg     orchestrator.Result
)

// Reporter forwards orchestrator updates to a running program. Program.Send
// keeps them in order and delivers them on the UI goroutine. Updates sent
// before Attach are dropped.
type Reporter struct {
	p atomic.Pointer[tea.Program]
}

var _ orchestrator.Reporter = (*Reporter)(nil)

// Attach starts forwarding to p.
func (r *Reporter) Attach(p *tea.Program) { r.p.Store(p) }

func (r *Reporter) send(msg tea.Msg) {
	if p := r.p.Load(); p != nil {
		p.Send(msg)
	}
}

func (r *Reporter) Status(msg string)               { r.send(statusMsg(msg)) }
func (r *Reporter) Output(text string)              { r.send(outputMsg(text)) }
func (r *Reporter) History(entries []history.Entry) { r.send(historyMsg(entries)) }
func (r *Reporter) Playback(active bool)            { r.send(playbackMsg(active)) }
func (r *Reporter) Done(res orchestrator.Result)    { r.send(doneMsg(res)) }
