package orchestrator

import (
	"context"

	"github.com/dgnsrekt/voxchat/internal/history"
)

// Discard is a Reporter that drops every update.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Status(string)           {}
func (discard) Output(string)           {}
func (discard) History([]history.Entry) {}
func (discard) Playback(bool)           {}
func (discard) Done(Result)             {}

// guarded drops updates once ctx is done.
type guarded struct {
	ctx context.Context
	r   Reporter
}

func (g guarded) live() bool { return g.ctx.Err() == nil }

func (g guarded) Status(msg string) {
	if g.live() {
		g.r.Status(msg)
	}
}

func (g guarded) Output(text string) {
	if g.live() {
		g.r.Output(text)
	}
}

func (g guarded) History(entries []history.Entry) {
	if g.live() {
		g.r.History(entries)
	}
}

func (g guarded) Playback(active bool) {
	if g.live() {
		g.r.Playback(active)
	}
}

func (g guarded) Done(res Result) {
	if g.live() {
		g.r.Done(res)
	}
}

// Func adapts plain functions to a Reporter; nil fields are skipped.
type Func struct {
	OnStatus   func(string)
	OnOutput   func(string)
	OnHistory  func([]history.Entry)
	OnPlayback func(bool)
	OnDone     func(Result)
}

func (f Func) Status(msg string) {
	if f.OnStatus != nil {
		f.OnStatus(msg)
	}
}

func (f Func) Output(text string) {
	if f.OnOutput != nil {
		f.OnOutput(text)
	}
}

func (f Func) History(entries []history.Entry) {
	if f.OnHistory != nil {
		f.OnHistory(entries)
	}
}

func (f Func) Playback(active bool) {
	if f.OnPlayback != nil {
		f.OnPlayback(active)
	}
}

func (f Func) Done(res Result) {
	if f.OnDone != nil {
		f.OnDone(res)
	}
}
