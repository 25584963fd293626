// Package orchestrator runs one user submission end to end: the chat call
// or input synthesis, the history write, playback and retention pruning.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/voxchat/internal/config"
	"github.com/dgnsrekt/voxchat/internal/gateway"
	"github.com/dgnsrekt/voxchat/internal/history"
	"github.com/dgnsrekt/voxchat/internal/playback"
	"github.com/dgnsrekt/voxchat/internal/speech"
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("processing already in progress")

	// ErrEmptyPrompt is returned for blank submissions.
	ErrEmptyPrompt = errors.New("please enter some text")
)

// Mode selects the path taken for a submission.
type Mode int

const (
	ModeChat Mode = iota
	ModeSpeakInput
)

func (m Mode) String() string {
	if m == ModeSpeakInput {
		return "speak_input"
	}
	return "chat_response"
}

// Request is everything one submission needs. It is built from a settings
// snapshot and never shared between submissions.
type Request struct {
	ID            string
	Prompt        string
	Mode          Mode
	Model         string
	TTSModel      string
	Voice         string
	Speed         float64
	TTSEnabled    bool
	StripMarkdown bool
	MaxRecordings int
}

// NewRequest builds a Request for prompt from s.
func NewRequest(prompt string, s config.Settings) Request {
	mode := ModeChat
	if s.SpeakInput {
		mode = ModeSpeakInput
	}
	return Request{
		ID:            uuid.NewString(),
		Prompt:        strings.TrimSpace(prompt),
		Mode:          mode,
		Model:         s.ChatModel,
		TTSModel:      s.TTSModel,
		Voice:         s.TTSVoice,
		Speed:         s.TTSSpeed,
		TTSEnabled:    s.TTSEnabled,
		StripMarkdown: s.TTS.StripMarkdown,
		MaxRecordings: s.MaxRecordings,
	}
}

// Gateway is the remote provider.
type Gateway interface {
	Validate() error
	Chat(ctx context.Context, prompt, model string) (gateway.ChatResult, error)
	Speak(ctx context.Context, text, outputPath, model, voice string, speed float64) error
}

// Player runs blocking playback sessions.
type Player interface {
	Play(ctx context.Context, path string, onStart func()) (playback.Outcome, error)
	Active() bool
}

// Recordings allocates audio files and prunes them.
type Recordings interface {
	NewToken() string
	Path(token string) string
	Resolve(token string) (string, bool)
	Prune(maxCount int) []string
}

// History is the persistent exchange log.
type History interface {
	Prepend(e history.Entry)
	Save() error
	Entries() []history.Entry
}

// Reporter receives UI updates in the order they happen. Implementations
// must hand them off to the UI goroutine.
type Reporter interface {
	Status(msg string)
	Output(text string)
	History(entries []history.Entry)
	Playback(active bool)
	Done(res Result)
}

// Result summarizes one submission.
type Result struct {
	RequestID string
	Mode      Mode
	Status    string
	Text      string
	Token     string

	HistoryWritten bool
	Synthesized    bool
	Played         bool
	Outcome        playback.Outcome
	Pruned         []string

	// Aborted is set when shutdown was observed; nothing was reported.
	Aborted bool
	Err     error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Gateway    Gateway
	Player     Player
	Recordings Recordings
	History    History
	Reporter   Reporter
}

// Orchestrator runs at most one submission at a time.
type Orchestrator struct {
	gw   Gateway
	play Player
	rec  Recordings
	hist History
	rep  Reporter

	busy atomic.Bool
	wg   sync.WaitGroup
}

// New returns an Orchestrator. A nil Reporter discards updates.
func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Gateway == nil:
		return nil, fmt.Errorf("gateway cannot be nil")
	case d.Player == nil:
		return nil, fmt.Errorf("player cannot be nil")
	case d.Recordings == nil:
		return nil, fmt.Errorf("recordings cannot be nil")
	case d.History == nil:
		return nil, fmt.Errorf("history cannot be nil")
	}
	rep := d.Reporter
	if rep == nil {
		rep = Discard
	}
	return &Orchestrator{gw: d.Gateway, play: d.Player, rec: d.Recordings, hist: d.History, rep: rep}, nil
}

// Busy reports whether a submission is in flight.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Wait blocks until every worker started by Submit or Replay has returned.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Submit starts req on a worker goroutine.
func (o *Orchestrator) Submit(ctx context.Context, req Request) error {
	if req.Prompt == "" {
		return ErrEmptyPrompt
	}
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.busy.Store(false)
		o.run(ctx, req)
	}()
	return nil
}

// Run processes req on the calling goroutine.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	if req.Prompt == "" {
		return Result{RequestID: req.ID, Mode: req.Mode, Status: errorStatus(ErrEmptyPrompt), Err: ErrEmptyPrompt}
	}
	if !o.busy.CompareAndSwap(false, true) {
		return Result{RequestID: req.ID, Mode: req.Mode, Status: errorStatus(ErrBusy), Err: ErrBusy}
	}
	defer o.busy.Store(false)
	return o.run(ctx, req)
}

// run is one pass through the state machine. Shutdown is checked before
// every gateway call, playback and history write; once it is observed the
// run returns without touching the reporter again.
func (o *Orchestrator) run(ctx context.Context, req Request) Result {
	t := &turn{
		o:   o,
		ctx: ctx,
		req: req,
		rep: guarded{ctx: ctx, r: o.rep},
		log: log.With("request", req.ID),
		res: Result{RequestID: req.ID, Mode: req.Mode},
	}
	if t.aborted() {
		return t.res
	}
	t.log.Debug("Processing request", "mode", req.Mode, "model", req.Model, "tts", req.TTSEnabled)
	t.rep.Status("Processing...")
	t.rep.Output("")

	var err error
	if err = o.gw.Validate(); err == nil {
		switch req.Mode {
		case ModeSpeakInput:
			err = t.speakInput()
		default:
			err = t.chat()
		}
	}

	switch {
	case t.res.Aborted:
		t.log.Info("Request abandoned on shutdown")
		return t.res
	case err != nil:
		t.fail(err)
	}
	t.log.Debug("Request complete", "status", t.res.Status)
	t.rep.Done(t.res)
	return t.res
}

type turn struct {
	o   *Orchestrator
	ctx context.Context
	req Request
	rep Reporter
	log *log.Logger
	res Result
}

func (t *turn) aborted() bool {
	if t.ctx.Err() != nil {
		t.res.Aborted = true
	}
	return t.res.Aborted
}

func (t *turn) status(msg string) {
	t.res.Status = msg
	t.rep.Status(msg)
}

// fail reports an unanticipated error. Nothing already written is undone.
func (t *turn) fail(err error) {
	t.res.Err = err
	t.log.Error("Request failed", "error", err)
	if t.res.Text == "" {
		t.rep.Output(errorStatus(err))
	}
	t.status(errorStatus(err))
}

func (t *turn) speakInput() error {
	if t.aborted() {
		return nil
	}
	t.status("Generating speech for input...")
	token := t.o.rec.NewToken()
	path := t.o.rec.Path(token)

	if err := t.o.gw.Speak(t.ctx, t.req.Prompt, path, t.req.TTSModel, t.req.Voice, t.req.Speed); err != nil {
		if t.aborted() {
			return nil
		}
		t.log.Warn("Input speech failed", "error", err)
		t.status(fmt.Sprintf("Error generating prompt audio: %v", err))
		token = ""
	} else {
		t.res.Synthesized = true
		if t.aborted() {
			return nil
		}
		t.playback(path, "Speaking input...")
	}

	if t.aborted() {
		return nil
	}
	t.record(history.Entry{Prompt: t.req.Prompt, Response: history.InputSpoken, Token: token})

	switch {
	case !t.res.Synthesized:
		t.status("Ready (Input audio generation failed).")
	case t.res.Outcome.Natural():
		t.status("Ready (Input spoken).")
	default:
		t.status("Ready (Input speech stopped).")
	}
	return nil
}

func (t *turn) chat() error {
	if t.aborted() {
		return nil
	}
	t.status("Generating AI response.")
	result, err := t.o.gw.Chat(t.ctx, t.req.Prompt, t.req.Model)
	if t.aborted() {
		return nil
	}
	if err != nil {
		return err
	}

	t.rep.Output(result.String())
	if !result.OK() {
		t.log.Warn("No usable text in response")
		t.status("Failed to get valid text response.")
		return nil
	}
	t.res.Text = result.Text

	var token string
	if t.req.TTSEnabled {
		token = t.o.rec.NewToken()
	}
	if t.aborted() {
		return nil
	}
	t.record(history.Entry{Prompt: t.req.Prompt, Response: result.Text, Token: token})

	if !t.req.TTSEnabled {
		t.status("Response received (Speech disabled).")
		t.status("Ready (Speech disabled).")
		return nil
	}
	t.status("Response received. Generating audio...")

	if t.aborted() {
		return nil
	}
	path := t.o.rec.Path(token)
	if err := t.o.gw.Speak(t.ctx, t.speakable(result.Text), path, t.req.TTSModel, t.req.Voice, t.req.Speed); err != nil {
		if t.aborted() {
			return nil
		}
		t.log.Warn("Response speech failed", "error", err, "token", token)
		t.rep.Status(fmt.Sprintf("Error generating response audio: %v", err))
		t.status("Ready (Response audio generation failed).")
		return nil
	}
	t.res.Synthesized = true

	if t.aborted() {
		return nil
	}
	t.playback(path, "Playing response...")
	if t.aborted() {
		return nil
	}

	t.res.Pruned = t.o.rec.Prune(t.req.MaxRecordings)
	if t.res.Outcome.Natural() {
		t.status("Ready")
	}
	return nil
}

func (t *turn) speakable(text string) string {
	if !t.req.StripMarkdown {
		return text
	}
	if plain := speech.PlainText(text); plain != "" {
		return plain
	}
	return text
}

// record prepends e and persists the log. Save errors are logged by the
// store and otherwise ignored.
func (t *turn) record(e history.Entry) {
	t.o.hist.Prepend(e)
	_ = t.o.hist.Save()
	t.res.HistoryWritten = true
	t.res.Token = e.Token
	t.log.Debug("History entry added", "token", e.Token)
	t.rep.History(t.o.hist.Entries())
}

// playback runs one blocking session and records how it ended.
func (t *turn) playback(path, playing string) {
	t.res.Played = true
	t.res.Outcome = playAndReport(t.ctx, t.o.play, t.rep, t.log, path, playing, &t.res.Status)
}

func playAndReport(ctx context.Context, p Player, rep Reporter, l *log.Logger, path, playing string, last *string) playback.Outcome {
	status := func(msg string) {
		*last = msg
		rep.Status(msg)
	}
	status("Loading audio...")
	out, err := p.Play(ctx, path, func() {
		rep.Playback(true)
		status(playing)
	})
	rep.Playback(false)
	switch {
	case err != nil:
		l.Error("Playback failed", "path", path, "error", err)
		status(fmt.Sprintf("Error during playback: %v", err))
		return playback.OutcomeError
	case out == playback.OutcomeFinished:
		status("Playback finished.")
	default:
		status("Playback stopped.")
	}
	return out
}
