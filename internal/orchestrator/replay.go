package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voxchat/internal/history"
	"github.com/dgnsrekt/voxchat/internal/playback"
)

var (
	// ErrNoAudio is returned when replaying an entry without a token.
	ErrNoAudio = errors.New("no history item with audio selected")

	// ErrProcessing is returned when replaying during a submission.
	ErrProcessing = errors.New("cannot play history while processing")

	// ErrAudioMissing is returned when an entry's recording was pruned.
	ErrAudioMissing = errors.New("audio file not found")
)

// Replay plays the recording behind e on a worker goroutine. Rejections
// are reported as a status and returned.
func (o *Orchestrator) Replay(ctx context.Context, e history.Entry) error {
	path, err := o.replayable(e)
	if err != nil {
		o.rep.Status(errorStatus(err))
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.replay(ctx, path)
	}()
	return nil
}

// PlayEntry is Replay on the calling goroutine.
func (o *Orchestrator) PlayEntry(ctx context.Context, e history.Entry) (playback.Outcome, error) {
	path, err := o.replayable(e)
	if err != nil {
		o.rep.Status(errorStatus(err))
		return playback.OutcomeError, err
	}
	return o.replay(ctx, path), nil
}

func (o *Orchestrator) replayable(e history.Entry) (string, error) {
	if !e.HasAudio() {
		return "", ErrNoAudio
	}
	if o.Busy() {
		return "", ErrProcessing
	}
	if o.play.Active() {
		return "", playback.ErrBusy
	}
	path, ok := o.rec.Resolve(e.Token)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAudioMissing, filepath.Base(path))
	}
	return path, nil
}

func (o *Orchestrator) replay(ctx context.Context, path string) playback.Outcome {
	l := log.With("replay", filepath.Base(path))
	var last string
	out := playAndReport(ctx, o.play, guarded{ctx: ctx, r: o.rep}, l, path, "Playing audio...", &last)
	l.Debug("Replay ended", "outcome", out)
	return out
}

// errorStatus renders err as a status line.
func errorStatus(err error) string {
	msg := err.Error()
	r, n := utf8.DecodeRuneInString(msg)
	return "Error: " + string(unicode.ToUpper(r)) + msg[n:]
}
