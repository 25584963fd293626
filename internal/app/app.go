// Package app wires the voxchat components together and owns their
// lifetime.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/voxchat/internal/config"
	"github.com/dgnsrekt/voxchat/internal/history"
	"github.com/dgnsrekt/voxchat/internal/orchestrator"
	"github.com/dgnsrekt/voxchat/internal/playback"
	"github.com/dgnsrekt/voxchat/internal/recordings"
)

// Options customizes New.
type Options struct {
	// Reporter receives orchestrator updates. Nil discards them.
	Reporter orchestrator.Reporter

	// Device overrides the audio output. When nil the oto device is opened.
	Device playback.Device

	// NoAudio skips opening any device; playback then always fails.
	NoAudio bool
}

// App is one running voxchat process.
type App struct {
	Settings     *config.Live
	History      *history.Store
	Recordings   *recordings.Library
	Player       *playback.Controller
	Gateway      *Gateway
	Orchestrator *orchestrator.Orchestrator

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
	err      error
}

// New builds an App from s. A missing audio device is logged and leaves
// the App usable without playback.
func New(s config.Settings, opts Options) (*App, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.EnsureDirs(); err != nil {
		return nil, err
	}

	a := &App{
		Settings:   config.NewLive(s),
		History:    history.Open(s.HistoryFile()),
		Recordings: recordings.NewLibrary(s.ResponsesDir()),
	}
	a.Gateway = NewGateway(a.Settings)

	dev := opts.Device
	if dev == nil && !opts.NoAudio {
		d, err := playback.OpenDevice(s.Audio.SampleRate)
		if err != nil {
			log.Error("Audio playback unavailable", "error", err)
		} else {
			dev = d
		}
	}
	a.Player = playback.NewController(dev, s.Audio.PollInterval)

	orch, err := orchestrator.New(orchestrator.Deps{
		Gateway:    a.Gateway,
		Player:     a.Player,
		Recordings: a.Recordings,
		History:    a.History,
		Reporter:   opts.Reporter,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create orchestrator: %w", err)
	}
	a.Orchestrator = orch
	a.ctx, a.cancel = context.WithCancel(context.Background())

	log.Debug("App ready", "data", s.DataDir, "history", a.History.Len(), "audio", dev != nil)
	return a, nil
}

// Context is cancelled when Shutdown starts.
func (a *App) Context() context.Context { return a.ctx }

// Watch keeps Settings in sync with v's config file.
func (a *App) Watch(v *viper.Viper) { config.Watch(v, a.Settings) }

// Request builds a request for prompt from the current settings.
func (a *App) Request(prompt string) orchestrator.Request {
	return orchestrator.NewRequest(prompt, a.Settings.Load())
}

// Submit starts prompt on a worker.
func (a *App) Submit(prompt string) error {
	return a.Orchestrator.Submit(a.ctx, a.Request(prompt))
}

// Run processes prompt on the calling goroutine.
func (a *App) Run(prompt string) orchestrator.Result {
	return a.Orchestrator.Run(a.ctx, a.Request(prompt))
}

// Replay plays the audio for history entry i on a worker.
func (a *App) Replay(i int) error {
	e, ok := a.History.At(i)
	if !ok {
		return fmt.Errorf("no history entry %d", i)
	}
	return a.Orchestrator.Replay(a.ctx, e)
}

// Current returns the live settings snapshot.
func (a *App) Current() config.Settings { return a.Settings.Load() }

// Entries returns the history, newest first.
func (a *App) Entries() []history.Entry { return a.History.Entries() }

// AudioAvailable reports whether token has a recording on disk.
func (a *App) AudioAvailable(token string) bool {
	_, ok := a.Recordings.Resolve(token)
	return ok
}

// StopPlayback cancels the active session, if any.
func (a *App) StopPlayback() bool { return a.Player.Cancel() }

// ToggleTTS flips response synthesis and returns the new value.
func (a *App) ToggleTTS() bool {
	return a.Settings.Update(func(s *config.Settings) { s.TTSEnabled = !s.TTSEnabled }).TTSEnabled
}

// ToggleSpeakInput flips speak-input mode and returns the new value.
func (a *App) ToggleSpeakInput() bool {
	return a.Settings.Update(func(s *config.Settings) { s.SpeakInput = !s.SpeakInput }).SpeakInput
}

// Prune applies the retention policy with the current limit.
func (a *App) Prune() []string {
	return a.Recordings.Prune(a.Settings.Load().MaxRecordings)
}

// Shutdown signals workers, stops playback, flushes history and releases
// the audio device, in that order. Only the first call does anything.
func (a *App) Shutdown() error {
	a.shutdown.Do(func() {
		log.Debug("Shutting down")
		a.cancel()
		a.Player.Stop()
		if err := a.History.Flush(); err != nil {
			// Already logged by the store.
			a.err = errors.Join(a.err, err)
		}
		if err := a.Player.Close(); err != nil {
			log.Warn("Unable to release audio device", "error", err)
			a.err = errors.Join(a.err, err)
		}
	})
	return a.err
}
