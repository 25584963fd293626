// Package playback drives one exclusive, cancelable audio session at a time.
package playback

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrBusy is returned when a session is already active.
	ErrBusy = errors.New("already playing audio")
	// ErrNotInitialized is returned when no audio device is available.
	ErrNotInitialized = errors.New("audio device not initialized")
)

// State is the controller's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateFinished
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is how a blocking playback cycle ended.
type Outcome int

const (
	OutcomeFinished Outcome = iota
	OutcomeStopped
	OutcomeError
)

// Natural reports whether the audio played to its end.
func (o Outcome) Natural() bool { return o == OutcomeFinished }

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeStopped:
		return "stopped"
	default:
		return "error"
	}
}

// session is the state shared between the goroutine waiting on playback
// and anyone asking it to stop.
type session struct {
	path    string
	pcm     []byte // referenced until the voice is closed
	voice   Voice
	playing atomic.Bool
	cancel  chan struct{}
	once    sync.Once
}

func (s *session) stop() {
	s.playing.Store(false)
	s.once.Do(func() { close(s.cancel) })
}

// Controller owns the Device. All methods are safe for concurrent use.
type Controller struct {
	dev    Device
	poll   time.Duration
	decode func(path string, sampleRate int) ([]byte, error)

	mu      sync.Mutex
	state   State
	current *session
	lastErr error
	closed  bool
}

// NewController returns a Controller for dev. A nil dev yields a
// controller whose sessions always fail with ErrNotInitialized.
func NewController(dev Device, poll time.Duration) *Controller {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &Controller{dev: dev, poll: poll, decode: DecodeMP3}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error behind the last StateError, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Start begins playing path, stopping any previous session first. It
// returns false if the device is unavailable or the file cannot be loaded.
func (c *Controller) Start(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(StateStopped)
	_, err := c.startLocked(path)
	return err == nil
}

func (c *Controller) startLocked(path string) (*session, error) {
	if c.closed || c.dev == nil {
		c.state = StateIdle
		return nil, ErrNotInitialized
	}

	c.state = StateLoading
	pcm, err := c.decode(path, c.dev.SampleRate())
	if errors.Is(err, fs.ErrNotExist) {
		c.state = StateIdle
		log.Warn("Audio file not found", "path", path)
		return nil, err
	}
	if err != nil {
		return nil, c.failLocked(path, err)
	}
	voice, err := c.dev.NewVoice(bytes.NewReader(pcm))
	if err != nil {
		return nil, c.failLocked(path, err)
	}

	s := &session{path: path, pcm: pcm, voice: voice, cancel: make(chan struct{})}
	s.playing.Store(true)
	voice.Play()
	c.current = s
	c.state = StatePlaying
	c.lastErr = nil
	log.Debug("Playback started", "file", filepath.Base(path))
	return s, nil
}

func (c *Controller) failLocked(path string, err error) error {
	c.state = StateError
	c.lastErr = err
	log.Error("Unable to start playback", "path", path, "error", err)
	return err
}

// endLocked releases the active session, if any, and moves to final.
func (c *Controller) endLocked(final State) {
	s := c.current
	if s == nil {
		return
	}
	c.current = nil
	s.stop()
	if err := s.voice.Close(); err != nil {
		log.Warn("Unable to close audio stream", "error", err)
	}
	s.pcm = nil
	c.state = final
	log.Debug("Playback ended", "file", filepath.Base(s.path), "state", final)
}

// reapLocked ends a session whose voice already drained.
func (c *Controller) reapLocked() {
	if c.current != nil && !c.current.voice.IsPlaying() {
		c.endLocked(StateFinished)
	}
}

// IsBusy reports whether a session is playing and the device is active.
func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePlaying && c.current != nil && c.current.voice.IsPlaying()
}

// Active reports whether a session holds the device.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reapLocked()
	return c.current != nil
}

// Stop forces the controller to StateStopped. It is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(StateStopped)
	c.state = StateStopped
}

// Cancel asks the active session to stop and reports whether one existed.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return false
	}
	c.endLocked(StateStopped)
	return true
}

// Play runs one blocking session: it starts path, calls onStart once the
// device is playing, and waits for the audio to finish, for Cancel, or for
// ctx to be done. It refuses to preempt an active session.
func (c *Controller) Play(ctx context.Context, path string, onStart func()) (Outcome, error) {
	c.mu.Lock()
	c.reapLocked()
	if c.current != nil {
		c.mu.Unlock()
		return OutcomeError, ErrBusy
	}
	s, err := c.startLocked(path)
	c.mu.Unlock()
	if err != nil {
		return OutcomeError, err
	}

	if onStart != nil {
		onStart()
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-s.cancel:
			return OutcomeStopped, nil
		case <-ctx.Done():
			c.finish(s, StateStopped)
			return OutcomeStopped, nil
		case <-ticker.C:
			if s.voice.IsPlaying() {
				continue
			}
			// A stopped session's voice also reports idle.
			if !s.playing.Load() {
				return OutcomeStopped, nil
			}
			c.finish(s, StateFinished)
			return OutcomeFinished, nil
		}
	}
}

// finish ends s if it is still the active session.
func (c *Controller) finish(s *session, final State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == s {
		c.endLocked(final)
	}
}

// Close stops playback and releases the device. Later sessions fail.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(StateStopped)
	if c.closed {
		return nil
	}
	c.closed = true
	c.state = StateIdle
	if c.dev == nil {
		return nil
	}
	return c.dev.Close()
}
