package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

// Voice is one playing stream on a Device.
type Voice interface {
	Play()
	IsPlaying() bool
	Close() error
}

// Device is the process-wide audio output.
type Device interface {
	NewVoice(r io.Reader) (Voice, error)
	SampleRate() int
	Close() error
}

// ErrSampleRate is returned when a file does not match the device rate.
var ErrSampleRate = errors.New("sample rate mismatch")

// DecodeMP3 reads path fully into 16-bit little-endian stereo PCM. The
// returned buffer must stay referenced for as long as it is playing.
func DecodeMP3(path string, sampleRate int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	if d.SampleRate() != sampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz, device is %d Hz (set audio.sample_rate)", ErrSampleRate, path, d.SampleRate(), sampleRate)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("unable to decode %s: no audio frames", path)
	}
	return pcm, nil
}

// OtoDevice wraps the oto context. oto allows one context per process, so
// an OtoDevice must be opened once and released on exit.
type OtoDevice struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
}

// OpenDevice initializes the audio context and waits until it is ready.
func OpenDevice(sampleRate int) (*OtoDevice, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2, // go-mp3 always yields stereo
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready
	return &OtoDevice{ctx: ctx, sampleRate: sampleRate}, nil
}

// SampleRate returns the rate the context was opened with.
func (d *OtoDevice) SampleRate() int { return d.sampleRate }

// NewVoice creates a paused player reading PCM from r.
func (d *OtoDevice) NewVoice(r io.Reader) (Voice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, ErrNotInitialized
	}
	p := d.ctx.NewPlayer(r)
	if p == nil {
		return nil, errors.New("failed to create oto player")
	}
	return otoVoice{p}, nil
}

// Close suspends the context. oto v3 has no way to destroy a context.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Suspend()
	d.ctx = nil
	return err
}

type otoVoice struct{ p *oto.Player }

func (v otoVoice) Play()           { v.p.Play() }
func (v otoVoice) IsPlaying() bool { return v.p.IsPlaying() }

func (v otoVoice) Close() error {
	v.p.Pause()
	return v.p.Close()
}
