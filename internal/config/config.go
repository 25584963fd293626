// Package config defines the typed settings record consumed by the request
// orchestrator, and loads it from viper (flags, environment, YAML file).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dgnsrekt/voxchat/utils"
)

// Voices supported by the speech endpoint.
var Voices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// Themes accepted for the TUI.
var Themes = []string{"auto", "dark", "light"}

const (
	MinSpeed = 0.25
	MaxSpeed = 4.0

	DefaultChatModel     = "gpt-4o"
	DefaultTTSModel      = "tts-1"
	DefaultVoice         = "alloy"
	DefaultSpeed         = 1.0
	DefaultMaxRecordings = 10
	DefaultSampleRate    = 24000
	DefaultPollInterval  = 50 * time.Millisecond

	responsesDirName = "responses"
	historyFileName  = "chat_history.json"
)

var (
	ErrInvalidSpeed      = fmt.Errorf("tts_speed must be between %.2f and %.2f", MinSpeed, MaxSpeed)
	ErrInvalidVoice      = errors.New("unknown tts_voice")
	ErrInvalidTheme      = errors.New("theme must be auto, dark or light")
	ErrInvalidRetention  = errors.New("max_recordings must be at least 1")
	ErrInvalidSampleRate = errors.New("audio.sample_rate must be positive")
	ErrInvalidDuration   = errors.New("durations must not be negative")
	ErrUnknownKey        = errors.New("unknown setting")
)

// Settings is the full set of user preferences.
type Settings struct {
	APIKey        string  `yaml:"api_key,omitempty"`
	ChatModel     string  `yaml:"chat_model"`
	TTSModel      string  `yaml:"tts_model"`
	TTSVoice      string  `yaml:"tts_voice"`
	TTSSpeed      float64 `yaml:"tts_speed"`
	TTSEnabled    bool    `yaml:"tts_enabled"`
	SpeakInput    bool    `yaml:"speak_input"`
	MaxRecordings int     `yaml:"max_recordings"`
	DataDir       string  `yaml:"data_dir,omitempty"`
	Theme         string  `yaml:"theme"`

	Gateway GatewaySettings `yaml:"gateway"`
	Audio   AudioSettings   `yaml:"audio"`
	TTS     TTSSettings     `yaml:"tts"`
}

// GatewaySettings tune the remote provider client.
type GatewaySettings struct {
	BaseURL string `yaml:"base_url,omitempty"`
	// Timeout bounds each remote call. Zero leaves calls unbounded.
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// AudioSettings configure the output device.
type AudioSettings struct {
	SampleRate   int           `yaml:"sample_rate"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// TTSSettings control how text is prepared for synthesis.
type TTSSettings struct {
	StripMarkdown bool `yaml:"strip_markdown"`
}

// Default returns Settings with every field at its documented default.
func Default() Settings {
	return Settings{
		ChatModel:     DefaultChatModel,
		TTSModel:      DefaultTTSModel,
		TTSVoice:      DefaultVoice,
		TTSSpeed:      DefaultSpeed,
		TTSEnabled:    true,
		SpeakInput:    false,
		MaxRecordings: DefaultMaxRecordings,
		DataDir:       DefaultDataDir(),
		Theme:         "auto",
		Audio: AudioSettings{
			SampleRate:   DefaultSampleRate,
			PollInterval: DefaultPollInterval,
		},
		TTS: TTSSettings{StripMarkdown: true},
	}
}

// Validate checks every constrained field.
func (s Settings) Validate() error {
	if s.TTSSpeed < MinSpeed || s.TTSSpeed > MaxSpeed {
		return fmt.Errorf("%w, got %.2f", ErrInvalidSpeed, s.TTSSpeed)
	}
	if !slices.Contains(Voices, s.TTSVoice) {
		return fmt.Errorf("%w %q", ErrInvalidVoice, s.TTSVoice)
	}
	if !slices.Contains(Themes, s.Theme) {
		return fmt.Errorf("%w, got %q", ErrInvalidTheme, s.Theme)
	}
	if s.MaxRecordings < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidRetention, s.MaxRecordings)
	}
	if s.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidSampleRate, s.Audio.SampleRate)
	}
	if s.Gateway.Timeout < 0 || s.Audio.PollInterval < 0 {
		return ErrInvalidDuration
	}
	if s.Gateway.RequestsPerMinute < 0 {
		return errors.New("gateway.requests_per_minute must not be negative")
	}
	return nil
}

// ResponsesDir is where synthesized audio lives.
func (s Settings) ResponsesDir() string {
	return filepath.Join(utils.ExpandPath(s.DataDir), responsesDirName)
}

// HistoryFile is the persisted history log.
func (s Settings) HistoryFile() string {
	return filepath.Join(utils.ExpandPath(s.DataDir), historyFileName)
}

// EnsureDirs creates the data and responses directories.
func (s Settings) EnsureDirs() error {
	if err := os.MkdirAll(s.ResponsesDir(), 0o755); err != nil {
		return fmt.Errorf("unable to create data directories: %w", err)
	}
	return nil
}
