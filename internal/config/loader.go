package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName names the config file, env prefix and app directories.
const AppName = "voxchat"

// DefaultDataDir returns the per-user data directory, falling back to ./data.
func DefaultDataDir() string {
	dir, err := gap.NewScope(gap.User, AppName).DataPath("")
	if err != nil || dir == "" {
		return "./data"
	}
	return dir
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("chat_model", d.ChatModel)
	v.SetDefault("tts_model", d.TTSModel)
	v.SetDefault("tts_voice", d.TTSVoice)
	v.SetDefault("tts_speed", d.TTSSpeed)
	v.SetDefault("tts_enabled", d.TTSEnabled)
	v.SetDefault("speak_input", d.SpeakInput)
	v.SetDefault("max_recordings", d.MaxRecordings)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("theme", d.Theme)
	v.SetDefault("gateway.base_url", d.Gateway.BaseURL)
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)
	v.SetDefault("gateway.requests_per_minute", d.Gateway.RequestsPerMinute)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.poll_interval", d.Audio.PollInterval)
	v.SetDefault("tts.strip_markdown", d.TTS.StripMarkdown)
}

// FromViper builds Settings from v. The credential falls back to
// OPENAI_API_KEY when no api_key is configured.
func FromViper(v *viper.Viper) (Settings, error) {
	s := decode(v)
	if s.APIKey == "" {
		s.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if s.ChatModel == "" {
		s.ChatModel = DefaultChatModel
	}
	if s.TTSModel == "" {
		s.TTSModel = DefaultTTSModel
	}
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir()
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

func decode(v *viper.Viper) Settings {
	return Settings{
		APIKey:        v.GetString("api_key"),
		ChatModel:     v.GetString("chat_model"),
		TTSModel:      v.GetString("tts_model"),
		TTSVoice:      v.GetString("tts_voice"),
		TTSSpeed:      v.GetFloat64("tts_speed"),
		TTSEnabled:    v.GetBool("tts_enabled"),
		SpeakInput:    v.GetBool("speak_input"),
		MaxRecordings: v.GetInt("max_recordings"),
		DataDir:       v.GetString("data_dir"),
		Theme:         v.GetString("theme"),
		Gateway: GatewaySettings{
			BaseURL:           v.GetString("gateway.base_url"),
			Timeout:           v.GetDuration("gateway.timeout"),
			RequestsPerMinute: v.GetInt("gateway.requests_per_minute"),
		},
		Audio: AudioSettings{
			SampleRate:   v.GetInt("audio.sample_rate"),
			PollInterval: v.GetDuration("audio.poll_interval"),
		},
		TTS: TTSSettings{
			StripMarkdown: v.GetBool("tts.strip_markdown"),
		},
	}
}

// LoadFile reads path alone, ignoring flags and the environment, so the
// result can be saved back without copying overrides into the file. A
// missing file yields the defaults with an empty data_dir.
func LoadFile(path string) (Settings, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetDefault("data_dir", "")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) && !IsNotFound(err) {
		return Settings{}, fmt.Errorf("unable to read %s: %w", path, err)
	}
	s := decode(v)
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// Set assigns value to the setting named key, using the config file's
// key names, and validates the result. s is unchanged on error.
func Set(s *Settings, key, value string) error {
	next := *s
	var err error
	switch key {
	case "api_key":
		next.APIKey = value
	case "chat_model":
		next.ChatModel = value
	case "tts_model":
		next.TTSModel = value
	case "tts_voice":
		next.TTSVoice = value
	case "tts_speed":
		next.TTSSpeed, err = strconv.ParseFloat(value, 64)
	case "tts_enabled":
		next.TTSEnabled, err = strconv.ParseBool(value)
	case "speak_input":
		next.SpeakInput, err = strconv.ParseBool(value)
	case "max_recordings":
		next.MaxRecordings, err = strconv.Atoi(value)
	case "data_dir":
		next.DataDir = value
	case "theme":
		next.Theme = value
	case "gateway.base_url":
		next.Gateway.BaseURL = value
	case "gateway.timeout":
		next.Gateway.Timeout, err = time.ParseDuration(value)
	case "gateway.requests_per_minute":
		next.Gateway.RequestsPerMinute, err = strconv.Atoi(value)
	case "audio.sample_rate":
		next.Audio.SampleRate, err = strconv.Atoi(value)
	case "audio.poll_interval":
		next.Audio.PollInterval, err = time.ParseDuration(value)
	case "tts.strip_markdown":
		next.TTS.StripMarkdown, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

// Save writes s to path as YAML, replacing the file.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("unable to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*")
	if err != nil {
		return fmt.Errorf("unable to create settings file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to write settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("unable to replace settings file: %w", err)
	}
	return nil
}

// Live holds the settings snapshot used for the next submission.
type Live struct {
	v atomic.Pointer[Settings]
}

// NewLive returns a Live initialised with s.
func NewLive(s Settings) *Live {
	l := &Live{}
	l.Store(s)
	return l
}

// Load returns the current snapshot.
func (l *Live) Load() Settings { return *l.v.Load() }

// Store replaces the snapshot.
func (l *Live) Store(s Settings) { l.v.Store(&s) }

// Update applies fn to a copy of the current snapshot and stores the result.
func (l *Live) Update(fn func(*Settings)) Settings {
	s := l.Load()
	fn(&s)
	l.Store(s)
	return s
}

// Watch reloads l whenever v's config file changes. Edits that do not
// validate are logged and ignored.
func Watch(v *viper.Viper, l *Live) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s, err := FromViper(v)
		if err != nil {
			log.Warn("Ignoring config change", "path", e.Name, "error", err)
			return
		}
		l.Store(reloaded(l.Load(), s))
		log.Info("Reloaded configuration", "path", e.Name)
	})
	v.WatchConfig()
}

// reloaded merges settings read from a changed file into the running
// snapshot. Toggles changed from the UI survive. The data directory and the
// device sample rate are bound at startup, so edits to them are reported
// and kept for the next run.
func reloaded(cur, next Settings) Settings {
	next.TTSEnabled, next.SpeakInput = cur.TTSEnabled, cur.SpeakInput
	if next.DataDir != cur.DataDir {
		log.Warn("data_dir changes take effect after a restart", "using", cur.DataDir, "configured", next.DataDir)
		next.DataDir = cur.DataDir
	}
	if next.Audio.SampleRate != cur.Audio.SampleRate {
		log.Warn("audio.sample_rate changes take effect after a restart", "using", cur.Audio.SampleRate, "configured", next.Audio.SampleRate)
		next.Audio.SampleRate = cur.Audio.SampleRate
	}
	return next
}

// IsNotFound reports whether err means no config file was found.
func IsNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}
