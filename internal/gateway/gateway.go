// Package gateway wraps the remote chat and speech provider. Each operation
// issues exactly one request; retries are left to callers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultSystemPrompt is sent ahead of every user prompt.
	DefaultSystemPrompt = "You are a helpful assistant."

	// NoResponse is shown when the provider answered with empty content.
	NoResponse = "(no response)"

	minSpeed = 0.25
	maxSpeed = 4.0
)

// DefaultChatModels is offered when the provider catalog is unavailable.
var DefaultChatModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"}

// ResultKind tags a chat result.
type ResultKind int

const (
	ResultText ResultKind = iota
	ResultEmpty
)

// ChatResult is the outcome of a successful chat call.
type ChatResult struct {
	Kind ResultKind
	Text string
}

// OK reports whether the result carries usable text.
func (r ChatResult) OK() bool { return r.Kind == ResultText && r.Text != "" }

func (r ChatResult) String() string {
	if !r.OK() {
		return NoResponse
	}
	return r.Text
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds each call when positive.
	Timeout           time.Duration
	RequestsPerMinute int
	SystemPrompt      string
	HTTPClient        *http.Client
}

// Client talks to an OpenAI-compatible endpoint.
type Client struct {
	api          *openai.Client
	hasKey       bool
	timeout      time.Duration
	limiter      *rate.Limiter
	systemPrompt string
}

// New creates a Client. A missing key is not an error here; calls fail with
// ErrMissingCredential instead.
func New(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	c := &Client{
		api:          openai.NewClientWithConfig(oc),
		hasKey:       cfg.APIKey != "",
		timeout:      cfg.Timeout,
		systemPrompt: cfg.SystemPrompt,
	}
	if c.systemPrompt == "" {
		c.systemPrompt = DefaultSystemPrompt
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// Validate reports ErrMissingCredential when no key is configured.
func (c *Client) Validate() error {
	if !c.hasKey {
		return ErrMissingCredential
	}
	return nil
}

// begin applies the credential check, pacing and the optional timeout.
func (c *Client) begin(ctx context.Context, op string) (context.Context, context.CancelFunc, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, &Error{Op: op, Kind: KindTransport, Cause: fmt.Errorf("rate limit wait: %w", err)}
		}
	}
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

// Chat sends prompt to model and returns the reply.
func (c *Client) Chat(ctx context.Context, prompt, model string) (ChatResult, error) {
	const op = "get chat response"
	ctx, cancel, err := c.begin(ctx, op)
	if err != nil {
		return ChatResult{}, err
	}
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		log.Debug("Chat request failed", "model", model, "error", err)
		return ChatResult{}, classify(op, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		log.Warn("Chat response had no content", "model", model)
		return ChatResult{Kind: ResultEmpty}, nil
	}
	return ChatResult{Kind: ResultText, Text: resp.Choices[0].Message.Content}, nil
}

// Speak synthesizes text and writes the audio to outputPath. On failure the
// target file is absent.
func (c *Client) Speak(ctx context.Context, text, outputPath, model, voice string, speed float64) error {
	const op = "generate speech"
	if speed < minSpeed || speed > maxSpeed {
		return &Error{Op: op, Kind: KindUnexpected, Cause: fmt.Errorf("speed %.2f outside [%.2f, %.2f]", speed, minSpeed, maxSpeed)}
	}
	ctx, cancel, err := c.begin(ctx, op)
	if err != nil {
		return err
	}
	defer cancel()

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Op: op, Kind: KindUnexpected, Cause: err}
	}

	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		log.Debug("Speech request failed", "model", model, "voice", voice, "error", err)
		return classify(op, err)
	}
	defer resp.Close() //nolint:errcheck

	if err := writeAtomic(dir, outputPath, resp); err != nil {
		return classify(op, err)
	}
	log.Debug("Audio saved", "path", outputPath)
	return nil
}

func writeAtomic(dir, path string, r io.Reader) error {
	tmp, err := os.CreateTemp(dir, ".speech-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ListChatModels returns the chat-capable models offered by the provider.
// It never fails: any problem yields DefaultChatModels.
func (c *Client) ListChatModels(ctx context.Context) []string {
	ctx, cancel, err := c.begin(ctx, "list models")
	if err != nil {
		log.Warn("Using default model list", "reason", err)
		return slices.Clone(DefaultChatModels)
	}
	defer cancel()

	list, err := c.api.ListModels(ctx)
	if err != nil {
		log.Warn("Fetching model list failed, using defaults", "error", err)
		return slices.Clone(DefaultChatModels)
	}

	var ids []string
	for _, m := range list.Models {
		if isChatModel(m.ID) {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		log.Warn("Provider returned no chat models, using defaults")
		return slices.Clone(DefaultChatModels)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

var (
	chatPrefixes = []string{"gpt-", "o1", "o3", "o4", "chatgpt-"}
	nonChatParts = []string{"audio", "realtime", "tts", "transcribe", "search", "image", "embedding", "instruct"}
)

func isChatModel(id string) bool {
	id = strings.ToLower(id)
	if !slices.ContainsFunc(chatPrefixes, func(p string) bool { return strings.HasPrefix(id, p) }) {
		return false
	}
	return !slices.ContainsFunc(nonChatParts, func(p string) bool { return strings.Contains(id, p) })
}

// IsTransport reports whether err is a provider error.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }
