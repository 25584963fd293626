package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeProvider struct {
	chatCalls   atomic.Int32
	speechCalls atomic.Int32

	chatStatus int
	chatBody   string
	speech     []byte
	speechCode int
	models     []string
	modelsCode int
	lastChat   map[string]any
	lastSpeech map[string]any
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.chatCalls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&f.lastChat)
		w.Header().Set("Content-Type", "application/json")
		if f.chatStatus != 0 {
			w.WriteHeader(f.chatStatus)
		}
		_, _ = io.WriteString(w, f.chatBody)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		f.speechCalls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&f.lastSpeech)
		if f.speechCode != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.speechCode)
			_, _ = io.WriteString(w, errorBody("rate limited"))
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(f.speech)
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if f.modelsCode != 0 {
			w.WriteHeader(f.modelsCode)
			_, _ = io.WriteString(w, errorBody("nope"))
			return
		}
		type model struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		}
		out := struct {
			Object string  `json:"object"`
			Data   []model `json:"data"`
		}{Object: "list"}
		for _, id := range f.models {
			out.Data = append(out.Data, model{ID: id, Object: "model"})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	return mux
}

func errorBody(msg string) string {
	return `{"error":{"message":"` + msg + `","type":"invalid_request_error","code":"bad"}}`
}

func chatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, f *fakeProvider, key string) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{APIKey: key, BaseURL: srv.URL + "/v1"})
}

func TestChat(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     ChatResult
		wantKind error
	}{
		{name: "text", body: chatBody("Hi there"), want: ChatResult{Kind: ResultText, Text: "Hi there"}},
		{name: "empty content", body: chatBody(""), want: ChatResult{Kind: ResultEmpty}},
		{name: "no choices", body: `{"id":"x","object":"chat.completion","choices":[]}`, want: ChatResult{Kind: ResultEmpty}},
		{name: "auth error", status: http.StatusUnauthorized, body: errorBody("bad key"), wantKind: ErrTransport},
		{name: "rate limit", status: http.StatusTooManyRequests, body: errorBody("slow down"), wantKind: ErrTransport},
		{name: "garbage body", body: "not json", wantKind: ErrUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{chatStatus: tt.status, chatBody: tt.body}
			c := newTestClient(t, f, "sk-test")

			got, err := c.Chat(context.Background(), "Hello", "gpt-4o")
			if tt.wantKind != nil {
				if !errors.Is(err, tt.wantKind) {
					t.Fatalf("expected %v, got %v", tt.wantKind, err)
				}
				var gerr *Error
				if !errors.As(err, &gerr) || gerr.Op != "get chat response" {
					t.Fatalf("expected *Error for chat, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
			if f.chatCalls.Load() != 1 {
				t.Errorf("expected exactly one request, got %d", f.chatCalls.Load())
			}
		})
	}
}

func TestChatSendsSystemPromptAndModel(t *testing.T) {
	f := &fakeProvider{chatBody: chatBody("ok")}
	c := newTestClient(t, f, "sk-test")
	if _, err := c.Chat(context.Background(), "Hello", "gpt-4o-mini"); err != nil {
		t.Fatal(err)
	}
	if f.lastChat["model"] != "gpt-4o-mini" {
		t.Errorf("model not forwarded: %v", f.lastChat["model"])
	}
	msgs, _ := f.lastChat["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(msgs))
	}
	sys, _ := msgs[0].(map[string]any)
	if sys["role"] != "system" || sys["content"] != DefaultSystemPrompt {
		t.Errorf("unexpected system message: %v", sys)
	}
}

func TestChatResultString(t *testing.T) {
	if s := (ChatResult{Kind: ResultEmpty}).String(); s != NoResponse {
		t.Errorf("empty result should render marker, got %q", s)
	}
	if (ChatResult{Kind: ResultText}).OK() {
		t.Error("text result without text must not be OK")
	}
}

func TestMissingCredential(t *testing.T) {
	f := &fakeProvider{chatBody: chatBody("x")}
	c := newTestClient(t, f, "")

	if _, err := c.Chat(context.Background(), "Hello", "gpt-4o"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	err := c.Speak(context.Background(), "x", filepath.Join(t.TempDir(), "a.mp3"), "tts-1", "alloy", 1)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if f.chatCalls.Load() != 0 || f.speechCalls.Load() != 0 {
		t.Error("no request may be sent without a key")
	}
}

func TestSpeak(t *testing.T) {
	audio := []byte("ID3fake-mp3-bytes")
	f := &fakeProvider{speech: audio}
	c := newTestClient(t, f, "sk-test")

	out := filepath.Join(t.TempDir(), "nested", "responses", "response_1.mp3")
	if err := c.Speak(context.Background(), "Hi there", out, "tts-1", "nova", 1.25); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(audio) {
		t.Errorf("audio mismatch: %q", got)
	}
	if f.lastSpeech["voice"] != "nova" || f.lastSpeech["model"] != "tts-1" || f.lastSpeech["input"] != "Hi there" {
		t.Errorf("request fields not forwarded: %v", f.lastSpeech)
	}
	if f.lastSpeech["speed"] != 1.25 {
		t.Errorf("speed not forwarded: %v", f.lastSpeech["speed"])
	}
	entries, _ := os.ReadDir(filepath.Dir(out))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestSpeakFailureLeavesNoFile(t *testing.T) {
	f := &fakeProvider{speechCode: http.StatusTooManyRequests}
	c := newTestClient(t, f, "sk-test")

	out := filepath.Join(t.TempDir(), "response_1.mp3")
	err := c.Speak(context.Background(), "Hi", out, "tts-1", "alloy", 1)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("output file must not exist after failure")
	}
}

func TestSpeakRejectsSpeed(t *testing.T) {
	f := &fakeProvider{}
	c := newTestClient(t, f, "sk-test")
	for _, speed := range []float64{0.1, 4.5} {
		err := c.Speak(context.Background(), "x", filepath.Join(t.TempDir(), "a.mp3"), "tts-1", "alloy", speed)
		if !errors.Is(err, ErrUnexpected) {
			t.Errorf("speed %.2f: expected unexpected error, got %v", speed, err)
		}
	}
	if f.speechCalls.Load() != 0 {
		t.Error("invalid speed must not reach the provider")
	}
}

func TestConnectionRefusedIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{APIKey: "sk-test", BaseURL: url + "/v1", Timeout: 2 * time.Second})
	_, err := c.Chat(context.Background(), "Hello", "gpt-4o")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestListChatModels(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		models []string
		code   int
		want   []string
	}{
		{
			name:   "filters and sorts",
			key:    "sk-test",
			models: []string{"whisper-1", "gpt-4o", "tts-1", "gpt-4o-audio-preview", "o3-mini", "gpt-4o-mini", "dall-e-3", "text-embedding-3-small", "gpt-4o"},
			want:   []string{"gpt-4o", "gpt-4o-mini", "o3-mini"},
		},
		{name: "no key", key: "", models: []string{"gpt-4o"}, want: DefaultChatModels},
		{name: "provider error", key: "sk-test", code: http.StatusUnauthorized, want: DefaultChatModels},
		{name: "nothing usable", key: "sk-test", models: []string{"whisper-1"}, want: DefaultChatModels},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{models: tt.models, modelsCode: tt.code}
			c := newTestClient(t, f, tt.key)
			got := c.ListChatModels(context.Background())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("models mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListChatModelsReturnsCopy(t *testing.T) {
	c := New(Config{})
	got := c.ListChatModels(context.Background())
	got[0] = "mutated"
	if DefaultChatModels[0] == "mutated" {
		t.Fatal("defaults must not be shared")
	}
}
