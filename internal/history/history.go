// Package history persists prompt/response exchanges, newest first.
//
// The file is a JSON array of [prompt, response, token] rows where token is
// null when no audio was produced. Legacy [prompt, response] rows are
// accepted on load.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"
)

// InputSpoken is the response text recorded for speak-input submissions.
const InputSpoken = "(Input Spoken - No AI Response)"

var codec = sonic.ConfigStd

// Entry is one exchange. Token is empty when no audio exists for it.
type Entry struct {
	Prompt   string
	Response string
	Token    string
}

// HasAudio reports whether the entry references a recording.
func (e Entry) HasAudio() bool { return e.Token != "" }

// MarshalJSON encodes the entry as a three-element row.
func (e Entry) MarshalJSON() ([]byte, error) {
	var token *string
	if e.Token != "" {
		token = &e.Token
	}
	return codec.Marshal([]any{e.Prompt, e.Response, token})
}

var errBadRow = errors.New("history row must have 2 or 3 elements")

// UnmarshalJSON decodes a two- or three-element row.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var row []*string
	if err := codec.Unmarshal(b, &row); err != nil {
		return err
	}
	if len(row) != 2 && len(row) != 3 {
		return fmt.Errorf("%w, got %d", errBadRow, len(row))
	}
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	*e = Entry{Prompt: deref(row[0]), Response: deref(row[1])}
	if len(row) == 3 {
		e.Token = deref(row[2])
	}
	return nil
}

// Store holds the in-memory sequence and its backing file.
type Store struct {
	path string

	mu      sync.RWMutex
	entries []Entry
	// gen counts changes; saved is the gen last written to disk.
	gen   uint64
	saved uint64
}

// Open loads path into a new Store. Load problems are logged, never
// returned: an unreadable store starts empty.
func Open(path string) *Store {
	return &Store{path: path, entries: Load(path)}
}

// NewStore returns an empty Store backed by path, without reading it.
func NewStore(path string, entries ...Entry) *Store {
	return &Store{path: path, entries: append([]Entry(nil), entries...)}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the history file. Malformed rows are skipped; a missing or
// malformed file yields an empty sequence.
func Load(path string) []Entry {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("History file not found, starting fresh", "path", path)
		return nil
	}
	if err != nil {
		log.Error("Unable to read history file", "path", path, "error", err)
		return nil
	}
	return decode(path, b)
}

func decode(path string, b []byte) []Entry {
	var rows []json.RawMessage
	if err := codec.Unmarshal(b, &rows); err != nil {
		log.Warn("History file is not a list, starting fresh", "path", path, "error", err)
		return nil
	}
	entries := make([]Entry, 0, len(rows))
	skipped := 0
	for _, raw := range rows {
		var e Entry
		if err := e.UnmarshalJSON(raw); err != nil {
			log.Warn("Skipping invalid history item", "item", string(raw), "error", err)
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	log.Debug("Loaded history", "path", path, "items", len(entries), "skipped", skipped)
	return entries
}

// Save writes the full sequence, replacing the file atomically. Errors are
// logged and returned for callers that care; the store itself never panics.
func (s *Store) Save() error {
	s.mu.RLock()
	entries := append([]Entry{}, s.entries...)
	gen := s.gen
	s.mu.RUnlock()

	if err := write(s.path, entries); err != nil {
		log.Error("Unable to save history", "path", s.path, "error", err)
		return err
	}
	s.mu.Lock()
	s.saved = max(s.saved, gen)
	s.mu.Unlock()
	log.Debug("Saved history", "path", s.path, "items", len(entries))
	return nil
}

// Dirty reports whether the sequence changed since it was loaded or last
// saved.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen != s.saved
}

// Flush saves only when there are unsaved changes, so a file that failed to
// load is left alone until something new is recorded.
func (s *Store) Flush() error {
	if !s.Dirty() {
		log.Debug("History unchanged, not saving", "path", s.path)
		return nil
	}
	return s.Save()
}

func write(path string, entries []Entry) error {
	b, err := codec.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to encode history: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create history directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return fmt.Errorf("unable to create history file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("unable to write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to write history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("unable to replace history file: %w", err)
	}
	return nil
}

// Prepend inserts e at index 0.
func (s *Store) Prepend(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry{e}, s.entries...)
	s.gen++
}

// Replace swaps the whole sequence, e.g. after an external clear.
func (s *Store) Replace(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry(nil), entries...)
	s.gen++
}

// Entries returns a copy of the sequence, newest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// At returns the entry at index i.
func (s *Store) At(i int) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.entries) {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Match is a search hit with its index in the sequence.
type Match struct {
	Index int
	Entry Entry
}

type prompts []Entry

func (p prompts) String(i int) string { return p[i].Prompt }
func (p prompts) Len() int            { return len(p) }

// Search fuzzy-matches query against prompts, best match first. An empty
// query returns every entry in order.
func (s *Store) Search(query string) []Match {
	entries := s.Entries()
	if query == "" {
		out := make([]Match, len(entries))
		for i, e := range entries {
			out[i] = Match{Index: i, Entry: e}
		}
		return out
	}
	found := fuzzy.FindFrom(query, prompts(entries))
	out := make([]Match, len(found))
	for i, m := range found {
		out[i] = Match{Index: m.Index, Entry: entries[m.Index]}
	}
	return out
}
