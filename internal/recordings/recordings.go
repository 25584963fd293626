// Package recordings names synthesized audio files and enforces the
// retention cap on the responses directory.
package recordings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

const (
	// TokenLayout formats the timestamp part of a token.
	TokenLayout = "20060102_150405"

	filePrefix = "response_"
	fileExt    = ".mp3"
)

// Library allocates tokens and maps them to files under one directory.
type Library struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	issued map[string]struct{}
}

// NewLibrary returns a Library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir, now: time.Now, issued: make(map[string]struct{})}
}

// Dir returns the recordings directory.
func (l *Library) Dir() string { return l.dir }

// NewToken returns a timestamp token that has not been issued by this
// Library and has no file on disk.
func (l *Library) NewToken() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	base := l.now().Format(TokenLayout)
	token := base
	for n := 2; l.taken(token); n++ {
		token = fmt.Sprintf("%s_%d", base, n)
	}
	l.issued[token] = struct{}{}
	return token
}

func (l *Library) taken(token string) bool {
	if _, ok := l.issued[token]; ok {
		return true
	}
	_, err := os.Stat(l.Path(token))
	return err == nil
}

// Path returns the audio file for token.
func (l *Library) Path(token string) string {
	return filepath.Join(l.dir, filePrefix+token+fileExt)
}

// Resolve returns the path for token and whether the file exists.
func (l *Library) Resolve(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	p := l.Path(token)
	info, err := os.Stat(p)
	return p, err == nil && !info.IsDir()
}

// Prune applies the retention policy to the library directory.
func (l *Library) Prune(maxCount int) []string {
	return Prune(l.dir, maxCount)
}

// ParseToken extracts the timestamp from a token, ignoring any suffix.
func ParseToken(token string) (time.Time, error) {
	if len(token) < len(TokenLayout) {
		return time.Time{}, fmt.Errorf("token %q too short", token)
	}
	return time.ParseInLocation(TokenLayout, token[:len(TokenLayout)], time.Local)
}

// Prune deletes the oldest recordings in dir, by modification time, until
// at most maxCount remain; a negative maxCount counts as zero. Deletion
// errors are logged and skipped. It returns the paths that were removed.
func Prune(dir string, maxCount int) []string {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("Responses directory not found for cleanup", "dir", dir)
		return nil
	}
	if err != nil {
		log.Error("Unable to list recordings", "dir", dir, "error", err)
		return nil
	}

	type recording struct {
		path  string
		mtime time.Time
		size  int64
	}
	var files []recording
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			log.Warn("Unable to stat recording", "file", e.Name(), "error", err)
			continue
		}
		files = append(files, recording{filepath.Join(dir, e.Name()), info.ModTime(), info.Size()})
	}

	maxCount = max(maxCount, 0)
	if len(files) <= maxCount {
		log.Debug("No recording cleanup needed", "count", len(files), "max", maxCount)
		return nil
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })
	excess := files[:len(files)-maxCount]
	log.Info("Pruning recordings", "count", len(files), "deleting", len(excess))

	var removed []string
	var freed uint64
	for _, f := range excess {
		if err := os.Remove(f.path); err != nil {
			log.Error("Unable to delete recording", "file", f.path, "error", err)
			continue
		}
		removed = append(removed, f.path)
		freed += uint64(f.size) //nolint:gosec
		log.Debug("Deleted recording", "file", filepath.Base(f.path))
	}
	log.Info("Pruned recordings", "deleted", len(removed), "freed", humanize.Bytes(freed))
	return removed
}
