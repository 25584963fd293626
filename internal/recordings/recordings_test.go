package recordings

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("mp3"), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestPruneKeepsNewest(t *testing.T) {
	const k, m = 3, 4
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	var paths []string
	for i := 0; i < k+m; i++ {
		p := filepath.Join(dir, fmt.Sprintf("response_%02d.mp3", i))
		// Names and mtimes disagree so ordering must come from mtime.
		touch(t, p, base.Add(time.Duration(k+m-i)*time.Minute))
		paths = append(paths, p)
	}

	removed := Prune(dir, k)
	require.Len(t, removed, m)

	// The highest indexes carry the oldest mtimes.
	for i := 0; i < k+m; i++ {
		_, err := os.Stat(paths[i])
		if i >= k {
			assert.True(t, os.IsNotExist(err), "expected %s deleted", paths[i])
		} else {
			assert.NoError(t, err, "expected %s kept", paths[i])
		}
	}
}

func TestPruneUnderLimit(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "response_a.mp3"), time.Now())
	touch(t, filepath.Join(dir, "response_b.mp3"), time.Now())

	assert.Empty(t, Prune(dir, 2))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPruneIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)
	touch(t, filepath.Join(dir, "notes.txt"), old)
	touch(t, filepath.Join(dir, "chat_history.json"), old)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp3"), 0o755))
	touch(t, filepath.Join(dir, "response_1.mp3"), old)
	touch(t, filepath.Join(dir, "response_2.MP3"), time.Now())

	removed := Prune(dir, 1)
	require.Equal(t, []string{filepath.Join(dir, "response_1.mp3")}, removed)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.FileExists(t, filepath.Join(dir, "chat_history.json"))
	assert.DirExists(t, filepath.Join(dir, "sub.mp3"))
}

func TestPruneNegativeLimitRemovesAll(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "response_a.mp3"), time.Now())

	removed := Prune(dir, -1)
	assert.Equal(t, []string{filepath.Join(dir, "response_a.mp3")}, removed)
	assert.NoFileExists(t, filepath.Join(dir, "response_a.mp3"))
}

func TestPruneMissingDir(t *testing.T) {
	assert.Empty(t, Prune(filepath.Join(t.TempDir(), "missing"), 1))
}

func TestNewTokenFormatAndUniqueness(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir)
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)
	lib.now = func() time.Time { return fixed }

	first := lib.NewToken()
	assert.Equal(t, "20250304_050607", first)

	second := lib.NewToken()
	assert.Equal(t, "20250304_050607_2", second)

	// A file already on disk also blocks its token.
	touch(t, filepath.Join(dir, "response_20250304_050607_3.mp3"), fixed)
	assert.Equal(t, "20250304_050607_4", lib.NewToken())

	ts, err := ParseToken(second)
	require.NoError(t, err)
	assert.True(t, ts.Equal(fixed))
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir)

	p, ok := lib.Resolve("20250101_000000")
	assert.False(t, ok)
	assert.Equal(t, filepath.Join(dir, "response_20250101_000000.mp3"), p)

	touch(t, p, time.Now())
	_, ok = lib.Resolve("20250101_000000")
	assert.True(t, ok)

	_, ok = lib.Resolve("")
	assert.False(t, ok)
}

func TestParseTokenTooShort(t *testing.T) {
	_, err := ParseToken("2025")
	assert.Error(t, err)
}
