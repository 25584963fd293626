// Package utils provides small path helpers shared by the CLI and the TUI.
package utils

import (
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands tilde and all environment variables from the given path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

// Truncate shortens s to at most n bytes on a rune boundary, appending an
// ellipsis when something was cut.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " ") + "…"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
