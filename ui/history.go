package ui

import (
	"strings"

	"github.com/dustin/go-humanize"
	runewidth "github.com/mattn/go-runewidth"

	"github.com/dgnsrekt/voxchat/internal/history"
	"github.com/dgnsrekt/voxchat/internal/recordings"
)

const (
	audioMark   = "♪"
	missingMark = "∅"
	noAudioMark = " "
)

// historyRow renders one entry as "mark prompt   when" in width cells.
func historyRow(e history.Entry, hasAudio bool, width int) string {
	mark := noAudioMark
	switch {
	case e.HasAudio() && hasAudio:
		mark = audioMark
	case e.HasAudio():
		mark = missingMark
	}

	var when string
	if ts, err := recordings.ParseToken(e.Token); err == nil {
		when = humanize.Time(ts)
	}

	prompt := strings.Join(strings.Fields(e.Prompt), " ")
	avail := width - runewidth.StringWidth(mark) - 1
	if when != "" {
		avail -= runewidth.StringWidth(when) + 1
	}
	if avail < 1 {
		return runewidth.Truncate(mark+" "+prompt, max(width, 0), ellipsis)
	}
	prompt = runewidth.FillRight(runewidth.Truncate(prompt, avail, ellipsis), avail)
	if when == "" {
		return mark + " " + prompt
	}
	return mark + " " + prompt + " " + subtleStyle(when)
}

// historyView renders up to height rows, keeping selected visible.
func historyView(entries []history.Entry, audio []bool, selected, width, height int) string {
	if len(entries) == 0 {
		return subtleStyle("No history yet.")
	}
	start := 0
	if selected >= height {
		start = selected - height + 1
	}
	end := min(len(entries), start+height)

	var b strings.Builder
	for i := start; i < end; i++ {
		has := i < len(audio) && audio[i]
		row := historyRow(entries[i], has, width)
		if i == selected {
			row = selectedRowStyle(row)
		}
		b.WriteString(row)
		if i+1 < end {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
