package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voxchat/internal/app"
	"github.com/dgnsrekt/voxchat/internal/history"
	"github.com/dgnsrekt/voxchat/internal/playback"
	"github.com/dgnsrekt/voxchat/internal/recordings"
	"github.com/dgnsrekt/voxchat/utils"
)

const listPromptWidth = 60

var errPlayback = errors.New("playback failed")

var (
	historySearch string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "List past prompts, newest first",
	Example: paragraph("voxchat history --limit 5\nvoxchat history --search goroutine"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(app.Options{NoAudio: true})
		if err != nil {
			return err
		}
		defer a.Shutdown() //nolint:errcheck

		matches := a.History.Search(historySearch)
		if historyLimit > 0 && len(matches) > historyLimit {
			matches = matches[:historyLimit]
		}
		if len(matches) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No history.")
			return nil
		}
		writeHistory(cmd.OutOrStdout(), matches, a.AudioAvailable)
		return nil
	},
}

func writeHistory(w io.Writer, matches []history.Match, available func(string) bool) {
	for _, m := range matches {
		audio := "-"
		switch {
		case m.Entry.HasAudio() && available(m.Entry.Token):
			audio = "audio"
		case m.Entry.HasAudio():
			audio = "missing"
		}
		when := "-"
		if ts, err := recordings.ParseToken(m.Entry.Token); err == nil {
			when = humanize.Time(ts)
		}
		fmt.Fprintf(w, "%3d  %-7s  %-16s  %s\n", m.Index, audio, when, utils.Truncate(m.Entry.Prompt, listPromptWidth))
	}
}

var playCmd = &cobra.Command{
	Use:     "play <index>",
	Short:   "Replay the audio of a history entry",
	Example: paragraph("voxchat play 0"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q: %w", args[0], err)
		}

		a, err := newApp(app.Options{Reporter: cliReporter(cmd.OutOrStdout())})
		if err != nil {
			return err
		}
		defer a.Shutdown() //nolint:errcheck
		stop := onInterrupt(a)
		defer stop()

		e, ok := a.History.At(i)
		if !ok {
			return fmt.Errorf("no history entry %d", i)
		}
		out, err := a.Orchestrator.PlayEntry(a.Context(), e)
		if err != nil {
			return err
		}
		if out == playback.OutcomeError {
			return errPlayback
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historySearch, "search", "q", "", "fuzzy match prompts")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show at most n entries")
}
