package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voxchat/internal/app"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the chat models available to your key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(app.Options{NoAudio: true})
		if err != nil {
			return err
		}
		defer a.Shutdown() //nolint:errcheck

		for _, m := range a.Gateway.ListChatModels(a.Context()) {
			fmt.Fprintln(cmd.OutOrStdout(), m)
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest recordings",
	Long: paragraph(fmt.Sprintf("\n%s the responses directory down to max_recordings files, oldest first.",
		keyword("Trim"))),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(app.Options{NoAudio: true})
		if err != nil {
			return err
		}
		defer a.Shutdown() //nolint:errcheck

		removed := a.Prune()
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s, keeping at most %d.\n",
			humanize.Comma(int64(len(removed)))+" "+plural(len(removed), "recording", "recordings"),
			a.Current().MaxRecordings)
		return nil
	},
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
