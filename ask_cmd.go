package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voxchat/internal/app"
	"github.com/dgnsrekt/voxchat/internal/config"
)

type askOptions struct {
	speakInput bool
	noTTS      bool
	model      string
	voice      string
	speed      float64
}

var askOpts askOptions

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt without the TUI",
	Long: paragraph(fmt.Sprintf("\n%s a single prompt, print the response and speak it. "+
		"The prompt is read from stdin when no argument is given.", keyword("Ask"))),
	Example: paragraph("voxchat ask \"what is a goroutine?\"\necho hello | voxchat ask --speak-input"),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		if prompt == "" {
			var err error
			if prompt, err = readPrompt(os.Stdin); err != nil {
				return err
			}
		}
		return runAsk(cmd, prompt, askOpts)
	},
}

// apply overrides s with the flags that were set on cmd.
func (o askOptions) apply(cmd *cobra.Command, s *config.Settings) {
	if o.speakInput {
		s.SpeakInput = true
	}
	if o.noTTS {
		s.TTSEnabled = false
	}
	if o.model != "" {
		s.ChatModel = o.model
	}
	if o.voice != "" {
		s.TTSVoice = o.voice
	}
	if f := cmd.Flags().Lookup("speed"); f != nil && f.Changed {
		s.TTSSpeed = o.speed
	}
}

func runAsk(cmd *cobra.Command, prompt string, opts askOptions) error {
	s := settings
	opts.apply(cmd, &s)
	if err := s.Validate(); err != nil {
		return err
	}

	a, err := app.New(s, app.Options{Reporter: cliReporter(cmd.OutOrStdout())})
	if err != nil {
		return fmt.Errorf("unable to start: %w", err)
	}
	defer a.Shutdown() //nolint:errcheck
	stop := onInterrupt(a)
	defer stop()

	res := a.Run(prompt)
	if res.Aborted {
		return nil
	}
	if err := a.Shutdown(); err != nil {
		return err
	}
	return res.Err
}

func init() {
	askCmd.Flags().BoolVar(&askOpts.speakInput, "speak-input", false, "speak the prompt instead of asking the model")
	askCmd.Flags().BoolVar(&askOpts.noTTS, "no-tts", false, "do not synthesize the response")
	askCmd.Flags().StringVar(&askOpts.model, "model", "", "chat model")
	askCmd.Flags().StringVar(&askOpts.voice, "voice", "", "voice: "+strings.Join(config.Voices, ", "))
	askCmd.Flags().Float64Var(&askOpts.speed, "speed", config.DefaultSpeed, "speech speed")
}
