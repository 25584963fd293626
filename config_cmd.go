package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/voxchat/internal/config"
)

const defaultConfig = `# OpenAI API key (falls back to OPENAI_API_KEY)
# api_key: ""
# chat model used for responses
chat_model: "gpt-4o"
# speech model and voice (alloy, echo, fable, onyx, nova, shimmer)
tts_model: "tts-1"
tts_voice: "alloy"
# speech speed, 0.25 to 4.0
tts_speed: 1.0
# speak responses
tts_enabled: true
# speak the prompt itself instead of asking the model
speak_input: false
# recordings kept in the responses directory
max_recordings: 10
# where history and recordings live (default: user data dir)
# data_dir: "~/.local/share/voxchat"
# TUI theme: auto, dark or light
theme: "auto"

gateway:
  # base_url: "https://api.openai.com/v1"
  # per call timeout, 0 waits forever
  timeout: 0s
  # 0 means unlimited
  requests_per_minute: 0

audio:
  sample_rate: 24000
  poll_interval: 50ms

tts:
  # speak rendered text instead of raw markdown
  strip_markdown: true
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the voxchat config file",
	Long:    paragraph(fmt.Sprintf("\n%s the voxchat config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("voxchat config\nvoxchat config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// a broken config must still be editable
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("voxchat", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Change one setting in the config file",
	Example: paragraph("voxchat config set tts_voice nova\nvoxchat config set gateway.timeout 30s"),
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}
		if err := setConfigValue(configFile, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], configFile)
		return nil
	},
}

// setConfigValue rewrites the file at path with key set to value. Flags and
// the environment are not consulted, so overrides never end up in the file.
func setConfigValue(path, key, value string) error {
	s, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := config.Set(&s, key, value); err != nil {
		return err
	}
	return config.Save(path, s)
}

func init() {
	configCmd.AddCommand(configSetCmd)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
