// Package main provides the entry point for the voxchat CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/voxchat/internal/app"
	"github.com/dgnsrekt/voxchat/internal/config"
	"github.com/dgnsrekt/voxchat/internal/orchestrator"
	"github.com/dgnsrekt/voxchat/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	mouse      bool

	// settings is resolved from flags, env and file before any command runs.
	settings config.Settings

	rootCmd = &cobra.Command{
		Use:   "voxchat",
		Short: "Chat with an AI model and hear it answer",
		Long: paragraph(
			fmt.Sprintf("\nChat with an AI model in the terminal, %s.", keyword("out loud")),
		),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: validateOptions,
		RunE:              execute,
	}
)

func validateOptions(*cobra.Command, []string) error {
	if configFile != "" && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	debug = viper.GetBool("debug")
	mouse = viper.GetBool("mouse")
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	s, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}
	settings = s
	return nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec
}

func readPrompt(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("unable to read prompt: %w", err)
	}
	return string(b), nil
}

func execute(cmd *cobra.Command, _ []string) error {
	// without a terminal there is nothing to drive a TUI, so behave like ask
	if !stdinIsTerminal() {
		prompt, err := readPrompt(os.Stdin)
		if err != nil {
			return err
		}
		return runAsk(cmd, prompt, askOptions{})
	}
	return runTUI()
}

// newApp builds the App from the resolved settings and follows config edits.
func newApp(opts app.Options) (*app.App, error) {
	a, err := app.New(settings, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to start: %w", err)
	}
	a.Watch(viper.GetViper())
	return a, nil
}

// onInterrupt shuts a down on SIGINT/SIGTERM. The returned func stops
// listening.
func onInterrupt(a *app.App) func() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		_ = a.Shutdown()
	}()
	return stop
}

func runTUI() error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.Theme = settings.Theme
	cfg.EnableMouse = mouse

	rep := &ui.Reporter{}
	a, err := newApp(app.Options{Reporter: rep})
	if err != nil {
		return err
	}
	defer a.Shutdown() //nolint:errcheck

	p := ui.NewProgram(cfg, a)
	rep.Attach(p)

	// Run Bubble Tea program
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return a.Shutdown()
}

// cliReporter prints statuses to stderr and output to w.
func cliReporter(w io.Writer) orchestrator.Reporter {
	return orchestrator.Func{
		OnStatus: func(msg string) { fmt.Fprintln(os.Stderr, msg) },
		OnOutput: func(text string) {
			if text != "" {
				fmt.Fprintln(w, text)
			}
		},
	}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	// a missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not parse .env file", "error", err)
	}

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().Bool("debug", false, "write debug logs")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for history and recordings")
	rootCmd.PersistentFlags().String("theme", "", "TUI theme: auto, dark or light")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("theme", rootCmd.PersistentFlags().Lookup("theme"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	config.SetDefaults(viper.GetViper())
	viper.SetDefault("debug", false)
	viper.SetDefault("mouse", false)

	rootCmd.AddCommand(configCmd, manCmd, askCmd, historyCmd, playCmd, modelsCmd, pruneCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, config.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}

	if c := os.Getenv("VOXCHAT_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if !config.IsNotFound(err) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], config.AppName+".yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}
