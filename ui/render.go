package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	te "github.com/muesli/termenv"
)

type renderedMsg string

// glamourStyle resolves the configured style, falling back to the theme.
func glamourStyle(cfg Config) string {
	style := cfg.GlamourStyle
	if style == "" {
		style = cfg.Theme
	}
	switch style {
	case "", styles.AutoStyle:
		if te.HasDarkBackground() {
			return styles.DarkStyle
		}
		return styles.LightStyle
	default:
		return style
	}
}

func renderOutput(cfg Config, style string, width int, md string) tea.Cmd {
	return func() tea.Msg {
		s, err := glamourRender(cfg, style, width, md)
		if err != nil {
			log.Error("error rendering with Glamour", "error", err)
			return renderedMsg(md)
		}
		return renderedMsg(s)
	}
}

func glamourRender(cfg Config, style string, width int, md string) (string, error) {
	if !cfg.GlamourEnabled || md == "" {
		return md, nil
	}
	width = max(0, min(int(cfg.GlamourMaxWidth), width)) //nolint:gosec

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}
