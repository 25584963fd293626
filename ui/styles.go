package ui

import "github.com/charmbracelet/lipgloss"

const ellipsis = "…"

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	fuchsia   = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(red).
				Render

	statusBarToggleStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Render

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(gray)

	focusedPaneStyle = paneStyle.BorderForeground(fuchsia)

	selectedRowStyle = lipgloss.NewStyle().Foreground(fuchsia).Bold(true).Render
	subtleStyle      = lipgloss.NewStyle().Foreground(gray).Render
)

func logoView() string { return logoStyle(" voxchat ") }
