package main

import "github.com/charmbracelet/lipgloss"

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.Color("204")).
		Background(lipgloss.Color("235")).
		Render

	paragraph = lipgloss.NewStyle().
		Width(78).
		Padding(0, 0, 0, 2).
		Render
)
