package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title        lipgloss.Style
	header       lipgloss.Style
	account      lipgloss.Style
	connected    lipgloss.Style
	disconnected lipgloss.Style
	warning      lipgloss.Style
	empty        lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:        lipgloss.NewStyle().Bold(true),
		header:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		account:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		connected:    lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		disconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		warning:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		empty:        lipgloss.NewStyle().Faint(true),
	}
}
