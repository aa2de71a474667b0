package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/multisession/internal/application"
)

type RenderOptions struct {
	// Live is set when connection state comes from a running manager rather
	// than from storage alone.
	Live bool
}

func renderView(statuses []application.BotStatus, opts RenderOptions, s styles) string {
	connected := 0
	for _, status := range statuses {
		if status.Connected {
			connected++
		}
	}

	header := fmt.Sprintf("bots: %d", len(statuses))
	if opts.Live {
		header += fmt.Sprintf("  connected: %d", connected)
	}

	lines := []string{
		s.title.Render("Bot Sessions"),
		s.header.Render(header),
	}

	if len(statuses) == 0 {
		lines = append(lines, s.empty.Render("No bots registered."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	width := 0
	for _, status := range statuses {
		width = max(width, len(status.ID))
	}

	for _, status := range statuses {
		lines = append(lines, renderBot(status, width, opts, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderBot(status application.BotStatus, width int, opts RenderOptions, s styles) string {
	id := s.account.Render(status.ID.String() + strings.Repeat(" ", width-len(status.ID)))

	var state string
	switch {
	case !status.Paired:
		state = s.warning.Render("not paired")
	case status.Connected:
		state = s.connected.Render("connected")
	case opts.Live:
		state = s.disconnected.Render("disconnected")
	default:
		state = s.disconnected.Render("paired")
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, id, "  ", state)
}
