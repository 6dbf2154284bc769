/*
Package ui implements the "superx monitor" terminal dashboard: a read-only
bubbletea view of worker health and cluster peers, polled over the
gateway's own HTTP surface (GET /health, GET /cluster) rather than any
in-process access, since the monitor is meant to run against a gateway
deployed elsewhere. Grounded on the teacher's pkg/ui (styles.go's palette,
app.go's list/viewport/keymap shape), trimmed from its task/agent-send
workflow down to a single-purpose status dashboard.
*/
package ui

import "github.com/charmbracelet/lipgloss"

var (
	indigo = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	green  = lipgloss.AdaptiveColor{Light: "#02BA84", Dark: "#02BF87"}
	red    = lipgloss.AdaptiveColor{Light: "#FE5F86", Dark: "#FE5F86"}
	yellow = lipgloss.AdaptiveColor{Light: "#FFC107", Dark: "#FFD54F"}
	gray   = lipgloss.AdaptiveColor{Light: "#9E9E9E", Dark: "#BDBDBD"}
)

var (
	activeStyle    = lipgloss.NewStyle().BorderForeground(indigo).BorderStyle(lipgloss.RoundedBorder())
	inactiveStyle  = lipgloss.NewStyle().BorderForeground(gray).BorderStyle(lipgloss.RoundedBorder())
	titleStyle     = lipgloss.NewStyle().Foreground(indigo).Bold(true).Padding(0, 1)
	errorStyle     = lipgloss.NewStyle().Foreground(red).Bold(true)
	statusBarStyle = lipgloss.NewStyle().Foreground(gray).Padding(0, 1)
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(indigo).Padding(0, 1)
)

func breakerColor(state string) lipgloss.AdaptiveColor {
	switch state {
	case "open":
		return red
	case "half_open":
		return yellow
	default:
		return green
	}
}
