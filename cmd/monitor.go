package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/theapemachine/superx/pkg/ui"
)

var monitorURLFlag string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch worker health and cluster peers for a running gateway",
	Long:  longMonitor,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := tea.NewProgram(ui.NewMonitor(monitorURLFlag), tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorURLFlag, "url", "http://localhost:8080", "base URL of the gateway to watch")
}

var longMonitor = `
Poll a running gateway's /health and /cluster endpoints and render its
worker breaker states and cluster peers in a terminal dashboard.

Examples:
  # Watch the local default gateway
  superx monitor

  # Watch a remote gateway
  superx monitor --url http://gateway.internal:8080
`
