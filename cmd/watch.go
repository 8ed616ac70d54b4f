package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/ui/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live console for a running control plane",
	Long: `Subscribe to the control plane's console stream and render a live
view of colonies, crabs, missions, runs, and the event feed.

The console receives a full snapshot on connect, then every state change
as it happens. Press l to swap the event feed for a tail of the debug
log, and q to quit.

Examples:
  # Watch the local control plane
  crabitat watch

  # Watch a remote control plane
  crabitat watch --server http://reef.example.com:8800

  # Watch with the debug log pane available
  crabitat watch --debug`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cleanup, err := setupLogging("crabitat-watch")
	if err != nil {
		return err
	}
	defer cleanup()

	console, err := apiClient().DialConsole(cmd.Context())
	if err != nil {
		return fmt.Errorf("connecting to control plane at %s: %w", baseURL(), err)
	}
	defer func() { _ = console.Close() }()

	model := watch.New(watch.Config{
		Frames: console.Frames(),
		Server: baseURL(),
		Logs:   log.NewListener(cmd.Context()),
	})
	p := tea.NewProgram(
		&model,
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}
