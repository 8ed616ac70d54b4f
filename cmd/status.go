package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crabitat/crabitat/internal/presentation"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a snapshot of the control plane",
	Long: `Fetch a one-shot status snapshot from a running control plane and
render it as tables: colonies, crabs, missions, and active runs.

Examples:
  # Snapshot of the local control plane
  crabitat status

  # Snapshot of a remote control plane
  crabitat status --server http://reef.example.com:8800

  # Machine-readable output
  crabitat status --json | jq '.summary.total_tokens'`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	snapshot, err := apiClient().Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetching status from %s: %w", baseURL(), err)
	}

	formatter := presentation.NewFormatter(os.Stdout, statusJSON)
	return formatter.Snapshot(snapshot)
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output the raw snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}
