package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crabitat/crabitat/internal/orchestration/controlplane"
	"github.com/crabitat/crabitat/internal/presentation"
	"github.com/crabitat/crabitat/internal/ui/markdown"
)

var (
	missionColony    string
	missionPrompt    string
	missionWorkflow  string
	missionStartJSON bool
	missionShowJSON  bool
)

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Start and inspect missions",
}

var missionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Create a mission on the control plane",
	Long: `Create a mission in a colony. With --workflow the control plane
expands the named workflow into tasks and schedules them; without it the
mission waits for tasks to be added explicitly.

Examples:
  # Start a dev-task mission
  crabitat mission start --colony <colony-id> --prompt "fix the tide tables" --workflow dev-task

  # Create a mission without a workflow
  crabitat mission start --colony <colony-id> --prompt "investigate flaky sync"

  # Parse the new mission id with jq
  crabitat mission start --colony <colony-id> --prompt "..." --json | jq -r '.mission_id'`,
	RunE: runMissionStart,
}

var missionShowCmd = &cobra.Command{
	Use:   "show <mission-id>",
	Short: "Show one mission with its tasks and runs",
	Long: `Fetch a mission and render its prompt, task list, and run summaries
as Markdown.

Examples:
  crabitat mission show 3f8a1c2e-5b6d-4e7f-8a9b-0c1d2e3f4a5b
  crabitat mission show 3f8a1c2e-5b6d-4e7f-8a9b-0c1d2e3f4a5b --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMissionShow,
}

func runMissionStart(cmd *cobra.Command, args []string) error {
	if missionColony == "" || missionPrompt == "" {
		return cmd.Help()
	}

	req := controlplane.CreateMissionRequest{
		ColonyID: missionColony,
		Prompt:   missionPrompt,
	}
	if missionWorkflow != "" {
		req.Workflow = &missionWorkflow
	}

	mission, err := apiClient().CreateMission(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("creating mission: %w", err)
	}

	if missionStartJSON {
		return presentation.NewFormatter(os.Stdout, true).JSON(mission)
	}

	fmt.Printf("Mission %s created (%s)\n", mission.MissionID, mission.Status)
	if mission.WorkflowName != nil {
		fmt.Printf("Workflow: %s\n", *mission.WorkflowName)
	}
	if mission.WorktreePath != nil {
		fmt.Printf("Worktree: %s\n", *mission.WorktreePath)
	}
	fmt.Printf("\nFollow it with: crabitat mission show %s\n", mission.MissionID)
	return nil
}

func runMissionShow(cmd *cobra.Command, args []string) error {
	detail, err := apiClient().Mission(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("fetching mission: %w", err)
	}

	if missionShowJSON {
		return presentation.NewFormatter(os.Stdout, true).JSON(detail)
	}

	md := presentation.MissionMarkdown(detail)
	if renderer, err := markdown.New(100, ""); err == nil {
		if rendered, renderErr := renderer.Render(md); renderErr == nil {
			fmt.Print(rendered)
			return nil
		}
	}

	// Plain markdown when the terminal renderer is unavailable
	fmt.Print(md)
	return nil
}

func init() {
	missionStartCmd.Flags().StringVar(&missionColony, "colony", "", "Colony ID (required)")
	missionStartCmd.Flags().StringVarP(&missionPrompt, "prompt", "p", "", "Mission prompt (required)")
	missionStartCmd.Flags().StringVarP(&missionWorkflow, "workflow", "w", "", "Workflow name (e.g. dev-task)")
	missionStartCmd.Flags().BoolVar(&missionStartJSON, "json", false, "Output the created mission as JSON")
	missionShowCmd.Flags().BoolVar(&missionShowJSON, "json", false, "Output the mission detail as JSON")

	missionCmd.AddCommand(missionStartCmd)
	missionCmd.AddCommand(missionShowCmd)
	rootCmd.AddCommand(missionCmd)
}
