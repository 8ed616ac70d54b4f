package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crabitat/crabitat/internal/presentation"
	"github.com/crabitat/crabitat/internal/watcher"
	"github.com/crabitat/crabitat/internal/workflow"
)

var (
	workflowsDir      string
	workflowsListJSON bool
	workflowsWatch    bool
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List and validate workflow manifests",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workflows missions can run",
	Long: `List every workflow name the control plane would accept: the
built-in workflows plus any *.yaml manifests in the workflow directory.
A user manifest with the same name as a built-in replaces it.

Examples:
  # List workflow names
  crabitat workflows list

  # List from a specific manifest directory
  crabitat workflows list --dir ./workflows

  # Feed the names to another tool
  crabitat workflows list --json | jq -r '.[]'`,
	RunE: runWorkflowsList,
}

var workflowsLintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate workflow manifests",
	Long: `Parse and validate every manifest in the workflow directory and
report each problem as "file: message". The command exits non-zero when
any problem is found.

With --watch the command keeps running and re-lints whenever a manifest
or prompt file changes. Findings in watch mode are reported but do not
stop the watch.

Examples:
  # Lint the configured workflow directory
  crabitat workflows lint

  # Lint a directory you are editing, re-checking on every save
  crabitat workflows lint --dir ./workflows --watch`,
	RunE: runWorkflowsLint,
}

func runWorkflowsList(cmd *cobra.Command, args []string) error {
	registry, err := workflow.LoadRegistry(manifestDir())
	if err != nil {
		return fmt.Errorf("loading workflow registry: %w", err)
	}
	return presentation.NewFormatter(os.Stdout, workflowsListJSON).Workflows(registry.Names())
}

func runWorkflowsLint(cmd *cobra.Command, args []string) error {
	dir := manifestDir()

	count, err := lintDir(dir)
	if err != nil {
		return err
	}
	if !workflowsWatch {
		if count > 0 {
			return fmt.Errorf("%d problem(s) in %s", count, dir)
		}
		return nil
	}

	w, err := watcher.New(watcher.DefaultConfig(dir))
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("\nWatching %s for changes, press Ctrl+C to stop\n", dir)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-sigCh:
			fmt.Println("\nStopped watching")
			return nil
		case <-changes:
			fmt.Println()
			if _, err := lintDir(dir); err != nil {
				return err
			}
		}
	}
}

// lintDir runs one lint pass, prints the outcome, and returns the
// finding count. The error is reserved for failures to read the
// directory at all.
func lintDir(dir string) (int, error) {
	findings, err := workflow.Lint(dir)
	if err != nil {
		return 0, fmt.Errorf("linting %s: %w", dir, err)
	}
	if len(findings) == 0 {
		fmt.Printf("%s: all manifests valid\n", dir)
		return 0, nil
	}
	for _, finding := range findings {
		fmt.Println(finding.String())
	}
	return len(findings), nil
}

// manifestDir resolves the workflow directory: the --dir flag when
// given, otherwise the configured workflows.dir.
func manifestDir() string {
	if workflowsDir != "" {
		return workflowsDir
	}
	return cfg.Workflows.Dir
}

func init() {
	workflowsCmd.PersistentFlags().StringVar(&workflowsDir, "dir", "", "Workflow manifest directory (default: workflows.dir from config)")
	workflowsListCmd.Flags().BoolVar(&workflowsListJSON, "json", false, "Output as JSON")
	workflowsLintCmd.Flags().BoolVarP(&workflowsWatch, "watch", "w", false, "Re-lint whenever a manifest changes")

	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsLintCmd)
	rootCmd.AddCommand(workflowsCmd)
}
