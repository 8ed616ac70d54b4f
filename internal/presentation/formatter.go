// Package presentation renders control plane state for the CLI: indented
// JSON for scripting, tabwriter tables for humans.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/orchestration/controlplane"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	json   bool
}

// NewFormatter creates a new formatter. With asJSON set, every method
// emits indented JSON instead of tables.
func NewFormatter(writer io.Writer, asJSON bool) *Formatter {
	return &Formatter{
		writer: writer,
		json:   asJSON,
	}
}

// JSON writes any value as indented JSON.
func (f *Formatter) JSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Snapshot renders the full status snapshot: a summary line followed by
// colony, crab, mission, and active-run tables.
func (f *Formatter) Snapshot(snapshot domain.StatusSnapshot) error {
	if f.json {
		return f.JSON(snapshot)
	}

	s := snapshot.Summary
	fmt.Fprintf(f.writer, "crabitat status at %s\n", FormatClock(snapshot.GeneratedAtMS))
	fmt.Fprintf(f.writer, "crabs %d (%d busy) | tasks running %d | runs running %d, completed %d, failed %d | tokens %s\n",
		s.TotalCrabs, s.BusyCrabs, s.RunningTasks, s.RunningRuns, s.CompletedRuns, s.FailedRuns,
		FormatTokens(s.TotalTokens))
	if s.AvgEndToEndMS != nil {
		fmt.Fprintf(f.writer, "avg end-to-end %s\n", FormatDuration(time.Duration(*s.AvgEndToEndMS)*time.Millisecond))
	}

	now := snapshot.GeneratedAtMS

	missionsByColony := make(map[string]int)
	for _, m := range snapshot.Missions {
		missionsByColony[m.ColonyID]++
	}

	fmt.Fprintf(f.writer, "\nCOLONIES (%d)\n", len(snapshot.Colonies))
	w := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREPO\tMISSIONS")
	for _, c := range snapshot.Colonies {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", Short(c.ColonyID), c.Name, orDash(c.Repo), missionsByColony[c.ColonyID])
	}
	w.Flush()

	fmt.Fprintf(f.writer, "\nCRABS (%d)\n", len(snapshot.Crabs))
	w = tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tSTATE\tTASK\tSEEN")
	for _, c := range snapshot.Crabs {
		task := "-"
		if c.CurrentTaskID != nil {
			task = Short(*c.CurrentTaskID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.CrabID, c.Name, c.Role, c.State, task, FormatAge(now, c.UpdatedAtMS))
	}
	w.Flush()

	if err := f.missionTable(snapshot.Missions, now); err != nil {
		return err
	}

	var active []domain.Run
	for _, r := range snapshot.Runs {
		if r.Status == domain.RunRunning {
			active = append(active, r)
		}
	}
	if len(active) > 0 {
		fmt.Fprintf(f.writer, "\nACTIVE RUNS (%d)\n", len(active))
		w = tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCRAB\tTASK\tPROGRESS\tTOKENS\tSTARTED")
		for _, r := range active {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				Short(r.RunID), r.CrabID, Short(r.TaskID),
				Truncate(r.ProgressMessage, 40), FormatTokens(r.Metrics.TotalTokens),
				FormatAge(now, r.StartedAtMS))
		}
		w.Flush()
	}
	return nil
}

// Missions renders a mission table.
func (f *Formatter) Missions(missions []domain.Mission) error {
	if f.json {
		return f.JSON(missions)
	}
	return f.missionTable(missions, time.Now().UnixMilli())
}

func (f *Formatter) missionTable(missions []domain.Mission, nowMS int64) error {
	fmt.Fprintf(f.writer, "\nMISSIONS (%d)\n", len(missions))
	w := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tWORKFLOW\tQUEUE\tISSUE\tPR\tPROMPT\tAGE")
	for _, m := range missions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			Short(m.MissionID), m.Status, orDash(m.WorkflowName),
			numOrDash(m.QueuePosition), numOrDash(m.IssueNumber), numOrDash(m.PRNumber),
			Truncate(m.Prompt, 40), FormatAge(nowMS, m.CreatedAtMS))
	}
	return w.Flush()
}

// Workflows renders the known workflow names, one per line.
func (f *Formatter) Workflows(names []string) error {
	if f.json {
		return f.JSON(names)
	}
	for _, name := range names {
		fmt.Fprintln(f.writer, name)
	}
	return nil
}

// MissionMarkdown builds the Markdown source for one mission: header,
// prompt, the task rollup, and each run's latest summary. The caller
// decides how to render it.
func MissionMarkdown(detail controlplane.MissionDetail) string {
	var b strings.Builder
	m := detail.Mission

	fmt.Fprintf(&b, "# Mission %s\n\n", Short(m.MissionID))
	fmt.Fprintf(&b, "**Status:** %s", m.Status)
	if m.WorkflowName != nil {
		fmt.Fprintf(&b, " · **Workflow:** %s", *m.WorkflowName)
	}
	if m.IssueNumber != nil {
		fmt.Fprintf(&b, " · **Issue:** #%d", *m.IssueNumber)
	}
	if m.PRNumber != nil {
		fmt.Fprintf(&b, " · **PR:** #%d", *m.PRNumber)
	}
	b.WriteString("\n\n")

	if m.WorktreePath != nil && *m.WorktreePath != "" {
		fmt.Fprintf(&b, "Worktree: `%s`\n\n", *m.WorktreePath)
	}

	b.WriteString("## Prompt\n\n")
	b.WriteString(m.Prompt)
	b.WriteString("\n")

	if len(detail.Tasks) > 0 {
		b.WriteString("\n## Tasks\n\n")
		for _, t := range detail.Tasks {
			step := ""
			if t.StepID != nil {
				step = fmt.Sprintf(" (`%s`)", *t.StepID)
			}
			crab := ""
			if t.AssignedCrabID != nil {
				crab = fmt.Sprintf(" — %s", *t.AssignedCrabID)
			}
			fmt.Fprintf(&b, "- **%s**%s: %s%s\n", t.Title, step, t.Status, crab)
		}
	}

	if len(detail.Runs) > 0 {
		b.WriteString("\n## Runs\n")
		for _, r := range detail.Runs {
			fmt.Fprintf(&b, "\n### %s — %s by %s\n\n", Short(r.RunID), r.Status, r.CrabID)
			if r.Metrics.TotalTokens > 0 {
				fmt.Fprintf(&b, "Tokens: %s\n\n", FormatTokens(r.Metrics.TotalTokens))
			}
			switch {
			case r.Summary != nil && *r.Summary != "":
				b.WriteString(*r.Summary)
				b.WriteString("\n")
			case r.ProgressMessage != "":
				fmt.Fprintf(&b, "_%s_\n", r.ProgressMessage)
			}
		}
	}

	return b.String()
}
