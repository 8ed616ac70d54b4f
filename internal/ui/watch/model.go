// Package watch contains the live console model for the watch command.
// It consumes decoded frames from a control plane console subscription
// and renders colonies, crabs, missions, runs, and an event feed.
package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/crabitat/crabitat/internal/client"
	"github.com/crabitat/crabitat/internal/domain"
	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/events"
	"github.com/crabitat/crabitat/internal/presentation"
)

const (
	minWidth  = 80
	minHeight = 24

	// feedCap bounds the in-memory event feed.
	feedCap = 200
)

// frameMsg delivers one console frame to the update loop.
type frameMsg struct {
	frame client.Frame
}

// streamClosedMsg signals that the console stream ended.
type streamClosedMsg struct{}

// feedEntry is one rendered line of the event feed.
type feedEntry struct {
	atMS int64
	kind events.Type
	text string
}

// Config holds the inputs for the console model.
type Config struct {
	// Frames is the decoded console stream, usually Console.Frames().
	Frames <-chan client.Frame
	// Server is the control plane address, shown while connecting.
	Server string
	// Logs tails this process's own debug log when logging is enabled.
	// Nil hides the log pane's live feed.
	Logs *log.LogListener
}

// Model is the live console state.
type Model struct {
	frames <-chan client.Frame
	server string

	width  int
	height int

	// ready flips on the first snapshot frame.
	ready     bool
	connected bool
	spinner   spinner.Model

	colonies []domain.Colony
	crabs    []domain.Crab
	missions []domain.Mission
	tasks    map[string]domain.Task
	runs     []domain.Run

	feed       []feedEntry
	eventCount int

	// The l key swaps the event feed for a tail of the debug log.
	logs     *log.LogListener
	logLines []string
	showLogs bool
}

// New creates a console model reading from cfg.Frames.
func New(cfg Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(spinnerColor)

	return Model{
		frames:    cfg.Frames,
		server:    cfg.Server,
		connected: true,
		spinner:   s,
		tasks:     make(map[string]domain.Task),
		logs:      cfg.Logs,
		logLines:  log.Recent(feedCap),
	}
}

// waitForFrame returns a command that delivers the next console frame.
func waitForFrame(frames <-chan client.Frame) tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-frames
		if !ok {
			return streamClosedMsg{}
		}
		return frameMsg{frame: frame}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, waitForFrame(m.frames)}
	if m.logs != nil {
		cmds = append(cmds, m.logs.Listen())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "l":
			m.showLogs = !m.showLogs
		}
		return m, nil

	case spinner.TickMsg:
		// The spinner only runs while waiting for the first snapshot.
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case frameMsg:
		m = m.apply(msg.frame)
		return m, waitForFrame(m.frames)

	case streamClosedMsg:
		log.Warn(log.CatWS, "Console stream closed")
		m.connected = false
		m = m.pushFeed(feedEntry{
			atMS: time.Now().UnixMilli(),
			text: "console stream closed",
		})
		return m, nil

	case log.LogEvent:
		m.logLines = append(m.logLines, strings.TrimSuffix(msg.Payload, "\n"))
		if len(m.logLines) > feedCap {
			m.logLines = m.logLines[len(m.logLines)-feedCap:]
		}
		if m.logs != nil {
			return m, m.logs.Listen()
		}
		return m, nil
	}

	return m, nil
}

// apply folds one console frame into the model state.
func (m Model) apply(frame client.Frame) Model {
	switch {
	case frame.Snapshot != nil:
		snap := frame.Snapshot
		if !m.ready {
			log.Info(log.CatWS, "Console snapshot received",
				"colonies", len(snap.Colonies), "crabs", len(snap.Crabs), "missions", len(snap.Missions))
		}
		m.ready = true
		m.connected = true
		m.colonies = snap.Colonies
		m.crabs = snap.Crabs
		m.missions = snap.Missions
		m.runs = snap.Runs
		m.tasks = make(map[string]domain.Task, len(snap.Tasks))
		for _, t := range snap.Tasks {
			m.tasks[t.TaskID] = t
		}

	case frame.Colony != nil:
		m.colonies = upsertColony(m.colonies, *frame.Colony)
	case frame.Crab != nil:
		m.crabs = upsertCrab(m.crabs, *frame.Crab)
	case frame.Mission != nil:
		m.missions = upsertMission(m.missions, *frame.Mission)
	case frame.Task != nil:
		m.tasks[frame.Task.TaskID] = *frame.Task
	case frame.Run != nil:
		m.runs = upsertRun(m.runs, *frame.Run)
	}

	return m.pushFeed(feedEntry{
		atMS: time.Now().UnixMilli(),
		kind: frame.Type,
		text: m.describeFrame(frame),
	})
}

func (m Model) pushFeed(entry feedEntry) Model {
	m.eventCount++
	m.feed = append(m.feed, entry)
	if len(m.feed) > feedCap {
		m.feed = m.feed[len(m.feed)-feedCap:]
	}
	return m
}

// describeFrame builds the one-line feed summary for a frame.
func (m Model) describeFrame(frame client.Frame) string {
	switch {
	case frame.Snapshot != nil:
		return fmt.Sprintf("snapshot: %d colonies, %d crabs, %d missions",
			len(frame.Snapshot.Colonies), len(frame.Snapshot.Crabs), len(frame.Snapshot.Missions))
	case frame.Colony != nil:
		return fmt.Sprintf("colony %s created", frame.Colony.Name)
	case frame.Crab != nil:
		return fmt.Sprintf("crab %s %s", frame.Crab.Name, frame.Crab.State)
	case frame.Mission != nil:
		mi := frame.Mission
		text := fmt.Sprintf("mission %s %s", presentation.Short(mi.MissionID), mi.Status)
		if frame.Type == events.TypeMissionCreated {
			text += ": " + presentation.Truncate(mi.Prompt, 50)
		}
		if mi.PRNumber != nil {
			text += fmt.Sprintf(" (pr #%d)", *mi.PRNumber)
		}
		return text
	case frame.Task != nil:
		return fmt.Sprintf("task %s %s", presentation.Truncate(frame.Task.Title, 40), frame.Task.Status)
	case frame.Run != nil:
		r := frame.Run
		switch frame.Type {
		case events.TypeRunCreated:
			return fmt.Sprintf("run %s started by %s", presentation.Short(r.RunID), r.CrabID)
		case events.TypeRunCompleted:
			text := fmt.Sprintf("run %s %s", presentation.Short(r.RunID), r.Status)
			if r.Summary != nil && *r.Summary != "" {
				text += ": " + presentation.Truncate(*r.Summary, 50)
			}
			return text
		default:
			if r.ProgressMessage != "" {
				return fmt.Sprintf("run %s %s: %s", presentation.Short(r.RunID), r.Status,
					presentation.Truncate(r.ProgressMessage, 50))
			}
			return fmt.Sprintf("run %s %s", presentation.Short(r.RunID), r.Status)
		}
	}
	return string(frame.Type)
}

func upsertColony(list []domain.Colony, c domain.Colony) []domain.Colony {
	for i := range list {
		if list[i].ColonyID == c.ColonyID {
			list[i] = c
			return list
		}
	}
	return append(list, c)
}

func upsertCrab(list []domain.Crab, c domain.Crab) []domain.Crab {
	for i := range list {
		if list[i].CrabID == c.CrabID {
			list[i] = c
			return list
		}
	}
	return append(list, c)
}

func upsertMission(list []domain.Mission, mi domain.Mission) []domain.Mission {
	for i := range list {
		if list[i].MissionID == mi.MissionID {
			list[i] = mi
			return list
		}
	}
	return append(list, mi)
}

func upsertRun(list []domain.Run, r domain.Run) []domain.Run {
	for i := range list {
		if list[i].RunID == r.RunID {
			list[i] = r
			return list
		}
	}
	return append(list, r)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if !m.ready {
		return m.waitingView()
	}
	if m.width < minWidth || m.height < minHeight {
		return mutedStyle.Render(fmt.Sprintf("\n  terminal too small (%dx%d minimum)", minWidth, minHeight))
	}

	header := m.headerView()

	body := m.height - 1
	topH := clamp(body*30/100, 6, 10)
	missionsH := clamp(body*30/100, 6, 12)
	runsH := clamp(body*25/100, 5, 10)
	feedH := max(body-topH-missionsH-runsH, 3)

	coloniesW := m.width * 2 / 5
	crabsW := m.width - coloniesW

	topRow := lipgloss.JoinHorizontal(lipgloss.Top,
		m.coloniesPane(coloniesW, topH),
		m.crabsPane(crabsW, topH),
	)

	bottom := m.feedPane(m.width, feedH)
	if m.showLogs {
		bottom = m.logsPane(m.width, feedH)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		topRow,
		m.missionsPane(m.width, missionsH),
		m.runsPane(m.width, runsH),
		bottom,
	)
}

// waitingView renders the connect state before the first snapshot.
func (m Model) waitingView() string {
	if !m.connected {
		return errorStyle.Render("\n  console stream closed before a snapshot arrived.\n") +
			mutedStyle.Render(fmt.Sprintf("  Is the control plane running at %s? Press q to quit.", m.server))
	}
	return fmt.Sprintf("\n  %s connecting to %s, waiting for snapshot...",
		m.spinner.View(), m.server)
}

func (m Model) headerView() string {
	status := successStyle.Render("● live")
	if !m.connected {
		status = errorStyle.Render("○ disconnected")
	}

	busy := 0
	for _, c := range m.crabs {
		if c.State == domain.CrabBusy {
			busy++
		}
	}
	running := 0
	var tokens int64
	for _, r := range m.runs {
		if r.Status == domain.RunRunning {
			running++
		}
		tokens += r.Metrics.TotalTokens
	}

	summary := mutedStyle.Render(fmt.Sprintf("crabs %d (%d busy) | runs %d running | tokens %s | events %d",
		len(m.crabs), busy, running, presentation.FormatTokens(tokens), m.eventCount))

	line := fmt.Sprintf(" %s %s  %s", titleStyle.Render("crabitat"), status, summary)
	return truncateCell(line, m.width)
}

func (m Model) coloniesPane(width, height int) string {
	cols := []column{
		{header: "ID", width: 8, render: func(row any, _ int) string {
			return mutedStyle.Render(presentation.Short(row.(domain.Colony).ColonyID))
		}},
		{header: "NAME", minWidth: 8, render: func(row any, _ int) string {
			return row.(domain.Colony).Name
		}},
		{header: "REPO", minWidth: 10, hideBelow: 40, render: func(row any, _ int) string {
			c := row.(domain.Colony)
			if c.Repo == nil || *c.Repo == "" {
				return mutedStyle.Render("-")
			}
			return *c.Repo
		}},
	}

	rows := make([]any, len(m.colonies))
	for i, c := range m.colonies {
		rows[i] = c
	}

	title := fmt.Sprintf("COLONIES (%d)", len(m.colonies))
	return borderedPane(title, renderTable(cols, rows, width-2, height-2, "no colonies"), width, height)
}

func (m Model) crabsPane(width, height int) string {
	now := time.Now().UnixMilli()
	cols := []column{
		{header: "NAME", minWidth: 8, render: func(row any, _ int) string {
			return row.(domain.Crab).Name
		}},
		{header: "ROLE", width: 8, render: func(row any, _ int) string {
			return row.(domain.Crab).Role
		}},
		{header: "STATE", width: 8, render: func(row any, _ int) string {
			c := row.(domain.Crab)
			return crabStateStyle(c.State).Render(string(c.State))
		}},
		{header: "TASK", width: 8, hideBelow: 52, render: func(row any, _ int) string {
			c := row.(domain.Crab)
			if c.CurrentTaskID == nil {
				return mutedStyle.Render("-")
			}
			return presentation.Short(*c.CurrentTaskID)
		}},
		{header: "SEEN", width: 8, render: func(row any, _ int) string {
			return mutedStyle.Render(presentation.FormatAge(now, row.(domain.Crab).UpdatedAtMS))
		}},
	}

	rows := make([]any, len(m.crabs))
	for i, c := range m.crabs {
		rows[i] = c
	}

	title := fmt.Sprintf("CRABS (%d)", len(m.crabs))
	return borderedPane(title, renderTable(cols, rows, width-2, height-2, "no crabs registered"), width, height)
}

func (m Model) missionsPane(width, height int) string {
	now := time.Now().UnixMilli()
	cols := []column{
		{header: "ID", width: 8, render: func(row any, _ int) string {
			return mutedStyle.Render(presentation.Short(row.(domain.Mission).MissionID))
		}},
		{header: "STATUS", width: 9, render: func(row any, _ int) string {
			s := string(row.(domain.Mission).Status)
			return statusStyle(s).Render(s)
		}},
		{header: "WORKFLOW", width: 12, hideBelow: 90, render: func(row any, _ int) string {
			mi := row.(domain.Mission)
			if mi.WorkflowName == nil {
				return mutedStyle.Render("-")
			}
			return *mi.WorkflowName
		}},
		{header: "QUEUE", width: 5, render: func(row any, _ int) string {
			mi := row.(domain.Mission)
			if mi.QueuePosition == nil {
				return mutedStyle.Render("-")
			}
			return fmt.Sprintf("%d", *mi.QueuePosition)
		}},
		{header: "ISSUE", width: 5, hideBelow: 100, render: func(row any, _ int) string {
			mi := row.(domain.Mission)
			if mi.IssueNumber == nil {
				return mutedStyle.Render("-")
			}
			return fmt.Sprintf("#%d", *mi.IssueNumber)
		}},
		{header: "PR", width: 5, hideBelow: 100, render: func(row any, _ int) string {
			mi := row.(domain.Mission)
			if mi.PRNumber == nil {
				return mutedStyle.Render("-")
			}
			return fmt.Sprintf("#%d", *mi.PRNumber)
		}},
		{header: "PROMPT", minWidth: 16, render: func(row any, _ int) string {
			return row.(domain.Mission).Prompt
		}},
		{header: "AGE", width: 8, hideBelow: 96, render: func(row any, _ int) string {
			return mutedStyle.Render(presentation.FormatAge(now, row.(domain.Mission).CreatedAtMS))
		}},
	}

	missions := make([]domain.Mission, len(m.missions))
	copy(missions, m.missions)
	sort.Slice(missions, func(i, j int) bool {
		return missions[i].CreatedAtMS > missions[j].CreatedAtMS
	})

	rows := make([]any, len(missions))
	for i, mi := range missions {
		rows[i] = mi
	}

	title := fmt.Sprintf("MISSIONS (%d)", len(m.missions))
	return borderedPane(title, renderTable(cols, rows, width-2, height-2, "no missions yet"), width, height)
}

func (m Model) runsPane(width, height int) string {
	now := time.Now().UnixMilli()
	cols := []column{
		{header: "ID", width: 8, render: func(row any, _ int) string {
			return mutedStyle.Render(presentation.Short(row.(domain.Run).RunID))
		}},
		{header: "STATUS", width: 9, render: func(row any, _ int) string {
			s := string(row.(domain.Run).Status)
			return statusStyle(s).Render(s)
		}},
		{header: "CRAB", width: 10, render: func(row any, _ int) string {
			return row.(domain.Run).CrabID
		}},
		{header: "TASK", minWidth: 10, render: func(row any, _ int) string {
			r := row.(domain.Run)
			if t, ok := m.tasks[r.TaskID]; ok {
				return t.Title
			}
			return mutedStyle.Render(presentation.Short(r.TaskID))
		}},
		{header: "PROGRESS", minWidth: 14, render: func(row any, _ int) string {
			r := row.(domain.Run)
			if r.Summary != nil && *r.Summary != "" {
				return *r.Summary
			}
			if r.ProgressMessage == "" {
				return mutedStyle.Render("-")
			}
			return r.ProgressMessage
		}},
		{header: "TOKENS", width: 7, render: func(row any, _ int) string {
			return presentation.FormatTokens(row.(domain.Run).Metrics.TotalTokens)
		}},
		{header: "AGE", width: 8, hideBelow: 100, render: func(row any, _ int) string {
			return mutedStyle.Render(presentation.FormatAge(now, row.(domain.Run).StartedAtMS))
		}},
	}

	runs := make([]domain.Run, len(m.runs))
	copy(runs, m.runs)
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAtMS > runs[j].StartedAtMS
	})

	rows := make([]any, len(runs))
	for i, r := range runs {
		rows[i] = r
	}

	title := fmt.Sprintf("RUNS (%d)", len(m.runs))
	return borderedPane(title, renderTable(cols, rows, width-2, height-2, "no runs yet"), width, height)
}

func (m Model) feedPane(width, height int) string {
	inner := height - 2
	entries := m.feed
	if len(entries) > inner {
		entries = entries[len(entries)-inner:]
	}

	var lines []string
	for _, e := range entries {
		line := fmt.Sprintf("%s %s %s",
			mutedStyle.Render(presentation.FormatClock(e.atMS)),
			feedKindStyle(e.kind).Render(padKind(e.kind)),
			e.text)
		lines = append(lines, truncateCell(line, width-2))
	}
	for len(lines) < inner {
		lines = append(lines, "")
	}

	title := fmt.Sprintf("EVENTS (%d)", m.eventCount)
	return borderedPane(title, strings.Join(lines, "\n"), width, height)
}

// logsPane tails this process's debug log in place of the event feed.
func (m Model) logsPane(width, height int) string {
	inner := height - 2
	entries := m.logLines
	if len(entries) > inner {
		entries = entries[len(entries)-inner:]
	}

	var lines []string
	if len(entries) == 0 {
		lines = append(lines, mutedStyle.Render("  no log lines (run with --debug to enable logging)"))
	}
	for _, entry := range entries {
		lines = append(lines, truncateCell(logLineStyle(entry).Render(entry), width-2))
	}
	for len(lines) < inner {
		lines = append(lines, "")
	}

	return borderedPane("LOGS", strings.Join(lines, "\n"), width, height)
}

// logLineStyle colors a formatted log line by its level tag.
func logLineStyle(entry string) lipgloss.Style {
	switch {
	case strings.Contains(entry, "[ERROR]"):
		return errorStyle
	case strings.Contains(entry, "[WARN]"):
		return warningStyle
	case strings.Contains(entry, "[DEBUG]"):
		return mutedStyle
	default:
		return lipgloss.NewStyle().Foreground(textPrimaryColor)
	}
}

// padKind fits event types into a fixed-width feed column.
func padKind(t events.Type) string {
	const kindWidth = 15
	s := string(t)
	if s == "" {
		s = "stream"
	}
	if len(s) > kindWidth {
		return s[:kindWidth]
	}
	return s + strings.Repeat(" ", kindWidth-len(s))
}

func feedKindStyle(t events.Type) lipgloss.Style {
	switch t {
	case events.TypeRunCompleted:
		return successStyle
	case events.TypeMissionCreated, events.TypeRunCreated, events.TypeColonyCreated,
		events.TypeTaskCreated:
		return activeStyle
	default:
		return mutedStyle
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
