// Package workflow loads and validates the step manifests that describe
// how a mission expands into tasks. Manifests are YAML files naming a DAG
// of steps; each step references a prompt template file whose contents are
// resolved when the registry is built.
package workflow

import (
	"fmt"
	"strings"
)

// Source indicates where a workflow manifest originated from.
type Source int

const (
	// SourceBuiltIn indicates a workflow bundled with the binary.
	SourceBuiltIn Source = iota
	// SourceUser indicates a workflow from the user's workflow directory.
	SourceUser
)

// String returns a human-readable representation of the Source.
func (s Source) String() string {
	switch s {
	case SourceBuiltIn:
		return "built-in"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// Step is a single unit of a workflow's DAG.
type Step struct {
	ID         string   `yaml:"id"`
	Role       string   `yaml:"role"`
	PromptFile string   `yaml:"prompt_file"`
	DependsOn  []string `yaml:"depends_on"`
	Condition  string   `yaml:"condition"`
	MaxRetries int      `yaml:"max_retries"`

	// PromptTemplate holds the resolved contents of PromptFile, filled in
	// when the registry is built.
	PromptTemplate string `yaml:"-"`
}

// Manifest is one workflow: a named DAG of steps.
type Manifest struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     int    `yaml:"version"`
	Steps       []Step `yaml:"steps"`

	// Source and FilePath are filled by the loader; FilePath is empty for
	// built-in manifests.
	Source   Source `yaml:"-"`
	FilePath string `yaml:"-"`
}

// Validate checks the manifest's internal consistency: required fields,
// unique step ids, resolvable dependency references, and an acyclic DAG.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(m.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", m.Name)
	}

	ids := make(map[string]bool, len(m.Steps))
	for _, s := range m.Steps {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("workflow %q has a step with no id", m.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("workflow %q has duplicate step id %q", m.Name, s.ID)
		}
		ids[s.ID] = true
		if strings.TrimSpace(s.Role) == "" {
			return fmt.Errorf("step %q has no role", s.ID)
		}
		if strings.TrimSpace(s.PromptFile) == "" {
			return fmt.Errorf("step %q has no prompt_file", s.ID)
		}
		if s.MaxRetries < 0 {
			return fmt.Errorf("step %q has negative max_retries", s.ID)
		}
	}

	for _, s := range m.Steps {
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("step %q depends on unknown step %q", s.ID, dep)
			}
		}
	}

	if at := findCycle(m.Steps); at != "" {
		return fmt.Errorf("workflow %q has a dependency cycle through step %q", m.Name, at)
	}
	return nil
}

// Step returns the step with the given id, if present.
func (m *Manifest) Step(id string) (Step, bool) {
	for _, s := range m.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// findCycle runs a three-color DFS over the dependency edges and returns
// the id of a step on a cycle, or "" when the DAG is acyclic.
func findCycle(steps []Step) string {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.ID] = s.DependsOn
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if at := visit(dep); at != "" {
					return at
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if at := visit(s.ID); at != "" {
				return at
			}
		}
	}
	return ""
}

// RenderPrompt fills the placeholders a step prompt template may carry.
func RenderPrompt(template, missionPrompt, context, worktreePath string) string {
	out := strings.ReplaceAll(template, "{{mission_prompt}}", missionPrompt)
	out = strings.ReplaceAll(out, "{{context}}", context)
	out = strings.ReplaceAll(out, "{{worktree_path}}", worktreePath)
	return out
}
