package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Finding is one problem discovered while linting a manifest directory.
type Finding struct {
	File    string
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.File, f.Message)
}

// Lint parses and validates every manifest in dir without touching the
// running registry, reporting all problems instead of stopping at the
// first. Prompt files are checked for existence relative to dir.
func Lint(dir string) ([]Finding, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading workflow directory: %w", err)
	}

	var findings []Finding
	add := func(file, format string, args ...any) {
		findings = append(findings, Finding{File: file, Message: fmt.Sprintf(format, args...)})
	}
	namesSeen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !isManifestFile(entry.Name()) {
			continue
		}
		file := entry.Name()
		raw, err := os.ReadFile(filepath.Join(dir, file)) //nolint:gosec // G304: path comes from the linted directory
		if err != nil {
			add(file, "unreadable: %v", err)
			continue
		}

		var m Manifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			add(file, "parse error: %v", err)
			continue
		}
		if err := m.Validate(); err != nil {
			add(file, "%v", err)
		}
		if m.Name != "" {
			if prev, dup := namesSeen[m.Name]; dup {
				add(file, "workflow name %q already defined in %s", m.Name, prev)
			} else {
				namesSeen[m.Name] = file
			}
		}

		for _, s := range m.Steps {
			if s.PromptFile == "" {
				continue
			}
			if !filepath.IsLocal(s.PromptFile) {
				add(file, "step %q prompt %q escapes the workflow directory", s.ID, s.PromptFile)
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, s.PromptFile)); err != nil {
				add(file, "step %q prompt %q: %v", s.ID, s.PromptFile, err)
			}
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		return findings[i].Message < findings[j].Message
	})
	return findings, nil
}
