package workflow

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crabitat/crabitat/internal/log"
)

// Registry is the immutable index of loaded workflows. Built-in
// manifests load first; user manifests sharing a name override them.
// After LoadRegistry returns the registry is never mutated, so it is
// safe for concurrent readers without locking.
type Registry struct {
	byName map[string]*Manifest
	names  []string
}

// LoadRegistry builds the registry from the embedded built-ins plus the
// user manifest directory. A missing user directory is not an error.
// Manifests that fail to parse or validate are skipped with a warning;
// the registry still loads.
func LoadRegistry(userDir string) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Manifest)}

	builtin, err := BuiltinFS()
	if err != nil {
		return nil, fmt.Errorf("opening builtin workflows: %w", err)
	}
	r.loadBuiltins(builtin)

	if userDir != "" {
		if err := r.loadUserDir(userDir); err != nil {
			return nil, err
		}
	}

	r.names = make([]string, 0, len(r.byName))
	for name := range r.byName {
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	log.Info(log.CatWorkflow, "workflow registry loaded", "workflows", len(r.names))
	return r, nil
}

// Get returns the manifest registered under name.
func (r *Registry) Get(name string) (*Manifest, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Names returns the sorted workflow names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) loadBuiltins(fsys fs.FS) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		log.ErrorErr(log.CatWorkflow, "reading builtin workflows", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isManifestFile(entry.Name()) {
			continue
		}
		raw, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			log.ErrorErr(log.CatWorkflow, "reading builtin manifest", err, "file", entry.Name())
			continue
		}
		m, err := parseManifest(raw, SourceBuiltIn, "")
		if err != nil {
			log.Warn(log.CatWorkflow, "skipping builtin manifest", "file", entry.Name(), "error", err)
			continue
		}
		if err := resolvePrompts(m, func(rel string) ([]byte, error) {
			if !fs.ValidPath(rel) {
				return nil, fmt.Errorf("prompt path %q escapes the workflow tree", rel)
			}
			return fs.ReadFile(fsys, path.Clean(rel))
		}); err != nil {
			log.Warn(log.CatWorkflow, "skipping builtin manifest", "file", entry.Name(), "error", err)
			continue
		}
		r.byName[m.Name] = m
	}
}

func (r *Registry) loadUserDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// No user workflows, built-ins only.
			return nil
		}
		return fmt.Errorf("checking workflow directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workflow path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading workflow directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isManifestFile(entry.Name()) {
			continue
		}
		filePath := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the configured workflow directory
		if err != nil {
			log.Warn(log.CatWorkflow, "skipping unreadable manifest", "file", filePath, "error", err)
			continue
		}
		m, err := parseManifest(raw, SourceUser, filePath)
		if err != nil {
			log.Warn(log.CatWorkflow, "skipping manifest", "file", filePath, "error", err)
			continue
		}
		if err := resolvePrompts(m, func(rel string) ([]byte, error) {
			if !filepath.IsLocal(rel) {
				return nil, fmt.Errorf("prompt path %q escapes the workflow directory", rel)
			}
			return os.ReadFile(filepath.Join(dir, rel)) //nolint:gosec // G304: rel is confined to the workflow directory
		}); err != nil {
			log.Warn(log.CatWorkflow, "skipping manifest", "file", filePath, "error", err)
			continue
		}
		if prev, ok := r.byName[m.Name]; ok && prev.Source == SourceBuiltIn {
			log.Info(log.CatWorkflow, "user workflow overrides built-in", "name", m.Name)
		}
		r.byName[m.Name] = m
	}
	return nil
}

func isManifestFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// parseManifest decodes and validates one manifest file.
func parseManifest(raw []byte, source Source, filePath string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	m.Source = source
	m.FilePath = filePath
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// resolvePrompts loads every step's prompt template through read so the
// registry never touches the filesystem after startup.
func resolvePrompts(m *Manifest, read func(rel string) ([]byte, error)) error {
	for i := range m.Steps {
		raw, err := read(m.Steps[i].PromptFile)
		if err != nil {
			return fmt.Errorf("step %q prompt %q: %w", m.Steps[i].ID, m.Steps[i].PromptFile, err)
		}
		m.Steps[i].PromptTemplate = string(raw)
	}
	return nil
}
