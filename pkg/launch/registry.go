package launch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Registry holds the discovered component manifests
type Registry struct {
	mu         sync.RWMutex
	components map[string]*Manifest
	directory  string
	log        *slog.Logger
}

// NewRegistry creates a registry scanning the given components directory
func NewRegistry(directory string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		components: make(map[string]*Manifest),
		directory:  directory,
		log:        log,
	}
}

// Discover scans the components directory and loads all manifests.
// Each component lives in its own subdirectory with a component.yaml.
func (r *Registry) Discover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("discovering components", "dir", r.directory)

	if _, err := os.Stat(r.directory); err != nil {
		return fmt.Errorf("components directory not found: %s: %w", r.directory, err)
	}

	entries, err := os.ReadDir(r.directory)
	if err != nil {
		return fmt.Errorf("read components directory: %w", err)
	}

	discovered := 0
	failed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		manifestPath := filepath.Join(r.directory, entry.Name(), "component.yaml")

		if _, err := os.Stat(manifestPath); err != nil {
			r.log.Debug("no component.yaml, skipping", "dir", entry.Name())
			continue
		}

		manifest, err := LoadManifest(manifestPath)
		if err != nil {
			r.log.Warn("failed to load manifest", "dir", entry.Name(), "err", err)
			failed++
			continue
		}

		r.components[manifest.Name] = manifest
		discovered++

		r.log.Info("discovered component",
			"name", manifest.Name, "role", manifest.Role, "deps", manifest.DependsOn)
	}

	r.log.Info("component discovery complete", "discovered", discovered, "failed", failed)

	if discovered == 0 {
		return fmt.Errorf("no components discovered in directory: %s", r.directory)
	}

	return nil
}

// Get returns a manifest by component name
func (r *Registry) Get(name string) (*Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	manifest, ok := r.components[name]
	return manifest, ok
}

// List returns all registered manifests
func (r *Registry) List() []*Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	manifests := make([]*Manifest, 0, len(r.components))
	for _, m := range r.components {
		manifests = append(manifests, m)
	}

	return manifests
}

// Count returns the number of registered components
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.components)
}

// Reload clears the registry and re-discovers all components
func (r *Registry) Reload() error {
	r.mu.Lock()
	r.components = make(map[string]*Manifest)
	r.mu.Unlock()

	return r.Discover()
}

// Order returns the components in launch order: dependencies before
// dependents, backends before frontends when otherwise unordered.
// Unknown dependencies and cycles are errors.
func (r *Registry) Order() ([]*Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Frontends implicitly depend on every backend, matching the
	// original launch sequence even when depends_on is omitted.
	deps := make(map[string][]string, len(r.components))
	for name, m := range r.components {
		seen := make(map[string]bool)
		for _, dep := range m.DependsOn {
			if _, ok := r.components[dep]; !ok {
				return nil, ErrUnknownDependency(name, dep)
			}
			if !seen[dep] {
				deps[name] = append(deps[name], dep)
				seen[dep] = true
			}
		}
		if m.Role == RoleFrontend {
			for depName, depManifest := range r.components {
				if depManifest.Role == RoleBackend && !seen[depName] {
					deps[name] = append(deps[name], depName)
					seen[depName] = true
				}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)

	marks := make(map[string]int, len(r.components))
	ordered := make([]*Manifest, 0, len(r.components))

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case visited:
			return nil
		case visiting:
			return ErrDependencyCycle(name)
		}

		marks[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[name] = visited

		ordered = append(ordered, r.components[name])
		return nil
	}

	// Deterministic iteration: sort names before visiting
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}
