package workflow

import (
	"sort"
	"sync"

	"github.com/smartspec/smartspec/pkg/apperr"
)

// Registry holds the set of discovered workflow descriptors, keyed by
// unique name, validated at registration time.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds a descriptor, rejecting duplicates and malformed entries.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return apperr.Validation("workflow %q is already registered", d.Name)
	}
	r.byName[d.Name] = d
	return nil
}

// Unregister removes a descriptor by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

// Get returns the descriptor for name, if registered.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// List returns all registered descriptors, sorted by name for
// deterministic output.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByCategory returns all descriptors in the given category, sorted by name.
func (r *Registry) ByCategory(c Category) []Descriptor {
	var out []Descriptor
	for _, d := range r.List() {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// Count returns the number of registered descriptors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Names returns the registered workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FindByTrigger returns descriptors whose trigger patterns match text,
// using real regular expressions rather than a substring stand-in.
func (r *Registry) FindByTrigger(text string) []Descriptor {
	var out []Descriptor
	for _, d := range r.List() {
		for _, t := range d.Triggers {
			if t.MatchString(text) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
