package targetdist

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Builder constructs child engines for composite variants. Children inherit
// the options of the engine being built.
type Builder interface {
	Build(spec Spec) (*Engine, error)
}

// Constructor creates the Node for a validated Spec.
type Constructor func(spec Spec, b Builder) (Node, error)

// Registration describes one distribution type.
type Registration struct {
	Name        string
	Description string
	// Keys lists every keyword the type accepts, policy keywords included.
	Keys []string
	New  Constructor
}

var registry = struct {
	mu    sync.RWMutex
	types map[string]Registration
}{types: make(map[string]Registration)}

// Register adds a distribution type. It panics on an empty or duplicate
// name, so it belongs in init functions.
func Register(r Registration) {
	if r.Name == "" || r.New == nil {
		panic("targetdist: Register needs a name and a constructor")
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, dup := registry.types[r.Name]; dup {
		panic(fmt.Sprintf("targetdist: type %s registered twice", r.Name))
	}
	r.Keys = slices.Clone(r.Keys)
	registry.types[r.Name] = r
}

// Lookup returns the registration for name.
func Lookup(name string) (Registration, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	r, ok := registry.types[name]
	return r, ok
}

// Types returns every registration sorted by name.
func Types() []Registration {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	out := make([]Registration, 0, len(registry.types))
	for _, r := range registry.types {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// withPolicies appends the given engine policy keywords to type keywords.
func withPolicies(keys []string, policies ...string) []string {
	out := slices.Clone(keys)
	for _, p := range policies {
		if !slices.Contains(policyKeys, p) {
			panic("targetdist: unknown policy keyword " + p)
		}
		out = append(out, p)
	}
	return out
}
