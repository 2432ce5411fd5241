package plugin

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/mohammed-shakir/hazard-impact/internal/core/apperr"
)

type Registry struct {
	mu  sync.RWMutex
	fns map[string]Function
}

func NewRegistry() *Registry {
	return &Registry{fns: map[string]Function{}}
}

// Default holds the built-in functions, registered by their packages' init.
var Default = NewRegistry()

func Register(f Function) {
	if err := Default.Add(f); err != nil {
		panic(err)
	}
}

func (r *Registry) Add(f Function) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := f.Name()
	if name == "" {
		return fmt.Errorf("impact function has no name")
	}
	if _, dup := r.fns[name]; dup {
		return fmt.Errorf("impact function %q already registered", name)
	}
	r.fns[name] = f
	return nil
}

// Lookup returns the named function or a validation error.
func (r *Registry) Lookup(name string) (Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.fns[name]; ok {
		return f, nil
	}
	return nil, apperr.Validation("unknown impact function %q", name)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.fns))
	for n := range r.fns {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Admissible returns, sorted by name, the functions whose requirements are met
// by layers.
func (r *Registry) Admissible(layers ...Descriptor) []Function {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Function
	for _, f := range r.fns {
		if Satisfied(f.Requirements(), layers) {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b Function) int { return cmp.Compare(a.Name(), b.Name()) })
	return out
}
