// Package registry implements the process-wide, two-level
// backend->kernel_name->factory map described by the Registry component
// of the kernel dispatch specification: populated once at process start,
// read-mostly thereafter, concurrent lookup under a read lock and
// insertion under an exclusive one.
package registry

import (
	"sync"

	"github.com/notargets/kerneldispatch/argument"
	"github.com/notargets/kerneldispatch/kernelerrors"
	"github.com/notargets/kerneldispatch/kernelspec"
)

// Factory returns a fresh KernelSpec bound to ctx's compiled entry point.
// Each call may produce a distinct Spec (e.g. one per device context), so
// registries never cache the returned Spec themselves.
type Factory func(ctx argument.Context) (*kernelspec.Spec, error)

type key struct {
	backend string
	name    string
}

// Registry is the process-wide kernel factory table.
type Registry struct {
	mu    sync.RWMutex
	byKey map[key]Factory
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byKey: make(map[key]Factory)}
}

// Register inserts factory under (backend, name). A second registration
// for the same pair fails with AlreadyRegistered and leaves the first
// registration intact.
func (r *Registry) Register(backend, name string, factory Factory) error {
	k := key{backend: backend, name: name}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[k]; exists {
		return &kernelerrors.AlreadyRegistered{Backend: backend, Name: name}
	}
	r.byKey[k] = factory
	return nil
}

// MustRegister is Register but panics on error, for package-level
// registration blocks where a duplicate name indicates a programming
// mistake rather than a runtime condition.
func (r *Registry) MustRegister(backend, name string, factory Factory) {
	if err := r.Register(backend, name, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered for (backend, name), if any.
func (r *Registry) Lookup(backend, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byKey[key{backend: backend, name: name}]
	return f, ok
}

// Resolve looks up (backend, name) and immediately invokes the factory
// against ctx, the common case of wanting a ready-to-bind Spec.
func (r *Registry) Resolve(backend, name string, ctx argument.Context) (*kernelspec.Spec, error) {
	factory, ok := r.Lookup(backend, name)
	if !ok {
		return nil, &kernelerrors.UnknownIdentifier{Context: "registry lookup for backend " + backend, Name: name}
	}
	return factory(ctx)
}

// Names returns every kernel name registered for backend, for
// diagnostics and tests; order is unspecified.
func (r *Registry) Names(backend string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for k := range r.byKey {
		if k.backend == backend {
			names = append(names, k.name)
		}
	}
	return names
}

// Default is the process-wide registry back-ends register their kernels
// into at init time and host applications resolve kernels from.
var Default = New()
