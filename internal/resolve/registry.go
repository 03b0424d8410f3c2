package resolve

import (
	"context"
	"regexp"
	"sort"
	"sync"

	dErrors "docket/pkg/domain-errors"
)

// Resolver turns the value of one reference kind into text.
type Resolver interface {
	Resolve(ctx context.Context, value string, rc *Context) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, value string, rc *Context) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, value string, rc *Context) (string, error) {
	return f(ctx, value, rc)
}

var kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Registry maps reference kinds to resolvers. It is read-mostly: resolvers
// register at startup and every resolution looks them up.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// Register binds kind to r. A kind can be bound once.
func (reg *Registry) Register(kind string, r Resolver) error {
	if !kindPattern.MatchString(kind) {
		return dErrors.Newf(dErrors.CodeValidation, "invalid reference kind %q", kind)
	}
	if r == nil {
		return dErrors.Newf(dErrors.CodeValidation, "resolver for %q is nil", kind)
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.resolvers[kind]; exists {
		return dErrors.Newf(dErrors.CodeConflict, "reference kind %q is already registered", kind)
	}
	reg.resolvers[kind] = r
	return nil
}

// MustRegister is Register for startup wiring, where a clash is a bug.
func (reg *Registry) MustRegister(kind string, r Resolver) {
	if err := reg.Register(kind, r); err != nil {
		panic(err)
	}
}

// Lookup fails with unknown_reference_kind when nothing handles kind.
func (reg *Registry) Lookup(kind string) (Resolver, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.resolvers[kind]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnknownReferenceKind, "unknown reference kind %q", kind)
	}
	return r, nil
}

// Kinds lists the registered kinds in order.
func (reg *Registry) Kinds() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	kinds := make([]string, 0, len(reg.resolvers))
	for k := range reg.resolvers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
