package scope

import "context"

type scopeKey struct{}

// FromContext returns the nearest enclosing scope that has not terminated,
// or false if there is none. The association is carried on the block
// context returned by Enter and on the context of every child the scope
// spawns, so a child can discover the scope that owns it; once a scope
// terminates, lookups resolve to the next enclosing one.
func FromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	for s != nil && s.terminated() {
		s = s.outer
	}
	if s == nil {
		return nil, false
	}
	return s, true
}

// MustFromContext is FromContext for contexts known to be inside a scope;
// it panics when there is none.
func MustFromContext(ctx context.Context) *Scope {
	s, ok := FromContext(ctx)
	if !ok {
		panic("taskscope: context carries no enclosing scope")
	}
	return s
}
