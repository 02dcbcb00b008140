package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/haltline/haltd/types"
)

// stateResolver implements matcher.Resolver by remembering the most
// recently ingested attribute for every (subject kind, field) pair,
// updated on every event the normaliser hands to the matcher. This is the
// daemon's stand-in for a live state store (a real deployment would query
// the UPS poller or inventory directly); it is deliberately narrow since
// conditions only ever need the latest known value, never history.
type stateResolver struct {
	mu     sync.RWMutex
	values map[string]string
}

func newStateResolver() *stateResolver {
	return &stateResolver{values: make(map[string]string)}
}

// Observe records every attribute of ev under its subject kind, plus an
// "equals"-aliased "state" key so ups.state triggers' comparator value is
// directly queryable as a condition (resolver: ups, field: state).
func (r *stateResolver) Observe(ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := ev.Subject.Kind
	for field, v := range ev.Attrs {
		r.values[key(kind, field)] = fmt.Sprintf("%v", v)
	}
	if eq, ok := ev.Attrs["equals"]; ok {
		r.values[key(kind, "state")] = fmt.Sprintf("%v", eq)
	}
}

// Resolve implements matcher.Resolver.
func (r *stateResolver) Resolve(_ context.Context, resolver, field string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[key(resolver, field)]
	if !ok {
		return "", fmt.Errorf("no observed value for resolver %q field %q", resolver, field)
	}
	return v, nil
}

func key(resolver, field string) string {
	return resolver + "." + field
}
