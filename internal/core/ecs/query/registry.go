// Package query builds materialized views over an ecs.Store: a query is a
// list of (component id, access) terms, and running it snapshots the
// matching entities' columns into parallel slices a guest can read and,
// for Write terms, mutate and have written back.
package query

import (
	"fmt"
	"sync"

	"hostengine/internal/core/ecs"
)

// maxComponentTypes bounds how many distinct component ids a single
// Registry can track. Guest component ids are arbitrary strings, not a
// fixed enum, so bit positions are assigned lazily on first sight rather
// than hardcoded — grounded on the teacher's fixed component bitset, but
// generalized because guests mint their own component id vocabulary.
const maxComponentTypes = 64

// Registry assigns a stable bit position to each component id it sees,
// lazily, in first-seen order. It exists to give query shapes a cheap,
// comparable signature; the actual intersection work queries the store's
// columns directly.
type Registry struct {
	mu   sync.RWMutex
	bit  map[ecs.ComponentID]int
	byID []ecs.ComponentID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bit: make(map[ecs.ComponentID]int)}
}

// BitFor returns id's bit position, assigning the next free one the
// first time id is seen. Returns an error once maxComponentTypes distinct
// ids have been registered.
func (r *Registry) BitFor(id ecs.ComponentID) (int, error) {
	r.mu.RLock()
	if pos, ok := r.bit[id]; ok {
		r.mu.RUnlock()
		return pos, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if pos, ok := r.bit[id]; ok {
		return pos, nil
	}
	if len(r.byID) >= maxComponentTypes {
		return -1, fmt.Errorf("query: registry already tracks %d component types, cannot add %q", maxComponentTypes, id)
	}
	pos := len(r.byID)
	r.bit[id] = pos
	r.byID = append(r.byID, id)
	return pos, nil
}

// Mask ORs together the bit for each id, registering any id not yet seen.
func (r *Registry) Mask(ids ...ecs.ComponentID) (uint64, error) {
	var mask uint64
	for _, id := range ids {
		pos, err := r.BitFor(id)
		if err != nil {
			return 0, err
		}
		mask |= 1 << uint(pos)
	}
	return mask, nil
}
