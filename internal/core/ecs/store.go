package ecs

import (
	"sync"

	"github.com/pkg/errors"

	"hostengine/internal/core/ecs/storage"
)

// Store is the in-memory entity-component table shared by every loaded
// guest. It tracks which entities are alive and, per component id, which
// of those entities carry a value and what that value currently is.
//
// All methods take the store's lock, except that Iter walks a column after
// releasing it, so a write to that component concurrent with an Iter is
// not safe. The engine only ever calls
// into a Store from the single dispatch goroutine — the lock exists for
// the host API surface (metrics scraping, admin introspection), not to
// support guest-side concurrency, since guests never run concurrently
// with each other.
type Store struct {
	mu sync.RWMutex

	nextID EntityID
	live   *storage.SparseSet

	columns map[ComponentID]*storage.Column
}

// NewStore creates an empty Store. Entity id 0 is never issued.
func NewStore() *Store {
	return &Store{
		nextID:  1,
		live:    storage.NewSparseSet(),
		columns: make(map[ComponentID]*storage.Column),
	}
}

// CreateEntity allocates and returns a new, empty entity.
func (s *Store) CreateEntity() EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	// storage.SparseSet.Add cannot fail here: id is freshly minted and
	// therefore never already present.
	_ = s.live.Add(storage.EntityID(id))
	return id
}

// Register marks entity — an id minted outside the store, typically by a
// guest's own allocator rather than CreateEntity — as alive, if it is not
// already. It never touches nextID, so it cannot collide with ids this
// store mints itself as long as callers keep guest-minted and
// host-minted id spaces disjoint (see the guest package's per-guest id
// namespacing). A no-op if entity is already alive.
func (s *Store) Register(entity EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live.Contains(storage.EntityID(entity)) {
		_ = s.live.Add(storage.EntityID(entity))
	}
}

// Destroy removes entity and every component value it currently holds.
// Destroying an unknown entity is a no-op, matching the teacher's
// tolerant entity-lifecycle style.
func (s *Store) Destroy(entity EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live.Contains(storage.EntityID(entity)) {
		return
	}
	for _, col := range s.columns {
		_ = col.Remove(storage.EntityID(entity))
	}
	_ = s.live.Remove(storage.EntityID(entity))
}

// Add attaches a component value to entity. The first Add seen for a
// given component id across the store's lifetime fixes that id's byte
// width; every subsequent Add or query write-back for the same id must
// match it exactly or ErrSizeMismatch is returned.
func (s *Store) Add(entity EntityID, component ComponentID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live.Contains(storage.EntityID(entity)) {
		return errors.Wrapf(ErrEntityNotFound, "add %s to entity %d", component, entity)
	}

	col, ok := s.columns[component]
	if !ok {
		col = storage.NewColumn()
		s.columns[component] = col
	}

	value := append([]byte(nil), data...)
	if col.Contains(storage.EntityID(entity)) {
		if err := col.Set(storage.EntityID(entity), value); err != nil {
			return errors.Wrapf(ErrSizeMismatch, "entity %d component %s: %v", entity, component, err)
		}
		return nil
	}
	if err := col.Add(storage.EntityID(entity), value); err != nil {
		return errors.Wrapf(ErrSizeMismatch, "entity %d component %s: %v", entity, component, err)
	}
	return nil
}

// Remove detaches a component from entity. Removing a component an
// entity never had is a no-op.
func (s *Store) Remove(entity EntityID, component ComponentID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.columns[component]; ok {
		_ = col.Remove(storage.EntityID(entity))
	}
}

// Get returns entity's current value for component, if it has one.
func (s *Store) Get(entity EntityID, component ComponentID) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.columns[component]
	if !ok {
		return nil, false
	}
	return col.Get(storage.EntityID(entity))
}

// Iter calls fn for every (entity, bytes) pair currently holding
// component, in the order those entities acquired it; an entity that loses
// the component and gains it again moves to the end. fn returning false
// stops iteration early.
func (s *Store) Iter(component ComponentID, fn func(EntityID, []byte) bool) {
	s.mu.RLock()
	col, ok := s.columns[component]
	s.mu.RUnlock()
	if !ok {
		return
	}
	col.Iterate(func(entity storage.EntityID, data []byte) bool {
		return fn(EntityID(entity), data)
	})
}

// Find returns the first live entity that holds every component id in
// required, or false if none does. Required may be empty, in which case
// no entity ever matches — callers asking "find me anything" should use
// Iter over a known component instead.
func (s *Store) Find(required []ComponentID) (EntityID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(required) == 0 {
		return InvalidEntityID, false
	}

	// Drive the search off the smallest column: fewer candidates to test
	// against the rest.
	var smallest *storage.Column
	for _, id := range required {
		col, ok := s.columns[id]
		if !ok {
			return InvalidEntityID, false
		}
		if smallest == nil || col.Len() < smallest.Len() {
			smallest = col
		}
	}

	var found EntityID
	ok := false
	smallest.Iterate(func(entity storage.EntityID, _ []byte) bool {
		for _, id := range required {
			if !s.columns[id].Contains(entity) {
				return true // keep scanning
			}
		}
		found = EntityID(entity)
		ok = true
		return false
	})
	return found, ok
}

// Width returns the byte width fixed for component, and whether any
// value has ever been written for it.
func (s *Store) Width(component ComponentID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.columns[component]
	if !ok || col.Width() == 0 {
		return 0, false
	}
	return col.Width(), true
}

// Alive reports whether entity was created and not yet destroyed.
func (s *Store) Alive(entity EntityID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Contains(storage.EntityID(entity))
}
