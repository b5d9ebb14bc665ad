package query

import (
	"github.com/pkg/errors"

	"hostengine/internal/core/ecs"
)

// Term is one clause of a query: a component id and how the caller
// intends to use it. Read terms are snapshotted only; Write terms are
// snapshotted and, after the caller mutates them and calls WriteBack,
// copied back into the store row for row.
type Term struct {
	Component ecs.ComponentID
	Access    ecs.Access
}

// EcsData is the materialized result of running a query: every entity
// that held all of the query's component ids at Run time, plus one
// parallel byte column per term. Column order within a column matches
// Entities order.
type EcsData struct {
	Entities []ecs.EntityID
	Columns  map[ecs.ComponentID][][]byte

	terms []Term
	store *ecs.Store
}

// Run intersects the store's columns for every term's component id and
// returns the matching rows. An empty terms list yields an empty,
// harmless EcsData rather than an error, matching Store.Find's treatment
// of an empty requirement list.
func Run(store *ecs.Store, terms []Term) (*EcsData, error) {
	data := &EcsData{
		Columns: make(map[ecs.ComponentID][][]byte),
		terms:   terms,
		store:   store,
	}
	if len(terms) == 0 {
		return data, nil
	}

	// Drive candidate selection off whichever term's column is smallest.
	smallest := terms[0].Component
	smallestLen := -1
	for _, t := range terms {
		n := columnLen(store, t.Component)
		if smallestLen == -1 || n < smallestLen {
			smallestLen = n
			smallest = t.Component
		}
	}

	store.Iter(smallest, func(entity ecs.EntityID, _ []byte) bool {
		row := make(map[ecs.ComponentID][]byte, len(terms))
		for _, t := range terms {
			val, ok := store.Get(entity, t.Component)
			if !ok {
				return true // entity missing one of the terms, skip it
			}
			row[t.Component] = append([]byte(nil), val...)
		}
		data.Entities = append(data.Entities, entity)
		for id, val := range row {
			data.Columns[id] = append(data.Columns[id], val)
		}
		return true
	})

	return data, nil
}

// columnLen returns how many entities currently hold component, without
// exposing Store's internal column type.
func columnLen(store *ecs.Store, component ecs.ComponentID) int {
	count := 0
	store.Iter(component, func(ecs.EntityID, []byte) bool {
		count++
		return true
	})
	return count
}

// WriteBack copies every Write term's column back into the store, row
// for row against Entities. Returns ErrShapeMismatch if a Write column's
// length no longer matches len(Entities) — the guest must mutate entries
// in place, not replace the slice. One command's failure does not roll
// back columns already written in this call.
func (d *EcsData) WriteBack() error {
	for _, t := range d.terms {
		if t.Access != ecs.Write {
			continue
		}
		col := d.Columns[t.Component]
		if len(col) != len(d.Entities) {
			return errors.Wrapf(ErrShapeMismatch, "component %s: have %d rows, want %d", t.Component, len(col), len(d.Entities))
		}
		for i, entity := range d.Entities {
			if err := d.store.Add(entity, t.Component, col[i]); err != nil {
				return err
			}
		}
	}
	return nil
}
