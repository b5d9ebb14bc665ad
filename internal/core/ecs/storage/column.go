package storage

import (
	"container/list"
	"fmt"
)

// Column is a single component's storage: one opaque byte blob per entity
// that holds it, ordered by insertion. The ecs package requires iteration
// order to match insertion order even across removals, which a swap-remove
// SparseSet cannot give — container/list is the stdlib's ordered
// container and there is no ecosystem ordered-map library anywhere in the
// retrieval pack, so this one piece stays on the standard library.
//
// Add/Remove/Get are O(1): the index map resolves an entity straight to
// its list.Element, and list.Remove unlinks without touching any other
// entry's position.
type Column struct {
	order *list.List
	index map[EntityID]*list.Element
	width int // byte size fixed by the first Add, 0 until then
}

type columnEntry struct {
	entity EntityID
	data   []byte
}

// NewColumn creates an empty column. width is unset (0) until the first Add.
func NewColumn() *Column {
	return &Column{
		order: list.New(),
		index: make(map[EntityID]*list.Element),
	}
}

// Add inserts data for entity. The first Add on a column fixes its byte
// width; every later Add or Set must match that width exactly.
func (c *Column) Add(entity EntityID, data []byte) error {
	if _, exists := c.index[entity]; exists {
		return fmt.Errorf("entity %d already has this component", entity)
	}
	if c.width == 0 {
		c.width = len(data)
	} else if len(data) != c.width {
		return fmt.Errorf("component size mismatch: column width %d, got %d", c.width, len(data))
	}
	el := c.order.PushBack(&columnEntry{entity: entity, data: data})
	c.index[entity] = el
	return nil
}

// Remove drops entity's value from the column.
func (c *Column) Remove(entity EntityID) error {
	el, exists := c.index[entity]
	if !exists {
		return fmt.Errorf("entity %d not found in column", entity)
	}
	c.order.Remove(el)
	delete(c.index, entity)
	return nil
}

// Get returns entity's current value, if any.
func (c *Column) Get(entity EntityID) ([]byte, bool) {
	el, exists := c.index[entity]
	if !exists {
		return nil, false
	}
	return el.Value.(*columnEntry).data, true
}

// Set overwrites entity's value in place; used for query write-back. The
// entity must already be present and data must match the fixed width.
func (c *Column) Set(entity EntityID, data []byte) error {
	el, exists := c.index[entity]
	if !exists {
		return fmt.Errorf("entity %d not found in column", entity)
	}
	if len(data) != c.width {
		return fmt.Errorf("component size mismatch: column width %d, got %d", c.width, len(data))
	}
	el.Value.(*columnEntry).data = data
	return nil
}

// Contains reports whether entity currently holds this component.
func (c *Column) Contains(entity EntityID) bool {
	_, exists := c.index[entity]
	return exists
}

// Len returns the number of entities currently holding this component.
func (c *Column) Len() int {
	return c.order.Len()
}

// Width returns the byte size fixed by the first Add, or 0 if the column
// has never been written to.
func (c *Column) Width() int {
	return c.width
}

// Iterate walks entries in insertion order. callback returns false to stop
// early.
func (c *Column) Iterate(callback func(entity EntityID, data []byte) bool) {
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*columnEntry)
		if !callback(entry.entity, entry.data) {
			return
		}
	}
}
