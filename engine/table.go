package engine

import "fmt"

// Table is a funcref table. Entries are nil until initialised.
type Table struct {
	elems []*Function
	max   *uint32
}

// NewTable allocates a table of size entries.
func NewTable(size uint32, maxSize *uint32) *Table {
	return &Table{elems: make([]*Function, size), max: maxSize}
}

// Size returns the number of entries.
func (t *Table) Size() uint32 {
	return uint32(len(t.elems))
}

// Max returns the declared maximum, or nil.
func (t *Table) Max() *uint32 {
	return t.max
}

// Get returns the entry at idx, which may be nil.
func (t *Table) Get(idx uint32) (*Function, error) {
	if idx >= uint32(len(t.elems)) {
		return nil, fmt.Errorf("table index %d out of bounds (size %d)", idx, len(t.elems))
	}
	return t.elems[idx], nil
}

// Set stores f at idx.
func (t *Table) Set(idx uint32, f *Function) error {
	if idx >= uint32(len(t.elems)) {
		return fmt.Errorf("table index %d out of bounds (size %d)", idx, len(t.elems))
	}
	t.elems[idx] = f
	return nil
}
