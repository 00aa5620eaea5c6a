package table

import "fmt"

// Named is an ordered, key-unique mapping from table identifier to Table.
type Named struct {
	keys   []string
	tables map[string]*Table
}

// NewNamed creates an empty collection.
func NewNamed() *Named {
	return &Named{tables: map[string]*Table{}}
}

// Set stores t under key. A new key is appended; an existing key keeps its position.
func (n *Named) Set(key string, t *Table) {
	if _, ok := n.tables[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.tables[key] = t
}

// Get returns the table stored under key.
func (n *Named) Get(key string) (*Table, bool) {
	t, ok := n.tables[key]
	return t, ok
}

// Keys returns the keys in insertion order.
func (n *Named) Keys() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Len returns the number of tables.
func (n *Named) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

// Each calls fn for every table in insertion order.
func (n *Named) Each(fn func(key string, t *Table)) {
	for _, k := range n.keys {
		fn(k, n.tables[k])
	}
}

// Indexed builds a collection keyed table_1..table_n in slice order.
func Indexed(tables []*Table) *Named {
	n := NewNamed()
	for i, t := range tables {
		n.Set(fmt.Sprintf("table_%d", i+1), t)
	}
	return n
}

// Kind discriminates the two result shapes.
type Kind int

const (
	KindTable Kind = iota // a single Table
	KindNamed             // a named collection of Tables
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindNamed:
		return "named"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is either a single Table or a Named collection. Consumers switch on Kind.
type Result struct {
	kind  Kind
	table *Table
	named *Named
}

// Single wraps a table.
func Single(t *Table) Result {
	if t == nil {
		t = New()
	}
	return Result{kind: KindTable, table: t}
}

// Collection wraps a named collection.
func Collection(n *Named) Result {
	if n == nil {
		n = NewNamed()
	}
	return Result{kind: KindNamed, named: n}
}

// Kind returns the active shape.
func (r Result) Kind() Kind {
	return r.kind
}

// Table returns the single table; ok is false for a named result.
func (r Result) Table() (t *Table, ok bool) {
	return r.table, r.kind == KindTable && r.table != nil
}

// Named returns the collection; ok is false for a single-table result.
func (r Result) Named() (n *Named, ok bool) {
	return r.named, r.kind == KindNamed && r.named != nil
}

// Rows returns the total number of rows across the result.
func (r Result) Rows() int {
	switch r.kind {
	case KindNamed:
		total := 0
		r.named.Each(func(_ string, t *Table) { total += t.Len() })
		return total
	default:
		return r.table.Len()
	}
}
