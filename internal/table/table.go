package table

// Cell is a single table value. The zero Cell is null.
type Cell struct {
	Value string
	Valid bool
}

// Str returns a non-null cell holding s.
func Str(s string) Cell {
	return Cell{Value: s, Valid: true}
}

// Null is the null cell.
var Null = Cell{}

// OptStr returns a null cell for an empty string and a valid cell otherwise.
func OptStr(s string) Cell {
	if s == "" {
		return Null
	}
	return Str(s)
}

// String returns the cell value, or "" for a null cell.
func (c Cell) String() string {
	return c.Value
}

// Table is an ordered sequence of rows sharing one column set.
// Every row has exactly len(Columns) cells, in column order.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Message returns a single-row table with a "message" column.
func Message(msg string) *Table {
	t := New("message")
	t.Rows = append(t.Rows, []Cell{Str(msg)})
	return t
}

// NoDataMessage is the message of the empty-result placeholder.
const NoDataMessage = "No data"

// NoData is the placeholder written whenever a result has no rows.
func NoData() *Table {
	return Message(NoDataMessage)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Append adds a row. Missing trailing cells are filled with nulls and extra cells are dropped.
func (t *Table) Append(cells ...Cell) {
	row := make([]Cell, len(t.Columns))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Index returns the position of a column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Get returns the cell of row i in the named column. Unknown columns are null.
func (t *Table) Get(i int, column string) Cell {
	j := t.Index(column)
	if j < 0 || i < 0 || i >= len(t.Rows) {
		return Null
	}
	return t.Rows[i][j]
}

// WithLeading returns a copy of t with a new first column holding value on every row.
func (t *Table) WithLeading(column string, value Cell) *Table {
	out := New(append([]string{column}, t.Columns...)...)
	out.Rows = make([][]Cell, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make([]Cell, 0, len(r)+1)
		row = append(row, value)
		row = append(row, r...)
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Concat stacks tables vertically. The result's columns are the union of all
// input columns in first-seen order; cells missing from a table are null.
func Concat(tables ...*Table) *Table {
	var cols []string
	seen := map[string]bool{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}

	out := New(cols...)
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, r := range t.Rows {
			row := make([]Cell, len(cols))
			for j, c := range t.Columns {
				row[pos[c]] = r[j]
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
