package extractor

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"grabtab/internal/table"
)

// maxSpan bounds colspan and rowspan the way browsers do for colspan.
const maxSpan = 1000

type rawCell struct {
	text   string
	header bool
}

type rawRow struct {
	cells []rawCell
	thead bool
}

// tableRows returns the rows owned by a <table>, ignoring rows of nested tables.
func tableRows(tbl *html.Node) []*html.Node {
	var rows []*html.Node
	for c := tbl.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "tr":
			rows = append(rows, c)
		case "thead", "tbody", "tfoot":
			for r := c.FirstChild; r != nil; r = r.NextSibling {
				if r.Type == html.ElementNode && r.Data == "tr" {
					rows = append(rows, r)
				}
			}
		}
	}
	return rows
}

func span(n *html.Node, key string) int {
	v, ok := attr(n, key)
	if !ok {
		return 1
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || i < 1 {
		return 1
	}
	if i > maxSpan {
		return maxSpan
	}
	return i
}

type pending struct {
	cell rawCell
	left int
}

// expand lays out the rows of tbl on a grid, repeating spanned cells into every slot they cover.
func expand(tbl *html.Node) []rawRow {
	carry := map[int]*pending{}
	var out []rawRow

	for _, tr := range tableRows(tbl) {
		inHead := tr.Parent != nil && tr.Parent.Data == "thead"
		var row []rawCell
		col := 0

		fill := func() {
			for {
				p, ok := carry[col]
				if !ok {
					return
				}
				row = append(row, p.cell)
				p.left--
				if p.left == 0 {
					delete(carry, col)
				}
				col++
			}
		}

		hasCells := false
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
				continue
			}
			hasCells = true
			cell := rawCell{text: visibleText(c), header: c.Data == "th"}
			cs, rs := span(c, "colspan"), span(c, "rowspan")
			for i := 0; i < cs; i++ {
				// slots still held by a rowspan from above are skipped
				fill()
				row = append(row, cell)
				if rs > 1 {
					carry[col] = &pending{cell: cell, left: rs - 1}
				}
				col++
			}
		}

		// Cells spanning down from earlier rows past the last explicit cell.
		for len(carry) > 0 {
			last := -1
			for k := range carry {
				if k > last {
					last = k
				}
			}
			if last < col {
				break
			}
			if _, ok := carry[col]; !ok {
				row = append(row, rawCell{})
				col++
				continue
			}
			fill()
		}

		if !hasCells && len(row) == 0 {
			continue
		}
		out = append(out, rawRow{cells: row, thead: inHead})
	}
	return out
}

func allHeader(r rawRow) bool {
	for _, c := range r.cells {
		if !c.header {
			return false
		}
	}
	return len(r.cells) > 0
}

// parseTable converts a <table> element into a Table. ok is false when the element holds no rows.
func parseTable(tbl *html.Node) (t *table.Table, ok bool) {
	grid := expand(tbl)
	if len(grid) == 0 {
		return nil, false
	}

	var head, body []rawRow
	for _, r := range grid {
		if r.thead {
			head = append(head, r)
		} else {
			body = append(body, r)
		}
	}
	if len(head) == 0 {
		for len(body) > 0 && allHeader(body[0]) {
			head = append(head, body[0])
			body = body[1:]
		}
	}

	width := 0
	for _, r := range grid {
		if len(r.cells) > width {
			width = len(r.cells)
		}
	}
	if width == 0 {
		return nil, false
	}

	t = table.New(columnNames(head, width)...)
	for _, r := range body {
		cells := make([]table.Cell, width)
		for j, c := range r.cells {
			cells[j] = table.OptStr(c.text)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, true
}

// columnNames derives trimmed, unique column names from the header rows.
func columnNames(head []rawRow, width int) []string {
	names := make([]string, width)
	for j := 0; j < width; j++ {
		if len(head) == 0 {
			names[j] = strconv.Itoa(j)
			continue
		}
		var parts []string
		for _, r := range head {
			if j >= len(r.cells) {
				continue
			}
			p := strings.TrimSpace(r.cells[j].text)
			if p == "" || (len(parts) > 0 && parts[len(parts)-1] == p) {
				continue
			}
			parts = append(parts, p)
		}
		names[j] = strings.Join(parts, " ")
		if names[j] == "" {
			names[j] = fmt.Sprintf("Unnamed: %d", j)
		}
	}

	used := make(map[string]bool, len(names))
	suffix := map[string]int{}
	for j, n := range names {
		name := n
		for used[name] {
			suffix[n]++
			name = fmt.Sprintf("%s.%d", n, suffix[n])
		}
		used[name] = true
		names[j] = name
	}
	return names
}

// parseTables parses every element in order, skipping those that do not hold a table.
func parseTables(nodes []*html.Node) []*table.Table {
	var out []*table.Table
	for _, n := range nodes {
		if t, ok := parseTable(n); ok {
			out = append(out, t)
		}
	}
	return out
}
