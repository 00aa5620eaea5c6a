package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"grabtab/internal/table"
)

// ErrUnsupportedFormat is returned for any format outside Formats.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Formats lists the accepted output formats.
var Formats = []string{"csv", "xlsx", "json", "txt"}

var contentTypes = map[string]string{
	"csv":  "text/csv",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"json": "application/json",
	"txt":  "text/plain",
}

// maxSheetName is the spreadsheet limit on sheet name length.
const maxSheetName = 31

// Normalize lower-cases and trims format and checks it is supported.
func Normalize(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if _, ok := contentTypes[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return f, nil
}

// ContentType returns the MIME type of a normalized format.
func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Filename returns the suggested download name for format.
func Filename(format string) string {
	return "scraped." + format
}

// Format serializes res in the given format.
func Format(res table.Result, format string) ([]byte, error) {
	f, err := Normalize(format)
	if err != nil {
		return nil, err
	}

	if f == "xlsx" {
		return toXLSX(res)
	}

	flat := Flatten(res)
	switch f {
	case "csv":
		return toDelimited(flat, ',')
	case "txt":
		return toDelimited(flat, '\t')
	case "json":
		return toJSON(flat)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Flatten turns res into one table. A named collection gets a leading "table"
// column holding each key before concatenation. An empty result becomes the
// "No data" placeholder.
func Flatten(res table.Result) *table.Table {
	var flat *table.Table
	if named, ok := res.Named(); ok {
		parts := make([]*table.Table, 0, named.Len())
		named.Each(func(key string, t *table.Table) {
			parts = append(parts, t.WithLeading("table", table.Str(key)))
		})
		flat = table.Concat(parts...)
	} else {
		flat, _ = res.Table()
	}
	if flat.Empty() {
		return table.NoData()
	}
	return flat
}

func toDelimited(t *table.Table, comma rune) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for j, c := range row {
			record[j] = c.String()
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush: %w", err)
	}
	return buf.Bytes(), nil
}

// toJSON writes an array of row objects with keys in column order.
// Null cells become null; HTML characters and non-ASCII text are written as is.
func toJSON(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range t.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(&buf, col); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if !row[j].Valid {
				buf.WriteString("null")
				continue
			}
			if err := writeString(&buf, row[j].Value); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode JSON string: %w", err)
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

type sheet struct {
	name  string
	table *table.Table
}

func sheets(res table.Result) []sheet {
	named, ok := res.Named()
	if !ok {
		t, _ := res.Table()
		return []sheet{{name: "Sheet1", table: t}}
	}
	var out []sheet
	seen := map[string]bool{}
	named.Each(func(key string, t *table.Table) {
		name := sheetName(key)
		if seen[name] {
			// keys sharing a truncated name share the sheet; the last table wins
			for i := range out {
				if out[i].name == name {
					out[i].table = t
				}
			}
			return
		}
		seen[name] = true
		out = append(out, sheet{name: name, table: t})
	})
	if len(out) == 0 {
		out = append(out, sheet{name: "Sheet1", table: nil})
	}
	return out
}

func sheetName(key string) string {
	if key == "" {
		key = "Sheet"
	}
	r := []rune(key)
	if len(r) > maxSheetName {
		r = r[:maxSheetName]
	}
	return string(r)
}

func toXLSX(res table.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets(res) {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return nil, fmt.Errorf("failed to name sheet %q: %w", s.name, err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %q: %w", s.name, err)
		}

		t := s.table
		if t.Empty() {
			t = table.NoData()
		}
		if err := writeSheet(f, s.name, t); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, name string, t *table.Table) error {
	header := make([]interface{}, len(t.Columns))
	for j, c := range t.Columns {
		header[j] = c
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", name, err)
	}

	for i, row := range t.Rows {
		values := make([]interface{}, len(row))
		for j, c := range row {
			if c.Valid {
				values[j] = c.Value
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", i+1, name, err)
		}
	}
	return nil
}
