// Package csvexport writes heterogeneous JSON records as a rectangular CSV
// table.
//
// The header is the sorted union of the keys of every object record, so
// column order is stable across runs. A record lacking a column gets an
// empty cell; every row is exactly as wide as the header.
package csvexport

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// ErrNoColumns is returned when the data contains no object keys.
var ErrNoColumns = errors.New("no columns to write")

// Summary describes a written table.
type Summary struct {
	Columns []string
	Rows    int

	// Skipped counts list elements that are not objects. They have no
	// columns and are left out of the table.
	Skipped int
}

// Header returns the sorted union of keys across all object records in
// data. data is a single object or a list of records.
func Header(data any) []string {
	seen := make(map[string]struct{})
	for _, r := range records(data) {
		if obj, ok := r.(map[string]any); ok {
			for k := range obj {
				seen[k] = struct{}{}
			}
		}
	}

	header := make([]string, 0, len(seen))
	for k := range seen {
		header = append(header, k)
	}
	sort.Strings(header)
	return header
}

// Encode writes data as CSV to w: a header row, then one row per object
// record. Rows end with "\n".
func Encode(w io.Writer, data any) (Summary, error) {
	header := Header(data)
	if len(header) == 0 {
		return Summary{}, ErrNoColumns
	}

	summary := Summary{Columns: header}
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return summary, fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for _, r := range records(data) {
		obj, ok := r.(map[string]any)
		if !ok {
			summary.Skipped++
			continue
		}
		for i, col := range header {
			v, present := obj[col]
			if !present {
				row[i] = ""
				continue
			}
			row[i] = FormatCell(v)
		}
		if err := cw.Write(row); err != nil {
			return summary, fmt.Errorf("write row %d: %w", summary.Rows+1, err)
		}
		summary.Rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return summary, fmt.Errorf("flush csv: %w", err)
	}
	return summary, nil
}

// WriteFile encodes data and replaces the file at path. Nothing is written
// when encoding fails.
func WriteFile(path string, data any) (Summary, error) {
	var buf bytes.Buffer
	summary, err := Encode(&buf, data)
	if err != nil {
		return summary, err
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return summary, fmt.Errorf("write %s: %w", path, err)
	}
	return summary, nil
}

// FormatCell renders a decoded JSON value as a CSV cell. null is empty,
// numbers keep their source text when decoded as json.Number, and nested
// objects and arrays are rendered as compact JSON.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

// records normalizes data into a list of records.
func records(data any) []any {
	switch t := data.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	default:
		return nil
	}
}
