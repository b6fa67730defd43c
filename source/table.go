// Package source reads tabular data sources (CSV, Excel, SQLite) into
// TableItem descriptors for matching and ABox generation.
package source

import (
	"encoding/json"
	"reflect"
)

// SampleSize is how many leading rows are kept as sample rows.
const SampleSize = 5

// Row is one record of a table keyed by field name.
type Row map[string]any

// TableItem describes one table: its fields, a few sample rows, and
// optionally every row.
type TableItem struct {
	Name       string   `json:"name"`
	Fields     []string `json:"fields"`
	SampleRows []Row    `json:"sample_rows"`
	Rows       []Row    `json:"rows,omitempty"`
}

// Get reads key from a table record that may be a TableItem, a *TableItem,
// a map, or any struct carrying json tags. It returns def when the key is
// missing.
func Get(record any, key string, def any) any {
	switch r := record.(type) {
	case nil:
		return def
	case TableItem:
		return getTableItem(&r, key, def)
	case *TableItem:
		if r == nil {
			return def
		}
		return getTableItem(r, key, def)
	case map[string]any:
		if v, ok := r[key]; ok {
			return v
		}
		return def
	case Row:
		if v, ok := r[key]; ok {
			return v
		}
		return def
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return def
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return def
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if jsonName(f) == key {
			return v.Field(i).Interface()
		}
	}
	return def
}

func getTableItem(t *TableItem, key string, def any) any {
	switch key {
	case "name":
		return t.Name
	case "fields":
		return t.Fields
	case "sample_rows":
		return t.SampleRows
	case "rows":
		return t.Rows
	}
	return def
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}

// Normalize converts heterogeneous table records into TableItems.
// Records and rows that are not mappings are dropped, as are non-string
// field names.
func Normalize(records []any) []TableItem {
	tables := make([]TableItem, 0, len(records))
	for _, rec := range records {
		if !isRecord(rec) {
			continue
		}
		tables = append(tables, normalizeOne(rec))
	}
	return tables
}

// isRecord reports whether Get can read keys from rec.
func isRecord(rec any) bool {
	v := reflect.ValueOf(rec)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	return v.Kind() == reflect.Map || v.Kind() == reflect.Struct
}

func normalizeOne(rec any) TableItem {
	if t, ok := rec.(TableItem); ok {
		return t
	}
	if t, ok := rec.(*TableItem); ok && t != nil {
		return *t
	}

	name, _ := Get(rec, "name", "").(string)
	return TableItem{
		Name:       name,
		Fields:     toFields(Get(rec, "fields", nil)),
		SampleRows: toRows(Get(rec, "sample_rows", nil)),
		Rows:       toRows(Get(rec, "rows", nil)),
	}
}

func toFields(v any) []string {
	switch fs := v.(type) {
	case []string:
		return fs
	case []any:
		out := make([]string, 0, len(fs))
		for _, f := range fs {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toRows(v any) []Row {
	switch rs := v.(type) {
	case []Row:
		return rs
	case []map[string]any:
		out := make([]Row, len(rs))
		for i, r := range rs {
			out[i] = r
		}
		return out
	case []any:
		out := make([]Row, 0, len(rs))
		for _, r := range rs {
			switch m := r.(type) {
			case map[string]any:
				out = append(out, m)
			case Row:
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// DecodeTables decodes a JSON array of table records, tolerating rows that
// are not objects.
func DecodeTables(data []byte) ([]TableItem, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}
