package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteParser reads every user table of a SQLite database as a table
// named "stem::table".
type SQLiteParser struct{}

// NewSQLiteParser creates a SQLite parser.
func NewSQLiteParser() *SQLiteParser {
	return &SQLiteParser{}
}

// Extensions implements Parser.
func (p *SQLiteParser) Extensions() []string {
	return []string{".db", ".sqlite", ".sqlite3"}
}

// Parse implements Parser. The database is copied to a temporary file
// because the driver reads from disk.
func (p *SQLiteParser) Parse(filename string, content []byte) ([]TableItem, error) {
	tmp, err := os.CreateTemp("", "ontomap-*.db")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return ReadSQLite(context.Background(), tmp.Name(), TableNameFromFile(filename))
}

// ReadSQLite reads all user tables of the database at path. Table names are
// prefixed with prefix and "::".
func ReadSQLite(ctx context.Context, path, prefix string) ([]TableItem, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	names, err := userTables(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]TableItem, 0, len(names))
	for _, name := range names {
		t, err := readTable(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", name, err)
		}
		t.Name = prefix + "::" + name
		tables = append(tables, t)
	}
	return tables, nil
}

func userTables(ctx context.Context, db *sql.DB) ([]string, error) {
	const q = `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func readTable(ctx context.Context, db *sql.DB, table string) (TableItem, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)))
	if err != nil {
		return TableItem{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return TableItem{}, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		scans := make([]any, len(cols))
		for i := range values {
			scans[i] = &values[i]
		}
		if err := rows.Scan(scans...); err != nil {
			return TableItem{}, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return TableItem{}, err
	}

	return newTable(table, cols, out), nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
