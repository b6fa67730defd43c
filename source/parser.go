package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNoFiles is returned when ParseFiles is called without input.
var ErrNoFiles = errors.New("no data files provided")

// ErrUnsupportedFile is returned for file extensions no parser handles.
var ErrUnsupportedFile = errors.New("unsupported file type")

// File is one uploaded data file.
type File struct {
	Name    string
	Content []byte
}

// Parser reads one file into one or more tables.
type Parser interface {
	// Parse returns the tables contained in the file.
	Parse(filename string, content []byte) ([]TableItem, error)

	// Extensions lists the lower-case extensions this parser handles.
	Extensions() []string
}

// Registry maps file extensions to parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry creates a registry with the CSV, Excel and SQLite parsers.
func NewRegistry() *Registry {
	r := &Registry{
		parsers: make(map[string]Parser),
	}

	r.Register(NewCSVParser())
	r.Register(NewExcelParser())
	r.Register(NewSQLiteParser())

	return r
}

// Register adds a parser for each of its extensions.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// GetByExtension returns the parser for a file name, or nil.
func (r *Registry) GetByExtension(filename string) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parsers[strings.ToLower(filepath.Ext(filename))]
}

// ListExtensions returns all registered extensions, sorted.
func (r *Registry) ListExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Parse parses a single file using the parser registered for its extension.
func (r *Registry) Parse(filename string, content []byte) ([]TableItem, error) {
	p := r.GetByExtension(filename)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
	tables, err := p.Parse(filename, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return tables, nil
}

// ParseFiles parses every file in order and concatenates their tables.
func (r *Registry) ParseFiles(files []File) ([]TableItem, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	var tables []TableItem
	for _, f := range files {
		parsed, err := r.Parse(f.Name, f.Content)
		if err != nil {
			return nil, err
		}
		tables = append(tables, parsed...)
	}
	return tables, nil
}

// ParseFiles parses files with the built-in parsers.
func ParseFiles(files []File) ([]TableItem, error) {
	return NewRegistry().ParseFiles(files)
}

// TableNameFromFile returns the file name without directory or extension.
func TableNameFromFile(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}
