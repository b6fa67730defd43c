package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/c360studio/ontomap/source"
	"github.com/knakk/rdf"
)

// ABoxOptions configures ABox generation.
type ABoxOptions struct {
	// BaseIRI prefixes row subjects; a trailing '/' is added if missing.
	BaseIRI string

	// Format defaults to Turtle.
	Format Format

	// OutputDir, when set, receives abox-YYYYMMDD-HHMMSS.<ext>.
	OutputDir string

	// Now stamps the output file name. Defaults to time.Now.
	Now func() time.Time
}

// ABoxResult is the serialized ABox and where it was written.
type ABoxResult struct {
	Content  string `json:"content"`
	Format   Format `json:"format"`
	FilePath string `json:"file_path,omitempty"`
	Triples  int    `json:"triples"`
}

// GenerateABox emits one subject per row, numbered from 1 across all
// tables, with a literal for each mapped field that holds a value. An item
// naming a table only applies to rows of that table. Tables without Rows
// contribute their SampleRows.
func GenerateABox(tables []source.TableItem, items []MappingItem, opts ABoxOptions) (*ABoxResult, error) {
	format := opts.Format
	if format == "" {
		format = FormatTurtle
	}
	info, ok := GetFormatInfo(format)
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	base := NormalizeBaseIRI(opts.BaseIRI)

	predicates := make([]rdf.IRI, len(items))
	for i, item := range items {
		iri, err := rdf.NewIRI(item.PropertyIRI)
		if err != nil {
			return nil, fmt.Errorf("property iri %q: %w", item.PropertyIRI, err)
		}
		predicates[i] = iri
	}

	var triples []rdf.Triple
	index := 0
	for _, t := range tables {
		rows := t.Rows
		if rows == nil {
			rows = t.SampleRows
		}
		for _, row := range rows {
			index++
			subj, err := rdf.NewIRI(base + "row/" + strconv.Itoa(index))
			if err != nil {
				return nil, fmt.Errorf("subject iri: %w", err)
			}
			for i, item := range items {
				if item.TableName != "" && t.Name != "" && item.TableName != t.Name {
					continue
				}
				value, present := row[item.Field]
				if !present || value == nil {
					continue
				}
				triples = append(triples, rdf.Triple{
					Subj: subj,
					Pred: predicates[i],
					Obj:  literal(value),
				})
			}
		}
	}

	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, info.rdfFormat)
	if err := enc.EncodeAll(triples); err != nil {
		return nil, fmt.Errorf("encode abox: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode abox: %w", err)
	}

	result := &ABoxResult{
		Content: buf.String(),
		Format:  format,
		Triples: len(triples),
	}

	if opts.OutputDir != "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		path, err := writeOutput(opts.OutputDir, "abox-"+now().Format("20060102-150405")+info.Extension, buf.Bytes())
		if err != nil {
			return nil, err
		}
		result.FilePath = path
	}
	return result, nil
}

// literal types a row value the way it was read: integers, doubles and
// booleans keep their XSD datatype, everything else becomes a string.
func literal(v any) rdf.Literal {
	var native any
	switch t := v.(type) {
	case string, bool, int64, float64, time.Time:
		native = t
	case int:
		native = int64(t)
	case int32:
		native = int64(t)
	case float32:
		native = float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			native = i
		} else if f, err := t.Float64(); err == nil {
			native = f
		} else {
			native = t.String()
		}
	default:
		native = fmt.Sprint(t)
	}

	lit, err := rdf.NewLiteral(native)
	if err != nil {
		lit, _ = rdf.NewLiteral(fmt.Sprint(v))
	}
	return lit
}

func writeOutput(dir, name string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
