package export

import (
	"fmt"

	"github.com/c360studio/ontomap/vocabulary/r2rml"
)

// R2RMLOptions configures R2RML generation.
type R2RMLOptions struct {
	// BaseIRI prefixes subject templates; a trailing '/' is added if missing.
	BaseIRI string

	// TableName is used for items that do not name a table.
	TableName string

	// OutputDir, when set, receives the document as mapping.r2rml.ttl.
	OutputDir string
}

// R2RMLResult is the serialized mapping document.
type R2RMLResult struct {
	Content  string `json:"content"`
	FilePath string `json:"file_path,omitempty"`
	Maps     int    `json:"maps"`
}

// GenerateR2RML writes one rr:TriplesMap per table, in order of first
// appearance, with a predicate-object map per item.
func GenerateR2RML(items []MappingItem, opts R2RMLOptions) (*R2RMLResult, error) {
	base := NormalizeBaseIRI(opts.BaseIRI)

	var order []string
	groups := make(map[string][]MappingItem)
	for _, item := range items {
		table := item.TableName
		if table == "" {
			table = opts.TableName
		}
		if table == "" {
			return nil, fmt.Errorf("mapping for %s has no table name", item.PropertyIRI)
		}
		if _, seen := groups[table]; !seen {
			order = append(order, table)
		}
		groups[table] = append(groups[table], item)
	}

	w := NewTurtleWriter()
	w.SetPrefix(r2rml.Prefix, r2rml.Namespace)
	w.SetPrefix("ex", base)
	w.WritePrefixes()

	rr := func(pred string) string { return w.Term(r2rml.IRI(pred)) }

	for n, table := range order {
		if n > 0 {
			w.WriteBlank()
		}
		w.Line(0, fmt.Sprintf("ex:TriplesMap%d a %s ;", n+1, w.Term(r2rml.ClassTriplesMap)))
		w.Line(1, fmt.Sprintf("%s [ %s %s ] ;", rr(r2rml.LogicalTable), rr(r2rml.TableName), Literal(table)))

		group := groups[table]
		end := " ;"
		if len(group) == 0 {
			end = " ."
		}
		w.Line(1, fmt.Sprintf("%s [ %s %s ]%s", rr(r2rml.SubjectMap), rr(r2rml.Template), Literal(base+"row/{id}"), end))

		for i, item := range group {
			w.Line(1, rr(r2rml.PredicateObjectMap)+" [")
			w.Line(2, fmt.Sprintf("%s <%s> ;", rr(r2rml.Predicate), item.PropertyIRI))
			w.Line(2, fmt.Sprintf("%s [ %s %s ]", rr(r2rml.ObjectMap), rr(r2rml.Column), Literal(item.Field)))
			if i == len(group)-1 {
				w.Line(1, "] .")
			} else {
				w.Line(1, "] ;")
			}
		}
	}

	result := &R2RMLResult{Content: w.String(), Maps: len(order)}
	if opts.OutputDir != "" {
		path, err := writeOutput(opts.OutputDir, "mapping.r2rml.ttl", []byte(result.Content))
		if err != nil {
			return nil, err
		}
		result.FilePath = path
	}
	return result, nil
}
