package mapping

import (
	"sort"

	"github.com/c360studio/ontomap/source"
)

// maxSharedFields caps the shared fields listed per relation.
const maxSharedFields = 5

// summarySampleRows is how many sample rows a table summary carries.
const summarySampleRows = 3

// FieldCandidate is one (table, field) pair a property may map onto.
type FieldCandidate struct {
	TableName string `json:"table_name"`
	Field     string `json:"field"`
	Samples   []any  `json:"sample_values"`
}

// Relation links two tables through the field names they share.
type Relation struct {
	LeftTable    string   `json:"left_table"`
	RightTable   string   `json:"right_table"`
	SharedFields []string `json:"shared_fields"`
}

// TableSummary is the reduced table view sent to the external model.
type TableSummary struct {
	Name       string       `json:"name"`
	Fields     []string     `json:"fields"`
	SampleRows []source.Row `json:"sample_rows"`
}

// BuildCandidates flattens tables into field candidates, in table order and
// then field order. Each candidate's samples are the values of that field
// in the table's sample rows; rows without the key contribute nothing.
func BuildCandidates(tables []source.TableItem) []FieldCandidate {
	var candidates []FieldCandidate
	for _, t := range tables {
		for _, field := range t.Fields {
			samples := make([]any, 0, len(t.SampleRows))
			for _, row := range t.SampleRows {
				if row == nil {
					continue
				}
				if v, ok := row[field]; ok {
					samples = append(samples, v)
				}
			}
			candidates = append(candidates, FieldCandidate{
				TableName: t.Name,
				Field:     field,
				Samples:   samples,
			})
		}
	}
	return candidates
}

// InferRelations returns a relation for every unordered table pair (i<j)
// sharing at least one field name. Shared fields are sorted and capped.
func InferRelations(tables []source.TableItem) []Relation {
	var relations []Relation
	for i := 0; i < len(tables); i++ {
		left := make(map[string]bool, len(tables[i].Fields))
		for _, f := range tables[i].Fields {
			left[f] = true
		}
		for j := i + 1; j < len(tables); j++ {
			seen := make(map[string]bool)
			var shared []string
			for _, f := range tables[j].Fields {
				if left[f] && !seen[f] {
					seen[f] = true
					shared = append(shared, f)
				}
			}
			if len(shared) == 0 {
				continue
			}
			sort.Strings(shared)
			if len(shared) > maxSharedFields {
				shared = shared[:maxSharedFields]
			}
			relations = append(relations, Relation{
				LeftTable:    tables[i].Name,
				RightTable:   tables[j].Name,
				SharedFields: shared,
			})
		}
	}
	return relations
}

// SummarizeTables keeps the name, fields and first few sample rows of each table.
func SummarizeTables(tables []source.TableItem) []TableSummary {
	summaries := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		rows := t.SampleRows
		if len(rows) > summarySampleRows {
			rows = rows[:summarySampleRows]
		}
		summaries = append(summaries, TableSummary{
			Name:       t.Name,
			Fields:     t.Fields,
			SampleRows: rows,
		})
	}
	return summaries
}
