package export

import "github.com/c360studio/ontomap/mapping"

// MappingItem binds an ontology property to a table field.
type MappingItem struct {
	PropertyIRI string `json:"property_iri"`
	Field       string `json:"field"`

	// TableName restricts the item to one table. Empty applies it to every table.
	TableName string `json:"table_name,omitempty"`
}

// MappingFromResults keeps the accepted match results.
func MappingFromResults(results []mapping.MatchResult) []MappingItem {
	items := make([]MappingItem, 0, len(results))
	for _, r := range results {
		if !r.Accepted() || r.Field == nil {
			continue
		}
		item := MappingItem{PropertyIRI: r.PropertyIRI, Field: *r.Field}
		if r.TableName != nil {
			item.TableName = *r.TableName
		}
		items = append(items, item)
	}
	return items
}
