package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/ontomap/mapping"
	"github.com/c360studio/ontomap/source"
	"github.com/knakk/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	emailIRI = "http://example.com/onto#email"
	nameIRI  = "http://example.com/onto#name"
	totalIRI = "http://example.com/onto#total"
)

func decodeAll(t *testing.T, content string, f rdf.Format) []rdf.Triple {
	t.Helper()
	triples, err := rdf.NewTripleDecoder(bytes.NewReader([]byte(content)), f).DecodeAll()
	require.NoError(t, err)
	return triples
}

func sampleTables() []source.TableItem {
	return []source.TableItem{
		{
			Name:   "customers",
			Fields: []string{"email", "name"},
			Rows: []source.Row{
				{"email": "a@example.com", "name": "Ann"},
				{"email": nil, "name": "Bob"},
			},
		},
		{
			Name:       "orders",
			Fields:     []string{"total"},
			SampleRows: []source.Row{{"total": 12.5}},
		},
	}
}

func TestGenerateABoxNTriples(t *testing.T) {
	items := []MappingItem{
		{PropertyIRI: emailIRI, Field: "email", TableName: "customers"},
		{PropertyIRI: nameIRI, Field: "name"},
		{PropertyIRI: totalIRI, Field: "total", TableName: "orders"},
	}

	res, err := GenerateABox(sampleTables(), items, ABoxOptions{
		BaseIRI: "http://data.example.com",
		Format:  FormatNTriples,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Triples)

	triples := decodeAll(t, res.Content, rdf.NTriples)
	require.Len(t, triples, 4)

	subjects := map[string]int{}
	for _, tr := range triples {
		subjects[tr.Subj.String()]++
	}
	assert.Equal(t, 2, subjects["http://data.example.com/row/1"])
	assert.Equal(t, 1, subjects["http://data.example.com/row/2"], "null email is skipped")
	assert.Equal(t, 1, subjects["http://data.example.com/row/3"], "sample rows used when rows are absent")
}

func TestGenerateABoxTurtleToFile(t *testing.T) {
	dir := t.TempDir()
	stamp := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	res, err := GenerateABox(sampleTables(), []MappingItem{{PropertyIRI: nameIRI, Field: "name"}}, ABoxOptions{
		BaseIRI:   "http://example.com/",
		OutputDir: dir,
		Now:       func() time.Time { return stamp },
	})
	require.NoError(t, err)
	assert.Equal(t, FormatTurtle, res.Format)
	assert.Equal(t, filepath.Join(dir, "abox-20260304-050607.ttl"), res.FilePath)

	written, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, res.Content, string(written))

	triples := decodeAll(t, res.Content, rdf.Turtle)
	assert.Len(t, triples, 2)
}

func TestGenerateABoxErrors(t *testing.T) {
	_, err := GenerateABox(nil, nil, ABoxOptions{Format: "jsonld"})
	assert.Error(t, err)

	_, err = GenerateABox(nil, []MappingItem{{PropertyIRI: "not an iri", Field: "x"}}, ABoxOptions{})
	assert.Error(t, err)
}

func TestLiteralTypes(t *testing.T) {
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#integer", literal(int64(3)).DataType.String())
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#boolean", literal(true).DataType.String())
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#double", literal(2.5).DataType.String())
	assert.Equal(t, "[1 2]", literal([]int{1, 2}).String())
}

func TestGenerateR2RML(t *testing.T) {
	items := []MappingItem{
		{PropertyIRI: emailIRI, Field: "email", TableName: "customers"},
		{PropertyIRI: totalIRI, Field: "total", TableName: "orders"},
		{PropertyIRI: nameIRI, Field: `full "name"`},
	}

	res, err := GenerateR2RML(items, R2RMLOptions{BaseIRI: "http://example.com", TableName: "customers"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Maps)

	out := res.Content
	assert.Contains(t, out, "@prefix rr: <http://www.w3.org/ns/r2rml#> .")
	assert.Contains(t, out, "@prefix ex: <http://example.com/> .")
	assert.Contains(t, out, `ex:TriplesMap1 a rr:TriplesMap ;`)
	assert.Contains(t, out, `rr:logicalTable [ rr:tableName "customers" ] ;`)
	assert.Contains(t, out, `rr:subjectMap [ rr:template "http://example.com/row/{id}" ] ;`)
	assert.Contains(t, out, `rr:predicate <`+emailIRI+`> ;`)
	assert.Contains(t, out, `rr:objectMap [ rr:column "full \"name\"" ]`)
	assert.Contains(t, out, `ex:TriplesMap2 a rr:TriplesMap ;`)
	assert.Equal(t, 2, strings.Count(out, "] ."), "each map ends with a period")
}

func TestGenerateR2RMLNeedsTable(t *testing.T) {
	_, err := GenerateR2RML([]MappingItem{{PropertyIRI: emailIRI, Field: "email"}}, R2RMLOptions{})
	assert.Error(t, err)
}

func TestMappingFromResults(t *testing.T) {
	table, field := "customers", "email"
	results := []mapping.MatchResult{
		{PropertyIRI: emailIRI, TableName: &table, Field: &field, Outcome: mapping.OutcomeAccepted},
		{PropertyIRI: nameIRI, Outcome: mapping.OutcomeBelowThreshold},
	}

	items := MappingFromResults(results)
	require.Len(t, items, 1)
	assert.Equal(t, MappingItem{PropertyIRI: emailIRI, Field: "email", TableName: "customers"}, items[0])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTurtle, f)

	f, err = ParseFormat("nt")
	require.NoError(t, err)
	assert.Equal(t, FormatNTriples, f)

	_, err = ParseFormat("rdfxml")
	assert.Error(t, err)
}

func TestTurtleWriterTerm(t *testing.T) {
	w := NewTurtleWriter()
	w.SetPrefix("rr", "http://www.w3.org/ns/r2rml#")
	assert.Equal(t, "rr:column", w.Term("http://www.w3.org/ns/r2rml#column"))
	assert.Equal(t, "<http://other.org/x>", w.Term("http://other.org/x"))
	assert.Equal(t, "<http://www.w3.org/ns/r2rml#a/b>", w.Term("http://www.w3.org/ns/r2rml#a/b"))
}
