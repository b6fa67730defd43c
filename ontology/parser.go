package ontology

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knakk/rdf"
)

// Well-known vocabulary IRIs used while reading a TBox.
const (
	rdfType           = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	rdfProperty       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#Property"
	rdfsLabel         = "http://www.w3.org/2000/01/rdf-schema#label"
	rdfsDomain        = "http://www.w3.org/2000/01/rdf-schema#domain"
	rdfsRange         = "http://www.w3.org/2000/01/rdf-schema#range"
	rdfsClass         = "http://www.w3.org/2000/01/rdf-schema#Class"
	rdfsSubPropertyOf = "http://www.w3.org/2000/01/rdf-schema#subPropertyOf"
	owlClass          = "http://www.w3.org/2002/07/owl#Class"
	owlDatatypeProp   = "http://www.w3.org/2002/07/owl#DatatypeProperty"
	owlObjectProp     = "http://www.w3.org/2002/07/owl#ObjectProperty"
)

// ErrEmptyDocument is returned when an ontology document has no content.
var ErrEmptyDocument = errors.New("empty ontology document")

// FormatForFile picks the RDF syntax from the file extension. Unknown
// extensions are read as Turtle.
func FormatForFile(filename string) rdf.Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".nt":
		return rdf.NTriples
	case ".rdf", ".owl", ".xml":
		return rdf.RDFXML
	default:
		return rdf.Turtle
	}
}

// LocalName returns the part of an IRI after the last '#', else after the last '/'.
func LocalName(iri string) string {
	if i := strings.LastIndex(iri, "#"); i >= 0 {
		return iri[i+1:]
	}
	if i := strings.LastIndex(iri, "/"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}

// graph is an in-memory index over decoded triples that keeps document order.
type graph struct {
	triples []rdf.Triple
	labels  map[string]string
	objects map[string]map[string][]string
}

func newGraph(triples []rdf.Triple) *graph {
	g := &graph{
		triples: triples,
		labels:  make(map[string]string),
		objects: make(map[string]map[string][]string),
	}
	for _, t := range triples {
		subj := t.Subj.String()
		pred := t.Pred.String()

		if pred == rdfsLabel && t.Obj.Type() == rdf.TermLiteral {
			if _, seen := g.labels[subj]; !seen {
				g.labels[subj] = t.Obj.String()
			}
		}

		if t.Obj.Type() == rdf.TermLiteral {
			continue
		}
		byPred, ok := g.objects[subj]
		if !ok {
			byPred = make(map[string][]string)
			g.objects[subj] = byPred
		}
		byPred[pred] = append(byPred[pred], t.Obj.String())
	}
	return g
}

// subjectsOfType returns IRI subjects typed with any of the given classes,
// deduplicated, in first-seen order.
func (g *graph) subjectsOfType(types ...string) []string {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, t := range types {
		for _, tr := range g.triples {
			if tr.Pred.String() != rdfType || tr.Subj.Type() != rdf.TermIRI {
				continue
			}
			if tr.Obj.String() != t {
				continue
			}
			s := tr.Subj.String()
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func (g *graph) iriItem(iri string) IRIItem {
	return IRIItem{IRI: iri, Label: g.labels[iri], LocalName: LocalName(iri)}
}

func (g *graph) iriItems(subj, pred string) []IRIItem {
	values := g.objects[subj][pred]
	items := make([]IRIItem, 0, len(values))
	for _, v := range values {
		items = append(items, g.iriItem(v))
	}
	return items
}

// parentProperties returns the properties some other parsed property names
// via rdfs:subPropertyOf.
func (g *graph) parentProperties(props map[string]bool) map[string]bool {
	parents := make(map[string]bool)
	for _, t := range g.triples {
		if t.Pred.String() != rdfsSubPropertyOf {
			continue
		}
		child, parent := t.Subj.String(), t.Obj.String()
		if props[child] && props[parent] {
			parents[parent] = true
		}
	}
	return parents
}

// Parse decodes an ontology document and extracts its datatype properties,
// classes and object properties. The syntax is chosen from filename.
func Parse(content []byte, filename string) (*TBox, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyDocument
	}

	dec := rdf.NewTripleDecoder(bytes.NewReader(content), FormatForFile(filename))
	var triples []rdf.Triple
	for {
		t, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", displayFile(filename), err)
		}
		triples = append(triples, t)
	}

	g := newGraph(triples)

	propIRIs := g.subjectsOfType(owlDatatypeProp, rdfProperty)
	propSet := make(map[string]bool, len(propIRIs))
	for _, iri := range propIRIs {
		propSet[iri] = true
	}
	parents := g.parentProperties(propSet)

	tbox := &TBox{
		Properties:       make([]PropertyItem, 0, len(propIRIs)),
		Classes:          []ClassItem{},
		ObjectProperties: []ObjectPropertyItem{},
	}
	for _, iri := range propIRIs {
		tbox.Properties = append(tbox.Properties, PropertyItem{
			IRI:       iri,
			Label:     g.labels[iri],
			LocalName: LocalName(iri),
			Domains:   g.iriItems(iri, rdfsDomain),
			Ranges:    g.iriItems(iri, rdfsRange),
			IsLeaf:    !parents[iri],
		})
	}
	sort.SliceStable(tbox.Properties, func(i, j int) bool {
		return sortKey(tbox.Properties[i].Label, tbox.Properties[i].LocalName, tbox.Properties[i].IRI) <
			sortKey(tbox.Properties[j].Label, tbox.Properties[j].LocalName, tbox.Properties[j].IRI)
	})

	for _, iri := range g.subjectsOfType(owlClass, rdfsClass) {
		tbox.Classes = append(tbox.Classes, ClassItem(g.iriItem(iri)))
	}
	sort.SliceStable(tbox.Classes, func(i, j int) bool {
		return sortKey(tbox.Classes[i].Label, tbox.Classes[i].LocalName, tbox.Classes[i].IRI) <
			sortKey(tbox.Classes[j].Label, tbox.Classes[j].LocalName, tbox.Classes[j].IRI)
	})

	for _, iri := range g.subjectsOfType(owlObjectProp) {
		tbox.ObjectProperties = append(tbox.ObjectProperties, ObjectPropertyItem{
			IRI:       iri,
			Label:     g.labels[iri],
			LocalName: LocalName(iri),
			Domains:   g.iriItems(iri, rdfsDomain),
			Ranges:    g.iriItems(iri, rdfsRange),
		})
	}
	sort.SliceStable(tbox.ObjectProperties, func(i, j int) bool {
		return sortKey(tbox.ObjectProperties[i].Label, tbox.ObjectProperties[i].LocalName, tbox.ObjectProperties[i].IRI) <
			sortKey(tbox.ObjectProperties[j].Label, tbox.ObjectProperties[j].LocalName, tbox.ObjectProperties[j].IRI)
	})

	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, rdf.Turtle)
	if err := enc.EncodeAll(triples); err != nil {
		return nil, fmt.Errorf("serialize %s: %w", displayFile(filename), err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("serialize %s: %w", displayFile(filename), err)
	}
	tbox.Turtle = buf.String()

	return tbox, nil
}

func sortKey(label, localName, iri string) string {
	switch {
	case label != "":
		return label
	case localName != "":
		return localName
	default:
		return iri
	}
}

func displayFile(filename string) string {
	if filename == "" {
		return "ontology"
	}
	return filename
}
