// Package ontology describes TBox entities (datatype properties, classes,
// object properties) and parses them from RDF documents.
package ontology

import "encoding/json"

// IRIItem is a lightweight reference to an ontology term.
type IRIItem struct {
	IRI       string `json:"iri"`
	Label     string `json:"label,omitempty"`
	LocalName string `json:"local_name,omitempty"`
}

// DisplayName returns the label, else the local name, else the IRI.
func (i IRIItem) DisplayName() string {
	switch {
	case i.Label != "":
		return i.Label
	case i.LocalName != "":
		return i.LocalName
	default:
		return i.IRI
	}
}

// PropertyItem is a datatype property to be mapped onto a table field.
type PropertyItem struct {
	IRI       string    `json:"iri"`
	Label     string    `json:"label,omitempty"`
	LocalName string    `json:"local_name,omitempty"`
	Domains   []IRIItem `json:"domains"`
	Ranges    []IRIItem `json:"ranges"`

	// IsLeaf is false when another property is declared a sub-property of this one.
	IsLeaf bool `json:"is_leaf"`
}

// UnmarshalJSON defaults IsLeaf to true when the key is absent.
func (p *PropertyItem) UnmarshalJSON(data []byte) error {
	type plain PropertyItem
	tmp := plain{IsLeaf: true}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*p = PropertyItem(tmp)
	return nil
}

// Name returns the label, else the local name. It is empty when neither is set.
func (p PropertyItem) Name() string {
	if p.Label != "" {
		return p.Label
	}
	return p.LocalName
}

// DisplayName returns the label, else the local name, else the IRI.
func (p PropertyItem) DisplayName() string {
	if name := p.Name(); name != "" {
		return name
	}
	return p.IRI
}

// ClassItem is an owl:Class or rdfs:Class.
type ClassItem struct {
	IRI       string `json:"iri"`
	Label     string `json:"label,omitempty"`
	LocalName string `json:"local_name,omitempty"`
}

// ObjectPropertyItem is an owl:ObjectProperty with its domains and ranges.
type ObjectPropertyItem struct {
	IRI       string    `json:"iri"`
	Label     string    `json:"label,omitempty"`
	LocalName string    `json:"local_name,omitempty"`
	Domains   []IRIItem `json:"domains"`
	Ranges    []IRIItem `json:"ranges"`
}

// TBox is the result of parsing an ontology document.
type TBox struct {
	Properties       []PropertyItem       `json:"properties"`
	Classes          []ClassItem          `json:"classes"`
	ObjectProperties []ObjectPropertyItem `json:"object_properties"`

	// Turtle is the whole document re-serialized as Turtle.
	Turtle string `json:"ttl,omitempty"`
}
