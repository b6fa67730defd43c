// Package r2rml provides the W3C R2RML mapping vocabulary.
//
// Predicates use three-level dotted notation (r2rml.category.property) and
// are registered with the semstreams vocabulary registry in init(), each
// carrying its rr: IRI. Export code resolves IRIs through IRI() so the
// registry stays the single source of the mapping.
//
// # Usage
//
//	import "github.com/c360studio/ontomap/vocabulary/r2rml"
//
//	pred := r2rml.IRI(r2rml.LogicalTable) // http://www.w3.org/ns/r2rml#logicalTable
package r2rml
