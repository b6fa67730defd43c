package r2rml

// Namespace is the R2RML vocabulary namespace.
const Namespace = "http://www.w3.org/ns/r2rml#"

// Prefix is the conventional Turtle prefix for Namespace.
const Prefix = "rr"

// Class IRIs.
const (
	// ClassTriplesMap is a rule that maps rows of a logical table to triples.
	ClassTriplesMap = Namespace + "TriplesMap"
)
