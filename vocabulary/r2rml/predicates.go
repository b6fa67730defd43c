package r2rml

import "github.com/c360studio/semstreams/vocabulary"

// Triples map structure predicates.
const (
	// LogicalTable links a triples map to the table it reads.
	LogicalTable = "r2rml.map.logical_table"

	// SubjectMap links a triples map to the rule generating subjects.
	SubjectMap = "r2rml.map.subject_map"

	// PredicateObjectMap links a triples map to one predicate/object rule.
	PredicateObjectMap = "r2rml.map.predicate_object_map"
)

// Term map predicates.
const (
	// TableName names a base table or view.
	TableName = "r2rml.term.table_name"

	// Template builds a term from a string template with {column} slots.
	Template = "r2rml.term.template"

	// Predicate is the constant predicate of a predicate/object map.
	Predicate = "r2rml.term.predicate"

	// ObjectMap links a predicate/object map to the rule generating objects.
	ObjectMap = "r2rml.term.object_map"

	// Column names the column an object value is read from.
	Column = "r2rml.term.column"

	// Class asserts an rdf:type for every generated subject.
	Class = "r2rml.term.class"
)

// IRI returns the rr: IRI registered for a predicate, or "" if the
// predicate is unknown.
func IRI(predicate string) string {
	meta := vocabulary.GetPredicateMetadata(predicate)
	if meta == nil {
		return ""
	}
	return meta.StandardIRI
}

func init() {
	vocabulary.Register(LogicalTable,
		vocabulary.WithDescription("Logical table a triples map reads rows from"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"logicalTable"))

	vocabulary.Register(SubjectMap,
		vocabulary.WithDescription("Rule generating the subject of each row"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"subjectMap"))

	vocabulary.Register(PredicateObjectMap,
		vocabulary.WithDescription("Rule generating one predicate and object per row"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"predicateObjectMap"))

	vocabulary.Register(TableName,
		vocabulary.WithDescription("Name of the base table or view"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"tableName"))

	vocabulary.Register(Template,
		vocabulary.WithDescription("String template with {column} placeholders"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"template"))

	vocabulary.Register(Predicate,
		vocabulary.WithDescription("Constant predicate IRI"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"predicate"))

	vocabulary.Register(ObjectMap,
		vocabulary.WithDescription("Rule generating the object value"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"objectMap"))

	vocabulary.Register(Column,
		vocabulary.WithDescription("Column the object value is read from"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"column"))

	vocabulary.Register(Class,
		vocabulary.WithDescription("Class asserted for each generated subject"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"class"))
}
