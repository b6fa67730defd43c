// Package export turns accepted property-to-field mappings into RDF: an
// ABox of row instances and an R2RML mapping document.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/knakk/rdf"
)

// Format specifies the output serialization format.
type Format string

const (
	// FormatTurtle produces Turtle (.ttl) output.
	FormatTurtle Format = "turtle"

	// FormatNTriples produces N-Triples (.nt) output.
	FormatNTriples Format = "ntriples"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	Name        Format
	MIMEType    string
	Extension   string
	Description string

	rdfFormat rdf.Format
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatTurtle: {
		Name:        FormatTurtle,
		MIMEType:    "text/turtle",
		Extension:   ".ttl",
		Description: "Turtle - Terse RDF Triple Language",
		rdfFormat:   rdf.Turtle,
	},
	FormatNTriples: {
		Name:        FormatNTriples,
		MIMEType:    "application/n-triples",
		Extension:   ".nt",
		Description: "N-Triples - Line-based RDF format",
		rdfFormat:   rdf.NTriples,
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat accepts a format name or file extension. Empty means Turtle.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "turtle", "ttl", ".ttl":
		return FormatTurtle, nil
	case "ntriples", "n-triples", "nt", ".nt":
		return FormatNTriples, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// NormalizeBaseIRI ensures the base IRI ends with '/'.
func NormalizeBaseIRI(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}

// TurtleWriter writes hand-structured Turtle with nested blank nodes.
type TurtleWriter struct {
	prefixes map[string]string
	sb       strings.Builder
}

// NewTurtleWriter creates a Turtle writer with no prefixes.
func NewTurtleWriter() *TurtleWriter {
	return &TurtleWriter{
		prefixes: make(map[string]string),
	}
}

// SetPrefix sets a namespace prefix.
func (w *TurtleWriter) SetPrefix(prefix, iri string) {
	w.prefixes[prefix] = iri
}

// WritePrefixes writes prefix declarations sorted by prefix.
func (w *TurtleWriter) WritePrefixes() {
	keys := make([]string, 0, len(w.prefixes))
	for k := range w.prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, prefix := range keys {
		fmt.Fprintf(&w.sb, "@prefix %s: <%s> .\n", prefix, w.prefixes[prefix])
	}
	w.sb.WriteString("\n")
}

// Term renders an IRI, compacted when a prefix covers it.
func (w *TurtleWriter) Term(iri string) string {
	best := ""
	for prefix, ns := range w.prefixes {
		if strings.HasPrefix(iri, ns) && len(ns) > len(w.prefixes[best]) {
			local := iri[len(ns):]
			if isPrefixedLocal(local) {
				best = prefix
			}
		}
	}
	if best != "" {
		return best + ":" + iri[len(w.prefixes[best]):]
	}
	return "<" + iri + ">"
}

// isPrefixedLocal reports whether local can follow "prefix:" unescaped.
func isPrefixedLocal(local string) bool {
	if local == "" {
		return false
	}
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// Line writes one indented line.
func (w *TurtleWriter) Line(indent int, text string) {
	w.sb.WriteString(strings.Repeat("  ", indent))
	w.sb.WriteString(text)
	w.sb.WriteString("\n")
}

// WriteBlank writes a blank line for readability.
func (w *TurtleWriter) WriteBlank() {
	w.sb.WriteString("\n")
}

// String returns the accumulated Turtle output.
func (w *TurtleWriter) String() string {
	return w.sb.String()
}

// Literal quotes a plain string literal.
func Literal(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return `"` + r.Replace(s) + `"`
}
