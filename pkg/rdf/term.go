// Package rdf models the RDF terms carried in knowledge-exchange bindings and
// their N3 wire form.
package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Well-known namespaces.
const (
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
	OWLNamespace  = "http://www.w3.org/2002/07/owl#"
)

// XSD datatypes produced by NewLiteral and the number/boolean shorthands.
const (
	XSDString   = XSDNamespace + "string"
	XSDInteger  = XSDNamespace + "integer"
	XSDDecimal  = XSDNamespace + "decimal"
	XSDDouble   = XSDNamespace + "double"
	XSDBoolean  = XSDNamespace + "boolean"
	XSDDateTime = XSDNamespace + "dateTime"
)

// NilURI is the reserved "no value" resource.
const NilURI = RDFNamespace + "nil"

// Nil is NilURI as a term.
var Nil = URIRef(NilURI)

// Term is an RDF node in a binding: a Literal, a URIRef or a BlankNode.
type Term interface {
	// N3 renders the term in wire form.
	N3() string
	// String returns the lexical value (URI, literal text or blank node label).
	String() string

	term()
}

// URIRef is an IRI reference.
type URIRef string

func (u URIRef) term() {}

// String returns the IRI.
func (u URIRef) String() string { return string(u) }

// N3 renders the IRI in angle brackets.
func (u URIRef) N3() string { return "<" + string(u) + ">" }

// IsNil reports whether the reference is the nil sentinel.
func (u URIRef) IsNil() bool {
	return string(u) == NilURI || string(u) == "rdf:nil"
}

// BlankNode is an anonymous node.
type BlankNode string

func (b BlankNode) term() {}

// String returns the blank node label.
func (b BlankNode) String() string { return string(b) }

// N3 renders the blank node with the _: prefix.
func (b BlankNode) N3() string { return "_:" + string(b) }

// Literal is a lexical value with an optional datatype or language tag.
type Literal struct {
	Lexical  string
	Datatype string
	Lang     string
}

func (l Literal) term() {}

// String returns the lexical value.
func (l Literal) String() string { return l.Lexical }

// Value returns the lexical value.
func (l Literal) Value() string { return l.Lexical }

// N3 renders the quoted literal with its language tag or datatype.
func (l Literal) N3() string {
	quoted := `"` + escape(l.Lexical) + `"`
	switch {
	case l.Lang != "":
		return quoted + "@" + l.Lang
	case l.Datatype != "" && l.Datatype != XSDString:
		return quoted + "^^<" + l.Datatype + ">"
	default:
		return quoted
	}
}

// NewLiteral builds a literal from a Go value, choosing the XSD datatype the
// way the broker expects: integers, floats, booleans and times are typed,
// everything else becomes a plain string.
func NewLiteral(v any) Literal {
	switch x := v.(type) {
	case Literal:
		return x
	case string:
		return Literal{Lexical: x}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Literal{Lexical: fmt.Sprint(x), Datatype: XSDInteger}
	case float32:
		return Literal{Lexical: strconv.FormatFloat(float64(x), 'g', -1, 32), Datatype: XSDDouble}
	case float64:
		return Literal{Lexical: strconv.FormatFloat(x, 'g', -1, 64), Datatype: XSDDouble}
	case bool:
		return Literal{Lexical: strconv.FormatBool(x), Datatype: XSDBoolean}
	case time.Time:
		return Literal{Lexical: x.Format(time.RFC3339Nano), Datatype: XSDDateTime}
	case fmt.Stringer:
		return Literal{Lexical: x.String()}
	default:
		return Literal{Lexical: fmt.Sprint(x)}
	}
}

// IsNil reports whether t is the nil sentinel.
func IsNil(t Term) bool {
	u, ok := t.(URIRef)
	return ok && u.IsNil()
}

// IsLiteral reports whether t is a literal.
func IsLiteral(t Term) bool {
	_, ok := t.(Literal)
	return ok
}

func escape(s string) string {
	if !strings.ContainsAny(s, "\"\\\n\r\t") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
