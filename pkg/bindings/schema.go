package bindings

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/rdf"
)

// TermUnmarshaler is implemented by field types that decode themselves from
// a term.
type TermUnmarshaler interface {
	UnmarshalTerm(rdf.Term) error
}

// n3Marshaler is implemented by values that render their own wire form.
type n3Marshaler interface {
	N3() string
}

type shape int

const (
	shapeLiteral shape = iota // rdf.Literal or a Go scalar
	shapeURI                  // rdf.URIRef
	shapeTerm                 // rdf.Term: any term
	shapeCustom               // TermUnmarshaler
)

var (
	termType        = reflect.TypeOf((*rdf.Term)(nil)).Elem()
	literalType     = reflect.TypeOf(rdf.Literal{})
	uriRefType      = reflect.TypeOf(rdf.URIRef(""))
	timeType        = reflect.TypeOf(time.Time{})
	unmarshalerType = reflect.TypeOf((*TermUnmarshaler)(nil)).Elem()
)

// Field describes one variable of a binding object.
type Field struct {
	Name     string
	Optional bool

	index int
	shape shape
	typ   reflect.Type
}

// Schema is the variable layout of a binding object type.
type Schema struct {
	Type   reflect.Type
	Fields []Field
}

// Names returns the sorted variable names.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	sort.Strings(names)
	return names
}

// Required returns the sorted names of required variables.
func (s *Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if !f.Optional {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

var schemas sync.Map // reflect.Type -> *Schema

// SchemaOf returns the schema of a binding object. v may be a struct, a
// pointer to one, a slice of either, or a reflect.Type of any of those.
func SchemaOf(v any) (*Schema, error) {
	typ, ok := v.(reflect.Type)
	if !ok {
		typ = reflect.TypeOf(v)
	}
	if typ == nil {
		return nil, kerrors.Config("schema", nil, "binding object is nil")
	}
	for typ.Kind() == reflect.Pointer || typ.Kind() == reflect.Slice {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, kerrors.Config("schema", nil, "%s is not a binding object", typ)
	}
	if s, ok := schemas.Load(typ); ok {
		return s.(*Schema), nil
	}

	s := &Schema{Type: typ}
	seen := make(map[string]string)
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, optional := parseTag(sf)
		if name == "" {
			continue
		}
		if prev, dup := seen[name]; dup {
			return nil, kerrors.Config("schema", nil, "%s: fields %s and %s both bind %q", typ, prev, sf.Name, name)
		}
		seen[name] = sf.Name

		sh, ok := shapeOf(sf.Type)
		if !ok {
			return nil, kerrors.Config("schema", nil, "%s.%s has unsupported type %s", typ, sf.Name, sf.Type)
		}
		if sf.Type.Kind() == reflect.Pointer || sf.Type.Kind() == reflect.Interface {
			optional = true
		}
		s.Fields = append(s.Fields, Field{
			Name:     name,
			Optional: optional,
			index:    i,
			shape:    sh,
			typ:      sf.Type,
		})
	}

	actual, _ := schemas.LoadOrStore(typ, s)
	return actual.(*Schema), nil
}

// parseTag reads `ki:"name,optional"`. Optional lets Decode accept a missing
// or nil value; on Encode only zero RDF terms, times and TermUnmarshaler
// values are left out, never zero Go scalars.
func parseTag(sf reflect.StructField) (name string, optional bool) {
	tag, ok := sf.Tag.Lookup("ki")
	if !ok {
		return snakeCase(sf.Name), false
	}
	name, rest, _ := strings.Cut(tag, ",")
	if name == "-" {
		return "", false
	}
	if name == "" {
		name = snakeCase(sf.Name)
	}
	for _, opt := range strings.Split(rest, ",") {
		if opt == "optional" {
			optional = true
		}
	}
	return name, optional
}

func shapeOf(t reflect.Type) (shape, bool) {
	if t == termType {
		return shapeTerm, true
	}
	if reflect.PointerTo(t).Implements(unmarshalerType) {
		return shapeCustom, true
	}
	if t.Kind() == reflect.Pointer {
		if t.Elem().Kind() == reflect.Pointer {
			return 0, false
		}
		return shapeOf(t.Elem())
	}
	switch t {
	case literalType, timeType:
		return shapeLiteral, true
	case uriRefType:
		return shapeURI, true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return shapeLiteral, true
	}
	return 0, false
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
