package bindings

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/rdf"
)

// Timestamp layouts accepted when decoding a time field, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02",
}

type encodeOptions struct {
	includeNil bool
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeOptions)

// IncludeNil writes the nil sentinel for absent optional values instead of
// omitting them. Which values count as absent is decided per field type: an
// optional Go scalar such as 0, "" or false is sent as is.
func IncludeNil() EncodeOption {
	return func(o *encodeOptions) { o.includeNil = true }
}

// Encode renders a binding object into its wire binding.
func Encode(v any, opts ...EncodeOption) (Binding, error) {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, kerrors.Contract("encode", nil, "nil %T", v)
		}
		rv = rv.Elem()
	}
	schema, err := SchemaOf(rv.Type())
	if err != nil {
		return nil, err
	}

	out := make(Binding, len(schema.Fields))
	for _, f := range schema.Fields {
		fv := rv.Field(f.index)
		if absent(fv, f) {
			if o.includeNil {
				out[f.Name] = rdf.Nil.N3()
			}
			continue
		}
		out[f.Name] = render(fv)
	}
	return out, nil
}

// EncodeSet encodes a slice of binding objects.
func EncodeSet(v any, opts ...EncodeOption) (Set, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, kerrors.Contract("encode", nil, "%T is not a slice", v)
	}
	out := make(Set, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		b, err := Encode(rv.Index(i).Interface(), opts...)
		if err != nil {
			return nil, fmt.Errorf("binding %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Decode fills the binding object dst from b. Absent optional keys keep the
// field's current value; absent required keys fail.
func Decode(b Binding, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return kerrors.Contract("decode", nil, "destination must be a non-nil pointer to a struct, got %T", dst)
	}
	rv = rv.Elem()
	schema, err := SchemaOf(rv.Type())
	if err != nil {
		return err
	}

	for _, f := range schema.Fields {
		raw, ok := b[f.Name]
		if !ok {
			if f.Optional {
				continue
			}
			return kerrors.Contract("decode "+f.Name, kerrors.ErrMissingBinding, "missing binding key %q", f.Name)
		}
		term, err := rdf.ParseN3(raw)
		if err != nil {
			return kerrors.Contract("decode "+f.Name, err, "invalid term %q", raw)
		}
		if err := assign(rv.Field(f.index), f, term); err != nil {
			return kerrors.Contract("decode "+f.Name, err, "%v", err)
		}
	}
	return nil
}

// DecodeSet decodes every binding of s into a T.
func DecodeSet[T any](s Set) ([]T, error) {
	out := make([]T, len(s))
	for i, b := range s {
		if err := Decode(b, &out[i]); err != nil {
			return nil, fmt.Errorf("binding %d: %w", i, err)
		}
	}
	return out, nil
}

// absent reports a value Encode leaves out. Nil pointers and interfaces
// always are. Zero terms, times and TermUnmarshaler values are when the
// field is optional. Go scalars are always sent, zero or not: a missing
// scalar needs a pointer field.
func absent(v reflect.Value, f Field) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	if !f.Optional {
		return false
	}
	switch {
	case f.shape == shapeURI, f.shape == shapeCustom, f.typ == literalType, f.typ == timeType:
		return v.IsZero()
	}
	return false
}

func render(v reflect.Value) string {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	x := v.Interface()
	if m, ok := x.(n3Marshaler); ok {
		return m.N3()
	}
	if v.CanAddr() {
		if m, ok := v.Addr().Interface().(n3Marshaler); ok {
			return m.N3()
		}
	}
	switch x.(type) {
	case string, bool, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return rdf.NewLiteral(x).N3()
	}
	switch v.Kind() {
	case reflect.String:
		return rdf.NewLiteral(v.String()).N3()
	case reflect.Bool:
		return rdf.NewLiteral(v.Bool()).N3()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rdf.NewLiteral(v.Int()).N3()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rdf.NewLiteral(v.Uint()).N3()
	case reflect.Float32, reflect.Float64:
		return rdf.NewLiteral(v.Float()).N3()
	}
	return rdf.NewLiteral(fmt.Sprint(x)).N3()
}

func assign(fv reflect.Value, f Field, term rdf.Term) error {
	if rdf.IsNil(term) {
		switch {
		case f.Optional:
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		case f.shape == shapeURI:
			fv.Set(reflect.ValueOf(rdf.Nil))
			return nil
		case f.shape == shapeCustom:
		default:
			return fmt.Errorf("nil value for required field %s", f.Name)
		}
	}

	if fv.Kind() == reflect.Pointer {
		p := reflect.New(fv.Type().Elem())
		if err := assign(p.Elem(), Field{Name: f.Name, shape: f.shape, typ: f.typ.Elem()}, term); err != nil {
			return err
		}
		fv.Set(p)
		return nil
	}

	switch f.shape {
	case shapeCustom:
		return fv.Addr().Interface().(TermUnmarshaler).UnmarshalTerm(term)
	case shapeTerm:
		fv.Set(reflect.ValueOf(term))
		return nil
	case shapeURI:
		u, ok := term.(rdf.URIRef)
		if !ok {
			return fmt.Errorf("%s not allowed for a URI field", term.N3())
		}
		fv.Set(reflect.ValueOf(u))
		return nil
	}

	lit, ok := term.(rdf.Literal)
	if !ok {
		if _, isURI := term.(rdf.URIRef); isURI {
			return fmt.Errorf("non-nil URI reference not allowed for a literal field")
		}
		return fmt.Errorf("%s not allowed for a literal field", term.N3())
	}
	return setLiteral(fv, lit)
}

func setLiteral(fv reflect.Value, lit rdf.Literal) error {
	switch fv.Type() {
	case literalType:
		fv.Set(reflect.ValueOf(lit))
		return nil
	case timeType:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, lit.Lexical); err == nil {
				fv.Set(reflect.ValueOf(ts))
				return nil
			}
		}
		return fmt.Errorf("%q is not a timestamp", lit.Lexical)
	}

	s := lit.Lexical
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetFloat(n)
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}
