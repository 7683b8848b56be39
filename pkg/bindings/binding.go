// Package bindings converts between binding objects (tagged Go structs) and
// the wire form exchanged with the broker: maps from variable name to an RDF
// term rendered in N3.
package bindings

import (
	"fmt"
	"reflect"
	"sort"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/rdf"
)

// Binding maps variable names to N3-rendered terms.
type Binding map[string]string

// Set is an ordered sequence of bindings.
type Set []Binding

// Keys returns the sorted variable names of b.
func (b Binding) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of b.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Term parses the value under key. ok is false when the key is absent.
func (b Binding) Term(key string) (t rdf.Term, ok bool, err error) {
	v, ok := b[key]
	if !ok {
		return nil, false, nil
	}
	t, err = rdf.ParseN3(v)
	return t, true, err
}

// Maps returns the set as plain maps, the shape the broker's JSON uses.
func (s Set) Maps() []map[string]string {
	out := make([]map[string]string, len(s))
	for i, b := range s {
		out[i] = map[string]string(b)
	}
	return out
}

// Values collects every value each key takes across the set.
func (s Set) Values() map[string][]string {
	out := make(map[string][]string)
	for _, b := range s {
		for k, v := range b {
			out[k] = append(out[k], v)
		}
	}
	return out
}

// Keys returns the sorted union of keys across the set.
func (s Set) Keys() []string {
	seen := make(map[string]struct{})
	for _, b := range s {
		for k := range b {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize turns the values a handler may return into a Set. It accepts
// nil, Binding, Set, []Binding, map[string]string, []map[string]string, a
// binding object, a pointer to one, or a slice of either. nil yields a nil
// Set; callers decide what an empty result means for their interaction type.
func Normalize(v any, opts ...EncodeOption) (Set, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case Set:
		return x, nil
	case []Binding:
		return Set(x), nil
	case Binding:
		return Set{x}, nil
	case map[string]string:
		return Set{Binding(x)}, nil
	case []map[string]string:
		out := make(Set, len(x))
		for i, m := range x {
			out[i] = Binding(m)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			b, err := Encode(v, opts...)
			if err != nil {
				return nil, err
			}
			return Set{b}, nil
		}
	case reflect.Struct:
		b, err := Encode(v, opts...)
		if err != nil {
			return nil, err
		}
		return Set{b}, nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		return EncodeSet(v, opts...)
	}
	return nil, kerrors.Contract("normalize", nil, "cannot convert %T to a binding set", v)
}

// ConvertValue converts a term to a Go value for business logic: literals go
// through conv, the nil sentinel (or a nil term) yields nil, and any other
// URI reference is an error.
func ConvertValue[T any](term rdf.Term, conv func(string) (T, error)) (*T, error) {
	if term == nil || rdf.IsNil(term) {
		return nil, nil
	}
	lit, ok := term.(rdf.Literal)
	if !ok {
		return nil, kerrors.Contract("convert value", nil, "%s is not a literal", term.N3())
	}
	v, err := conv(lit.Lexical)
	if err != nil {
		return nil, fmt.Errorf("convert %q: %w", lit.Lexical, err)
	}
	return &v, nil
}
