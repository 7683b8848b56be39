// Package uritemplate maps structs to and from URIs built from templates
// such as "ts/${ts_id}/${start}/${step}".
package uritemplate

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/rdf"
)

const separator = "/"

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Fields with these names carry metadata and never map to a placeholder.
const (
	prefixField   = "Prefix"
	uriField      = "URI"
	templateField = "URITemplate"
)

type options struct {
	allowPartial bool
	allowNone    bool
	allowExtra   bool
}

// Option configures a Template.
type Option func(*options)

// AllowPartial lets the template carry placeholders with no matching field.
// Their captures are ignored on Parse.
func AllowPartial() Option { return func(o *options) { o.allowPartial = true } }

// AllowNone lets Build substitute an empty string for absent values.
func AllowNone() Option { return func(o *options) { o.allowNone = true } }

// AllowExtra lets the struct carry fields that no placeholder mentions.
func AllowExtra() Option { return func(o *options) { o.allowExtra = true } }

// Template is a compiled URI template bound to the struct type T.
type Template[T any] struct {
	raw      string
	re       *regexp.Regexp
	names    []string
	fields   map[string]int
	prefix   int
	uri      int
	template int
	opts     options
}

// New compiles template for T. Every exported field of T that is not
// exempt must correspond to a placeholder, and every placeholder to a field,
// unless relaxed by options.
func New[T any](template string, opts ...Option) (*Template[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, kerrors.Config("uritemplate", nil, "%s is not a struct", typ)
	}

	t := &Template[T]{
		raw:      template,
		fields:   make(map[string]int),
		prefix:   -1,
		uri:      -1,
		template: -1,
		opts:     o,
	}

	var expr strings.Builder
	expr.WriteString("^")
	last := 0
	seen := make(map[string]bool)
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(template, -1) {
		name := template[loc[2]:loc[3]]
		if seen[name] {
			return nil, kerrors.Config("uritemplate", nil, "placeholder %q repeated in %q", name, template)
		}
		seen[name] = true
		t.names = append(t.names, name)
		expr.WriteString(regexp.QuoteMeta(template[last:loc[0]]))
		expr.WriteString(`([^/]+)`)
		last = loc[1]
	}
	expr.WriteString(regexp.QuoteMeta(template[last:]))
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, kerrors.Config("uritemplate", err, "compile %q", template)
	}
	t.re = re

	var extra []string
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		switch f.Name {
		case prefixField:
			t.prefix = i
			continue
		case uriField:
			t.uri = i
			continue
		case templateField:
			t.template = i
			continue
		}
		name := fieldName(f)
		if name == "" {
			continue
		}
		if !seen[name] {
			extra = append(extra, name)
			continue
		}
		if !supported(f.Type) {
			return nil, kerrors.Config("uritemplate", nil, "field %s has unsupported type %s", f.Name, f.Type)
		}
		t.fields[name] = i
	}

	if len(extra) > 0 && !o.allowExtra {
		return nil, kerrors.Config("uritemplate", nil, "fields %v have no placeholder in %q", extra, template)
	}
	if !o.allowPartial {
		var missing []string
		for _, name := range t.names {
			if _, ok := t.fields[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, kerrors.Config("uritemplate", nil, "placeholders %v have no field in %s", missing, typ)
		}
	}
	return t, nil
}

// MustNew is New that panics on error.
func MustNew[T any](template string, opts ...Option) *Template[T] {
	t, err := New[T](template, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the raw template.
func (t *Template[T]) String() string { return t.raw }

// Placeholders returns the placeholder names in template order.
func (t *Template[T]) Placeholders() []string {
	return append([]string(nil), t.names...)
}

// Parse strips prefix from uri, matches the rest and fills a T from the
// captures.
func (t *Template[T]) Parse(uri, prefix string) (T, error) {
	var out T
	prefix = NormalizePrefix(prefix)
	if !strings.HasPrefix(uri, prefix) {
		return out, kerrors.Contract("uritemplate parse", nil, "%q does not start with prefix %q", uri, prefix)
	}
	m := t.re.FindStringSubmatch(uri[len(prefix):])
	if m == nil {
		return out, kerrors.Contract("uritemplate parse", nil, "%q does not match template %q", uri, t.raw)
	}

	v := reflect.ValueOf(&out).Elem()
	for i, name := range t.names {
		idx, ok := t.fields[name]
		if !ok {
			continue
		}
		if err := setField(v.Field(idx), m[i+1]); err != nil {
			return out, kerrors.Contract("uritemplate parse", err, "field %s", name)
		}
	}
	setString(v, t.prefix, prefix)
	setString(v, t.uri, uri)
	setString(v, t.template, t.raw)
	return out, nil
}

// Build renders v into a URI under prefix. An empty prefix falls back to the
// value's Prefix field when it has one.
func (t *Template[T]) Build(v T, prefix string) (string, error) {
	rv := reflect.ValueOf(v)
	if prefix == "" && t.prefix >= 0 && rv.Field(t.prefix).Kind() == reflect.String {
		prefix = rv.Field(t.prefix).String()
	}

	values := make(map[string]string, len(t.names))
	for _, name := range t.names {
		s, present := "", false
		if idx, ok := t.fields[name]; ok {
			s, present = format(rv.Field(idx))
		}
		if !present || s == "" {
			if !t.opts.allowNone {
				return "", kerrors.Contract("uritemplate build", nil, "%s is empty", name)
			}
		}
		if strings.Contains(s, separator) {
			return "", kerrors.Contract("uritemplate build", nil, "%s value %q contains %q", name, s, separator)
		}
		values[name] = s
	}

	path := placeholderPattern.ReplaceAllStringFunc(t.raw, func(ph string) string {
		return values[ph[2:len(ph)-1]]
	})
	return NormalizePrefix(prefix) + path, nil
}

// URIRef builds v as an RDF URI reference.
func (t *Template[T]) URIRef(v T, prefix string) (rdf.URIRef, error) {
	s, err := t.Build(v, prefix)
	if err != nil {
		return "", err
	}
	return rdf.URIRef(s), nil
}

// N3 builds v and renders it in wire form.
func (t *Template[T]) N3(v T, prefix string) (string, error) {
	ref, err := t.URIRef(v, prefix)
	if err != nil {
		return "", err
	}
	return ref.N3(), nil
}

// NormalizePrefix makes a non-empty prefix end with a separator.
func NormalizePrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, separator) {
		return prefix
	}
	return prefix + separator
}

func fieldName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("uri"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return snakeCase(f.Name)
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

func supported(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func format(v reflect.Value) (string, bool) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), v.String() != ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), true
	}
	return "", false
}

func setField(f reflect.Value, s string) error {
	if f.Kind() == reflect.Pointer {
		p := reflect.New(f.Type().Elem())
		if err := setField(p.Elem(), s); err != nil {
			return err
		}
		f.Set(p)
		return nil
	}
	switch f.Kind() {
	case reflect.String:
		f.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, f.Type().Bits())
		if err != nil {
			return fmt.Errorf("convert %q to %s: %w", s, f.Type(), err)
		}
		f.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, f.Type().Bits())
		if err != nil {
			return fmt.Errorf("convert %q to %s: %w", s, f.Type(), err)
		}
		f.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, f.Type().Bits())
		if err != nil {
			return fmt.Errorf("convert %q to %s: %w", s, f.Type(), err)
		}
		f.SetFloat(n)
	default:
		return fmt.Errorf("unsupported type %s", f.Type())
	}
	return nil
}

func setString(v reflect.Value, idx int, s string) {
	if idx < 0 {
		return
	}
	if f := v.Field(idx); f.Kind() == reflect.String && f.CanSet() {
		f.SetString(s)
	}
}
