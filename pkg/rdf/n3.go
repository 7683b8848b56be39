package rdf

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	integerPattern = regexp.MustCompile(`^[+-]?[0-9]+$`)
	decimalPattern = regexp.MustCompile(`^[+-]?[0-9]*\.[0-9]+$`)
	doublePattern  = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)[eE][+-]?[0-9]+$`)
	langPattern    = regexp.MustCompile(`^[a-zA-Z]+(-[a-zA-Z0-9]+)*$`)
)

// DefaultPrefixes are the namespaces a prefixed name may use without
// declaring them.
var DefaultPrefixes = map[string]string{
	"rdf":  RDFNamespace,
	"rdfs": RDFSNamespace,
	"xsd":  XSDNamespace,
	"owl":  OWLNamespace,
}

// ParseN3 parses a single term in N3 wire form.
//
// Accepted forms: <iri>, "literal" / 'literal' / """long literal""" with an
// optional @lang or ^^datatype, _:blank, integers, decimals, doubles,
// true/false, and prefixed names over DefaultPrefixes.
func ParseN3(s string) (Term, error) {
	return ParseN3WithPrefixes(s, nil)
}

// ParseN3WithPrefixes parses a term, expanding prefixed names with prefixes
// before falling back to DefaultPrefixes.
func ParseN3WithPrefixes(s string, prefixes map[string]string) (Term, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty term")
	}

	switch {
	case s[0] == '<':
		if !strings.HasSuffix(s, ">") {
			return nil, fmt.Errorf("unterminated IRI %q", s)
		}
		return URIRef(s[1 : len(s)-1]), nil
	case s[0] == '"' || s[0] == '\'':
		return parseLiteral(s, prefixes)
	case strings.HasPrefix(s, "_:"):
		return BlankNode(s[2:]), nil
	case s == "true" || s == "false":
		return Literal{Lexical: s, Datatype: XSDBoolean}, nil
	case integerPattern.MatchString(s):
		return Literal{Lexical: s, Datatype: XSDInteger}, nil
	case decimalPattern.MatchString(s):
		return Literal{Lexical: s, Datatype: XSDDecimal}, nil
	case doublePattern.MatchString(s):
		return Literal{Lexical: s, Datatype: XSDDouble}, nil
	case strings.Contains(s, ":"):
		iri, err := expand(s, prefixes)
		if err != nil {
			return nil, err
		}
		return URIRef(iri), nil
	}
	return nil, fmt.Errorf("unsupported term %q", s)
}

// MustParseN3 is ParseN3 that panics on error. Intended for constants in tests
// and declarations.
func MustParseN3(s string) Term {
	t, err := ParseN3(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseLiteral(s string, prefixes map[string]string) (Term, error) {
	quote := s[:1]
	if strings.HasPrefix(s, quote+quote+quote) && len(s) >= 6 {
		quote = quote + quote + quote
	}

	body, rest, err := scanQuoted(s[len(quote):], quote)
	if err != nil {
		return nil, fmt.Errorf("literal %q: %w", s, err)
	}

	lit := Literal{Lexical: body}
	switch {
	case rest == "":
	case strings.HasPrefix(rest, "@"):
		lang := rest[1:]
		if !langPattern.MatchString(lang) {
			return nil, fmt.Errorf("invalid language tag %q", lang)
		}
		lit.Lang = lang
	case strings.HasPrefix(rest, "^^"):
		dt := rest[2:]
		if strings.HasPrefix(dt, "<") && strings.HasSuffix(dt, ">") {
			lit.Datatype = dt[1 : len(dt)-1]
		} else {
			iri, err := expand(dt, prefixes)
			if err != nil {
				return nil, fmt.Errorf("literal datatype: %w", err)
			}
			lit.Datatype = iri
		}
	default:
		return nil, fmt.Errorf("unexpected %q after literal", rest)
	}
	return lit, nil
}

// scanQuoted reads up to the closing quote, resolving escapes, and returns the
// unescaped body and whatever follows the closing quote.
func scanQuoted(s, quote string) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			if i+1 >= len(s) {
				return "", "", fmt.Errorf("dangling escape")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		if strings.HasPrefix(s[i:], quote) {
			return b.String(), s[i+len(quote):], nil
		}
		b.WriteByte(c)
	}
	return "", "", fmt.Errorf("unterminated literal")
}

func expand(name string, prefixes map[string]string) (string, error) {
	if name == "rdf:nil" {
		return NilURI, nil
	}
	idx := strings.Index(name, ":")
	prefix, local := name[:idx], name[idx+1:]
	if ns, ok := prefixes[prefix]; ok {
		return ns + local, nil
	}
	if ns, ok := DefaultPrefixes[prefix]; ok {
		return ns + local, nil
	}
	return "", fmt.Errorf("unknown prefix %q in %q", prefix, name)
}
