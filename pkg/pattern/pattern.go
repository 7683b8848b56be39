// Package pattern holds graph patterns: the templated triple patterns that
// constrain which variables a knowledge interaction may bind.
package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
)

// VariablePattern is the lexical rule for a pattern variable.
var VariablePattern = regexp.MustCompile(`\?[A-Za-z_][A-Za-z0-9_]*`)

// lineSeparator joins pattern lines the way the broker stores them.
const lineSeparator = "\n "

// ExtractVars returns the sorted, deduplicated variable names (without '?') in text.
func ExtractVars(text string) []string {
	seen := make(map[string]struct{})
	for _, m := range VariablePattern.FindAllString(text, -1) {
		seen[m[1:]] = struct{}{}
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// GraphPattern is a named argument pattern with an optional result pattern.
type GraphPattern struct {
	Name             string            `yaml:"name,omitempty" json:"name"`
	Description      string            `yaml:"description,omitempty" json:"description,omitempty"`
	Prefixes         map[string]string `yaml:"prefixes,omitempty" json:"prefixes,omitempty"`
	Pattern          []string          `yaml:"pattern" json:"pattern"`
	ResultPattern    []string          `yaml:"result_pattern,omitempty" json:"result_pattern,omitempty"`
	RequiredBindings []string          `yaml:"required_bindings,omitempty" json:"required_bindings,omitempty"`
}

// PatternText joins the argument pattern lines.
func (g *GraphPattern) PatternText() string {
	return strings.Join(g.Pattern, lineSeparator)
}

// HasResultPattern reports whether a result pattern was declared. A result
// pattern declared with no lines still counts as present.
func (g *GraphPattern) HasResultPattern() bool {
	return g.ResultPattern != nil
}

// ResultPatternText joins the result pattern lines; ok is false when no
// result pattern was declared.
func (g *GraphPattern) ResultPatternText() (text string, ok bool) {
	if !g.HasResultPattern() {
		return "", false
	}
	return strings.Join(g.ResultPattern, lineSeparator), true
}

// Vars returns the argument pattern variables.
func (g *GraphPattern) Vars() []string {
	return ExtractVars(g.PatternText())
}

// ResultVars returns the result pattern variables, empty when absent.
func (g *GraphPattern) ResultVars() []string {
	text, ok := g.ResultPatternText()
	if !ok {
		return []string{}
	}
	return ExtractVars(text)
}

// PrefixesOrEmpty never returns nil.
func (g *GraphPattern) PrefixesOrEmpty() map[string]string {
	if g.Prefixes == nil {
		return map[string]string{}
	}
	return g.Prefixes
}

// VerifyRequired checks that binding carries every required key and names
// the first one missing.
func (g *GraphPattern) VerifyRequired(binding map[string]string) error {
	for _, key := range g.RequiredBindings {
		if _, ok := binding[key]; !ok {
			return fmt.Errorf("%w %q in %s", kerrors.ErrMissingBinding, key, g.Name)
		}
	}
	return nil
}

// ResultBindings projects a result binding onto the result variables. It
// returns false when any result variable is missing.
func (g *GraphPattern) ResultBindings(binding map[string]string) (map[string]string, bool) {
	vars := g.ResultVars()
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		value, ok := binding[v]
		if !ok {
			return nil, false
		}
		out[v] = value
	}
	return out, true
}

// Qualify returns a copy named "{role}-{name}". Slices and maps are shared;
// patterns are not mutated after load.
func (g *GraphPattern) Qualify(role string) *GraphPattern {
	cp := *g
	cp.Name = role + "-" + g.Name
	return &cp
}
