package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/pattern"
)

const catalogSection = "knowledge_engine"

// $$, $name, ${name}, or a stray $.
var substitution = regexp.MustCompile(`\$(?:(\$)|([A-Za-z_][A-Za-z0-9_]*)|\{([A-Za-z_][A-Za-z0-9_]*)\}|)`)

type catalogFile struct {
	KBName        string                           `yaml:"kb_name"`
	KBDescription string                           `yaml:"kb_description"`
	Prefixes      map[string]string                `yaml:"prefixes"`
	GraphPatterns map[string]*pattern.GraphPattern `yaml:"graph_patterns"`
	Include       yaml.Node                        `yaml:"include"`
}

// Substitute replaces $name and ${name} with vars and $$ with $. Unknown
// names and a lone $ are errors.
func Substitute(text string, vars map[string]string) (string, error) {
	var missing []string
	var stray bool
	out := substitution.ReplaceAllStringFunc(text, func(m string) string {
		sub := substitution.FindStringSubmatch(m)
		switch {
		case sub[1] != "":
			return "$"
		case sub[2] != "" || sub[3] != "":
			name := sub[2] + sub[3]
			v, ok := vars[name]
			if !ok {
				missing = append(missing, name)
				return m
			}
			return v
		}
		stray = true
		return m
	})
	if len(missing) > 0 {
		return "", kerrors.Config("substitute", nil, "unknown variables: %s", strings.Join(missing, ", "))
	}
	if stray {
		return "", kerrors.Config("substitute", nil, "invalid placeholder: '$' must be followed by a name or '$'")
	}
	return out, nil
}

// LoadCatalog reads the knowledge interaction file named by the settings,
// substitutes variables and merges its includes.
func LoadCatalog(s *Settings) (*pattern.Catalog, error) {
	vars, err := s.Vars()
	if err != nil {
		return nil, err
	}
	return LoadCatalogFile(s.KIConfigPath, vars, s.ReasonerLevel)
}

// LoadCatalogFile loads path with vars. Included files are resolved
// relative to the including file. A pattern key may appear in only one
// included file; the main file's prefixes and patterns win over included
// ones.
func LoadCatalogFile(path string, vars map[string]string, reasonerLevel int) (*pattern.Catalog, error) {
	main, err := readCatalogFile(path, vars)
	if err != nil {
		return nil, err
	}
	if main.KBName == "" || main.KBDescription == "" {
		return nil, kerrors.Config("load "+path, nil, "kb_name and kb_description are required")
	}

	prefixes := map[string]string{}
	patterns := map[string]*pattern.GraphPattern{}

	includes, err := includePaths(path, &main.Include)
	if err != nil {
		return nil, err
	}
	for _, inc := range includes {
		sub, err := readCatalogFile(inc, vars)
		if err != nil {
			return nil, err
		}
		for key, gp := range sub.GraphPatterns {
			if _, dup := patterns[key]; dup {
				return nil, kerrors.Config("load "+inc, nil, "duplicate graph pattern key: '%s'", key)
			}
			patterns[key] = gp
		}
		for k, v := range sub.Prefixes {
			prefixes[k] = v
		}
	}

	for k, v := range main.Prefixes {
		prefixes[k] = v
	}
	for key, gp := range main.GraphPatterns {
		patterns[key] = gp
	}

	for key, gp := range patterns {
		if gp == nil {
			return nil, kerrors.Config("load "+path, nil, "graph pattern %s is empty", key)
		}
		if len(gp.Pattern) == 0 {
			return nil, kerrors.Config("load "+path, nil, "graph pattern %s has no pattern lines", key)
		}
	}

	catalog := pattern.NewCatalog(main.KBName, main.KBDescription, prefixes, patterns)
	if reasonerLevel != 0 {
		catalog.ReasonerLevel = reasonerLevel
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func readCatalogFile(path string, vars map[string]string) (*catalogFile, error) {
	op := "load " + path
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.Config(op, err, "KI config file: '%s' does not exist or is unreadable: %v", path, err)
	}
	text, err := Substitute(string(raw), vars)
	if err != nil {
		return nil, kerrors.Config(op, err, "%v", err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, kerrors.Config(op, err, "invalid YAML: %v", err)
	}
	node, ok := doc[catalogSection]
	if !ok {
		return nil, kerrors.Config(op, nil, "invalid setting section %s", catalogSection)
	}
	var cf catalogFile
	if err := node.Decode(&cf); err != nil {
		return nil, kerrors.Config(op, err, "invalid %s section: %v", catalogSection, err)
	}
	return &cf, nil
}

// includePaths accepts a single path or a list of paths.
func includePaths(from string, node *yaml.Node) ([]string, error) {
	var names []string
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		names = []string{node.Value}
	case yaml.SequenceNode:
		if err := node.Decode(&names); err != nil {
			return nil, kerrors.Config("load "+from, err, "invalid include list: %v", err)
		}
	default:
		return nil, kerrors.Config("load "+from, nil, "include must be a path or a list of paths")
	}

	dir := filepath.Dir(from)
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		out = append(out, name)
	}
	return out, nil
}
