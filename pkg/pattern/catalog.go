package pattern

import (
	"sort"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
)

// Catalog is the loaded knowledge-base description: identity details plus the
// named graph patterns interactions are declared against.
type Catalog struct {
	KBName        string
	KBDescription string
	ReasonerLevel int
	Prefixes      map[string]string
	Patterns      map[string]*GraphPattern
}

// NewCatalog builds a catalog and stamps each pattern with its map key.
func NewCatalog(name, description string, prefixes map[string]string, patterns map[string]*GraphPattern) *Catalog {
	if prefixes == nil {
		prefixes = map[string]string{}
	}
	if patterns == nil {
		patterns = map[string]*GraphPattern{}
	}
	for key, gp := range patterns {
		if gp.Name == "" {
			gp.Name = key
		}
	}
	return &Catalog{
		KBName:        name,
		KBDescription: description,
		ReasonerLevel: 1,
		Prefixes:      prefixes,
		Patterns:      patterns,
	}
}

// Lookup returns the named pattern or a configuration error.
func (c *Catalog) Lookup(name string) (*GraphPattern, error) {
	gp, ok := c.Patterns[name]
	if !ok {
		return nil, kerrors.Config("lookup "+name, kerrors.ErrUnknownPattern, "%s graph pattern is not defined", name)
	}
	return gp, nil
}

// Names returns the sorted pattern names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Patterns))
	for name := range c.Patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergedPrefixes overlays the pattern's own prefixes on the catalog prefixes.
func (c *Catalog) MergedPrefixes(gp *GraphPattern) map[string]string {
	merged := make(map[string]string, len(c.Prefixes)+len(gp.Prefixes))
	for k, v := range c.Prefixes {
		merged[k] = v
	}
	for k, v := range gp.Prefixes {
		merged[k] = v
	}
	return merged
}

// Validate checks the knowledge base name and reasoner level.
func (c *Catalog) Validate() error {
	if c.KBName == "" {
		return kerrors.Config("catalog", nil, "knowledge base name is empty")
	}
	if c.ReasonerLevel < 1 || c.ReasonerLevel > 4 {
		return kerrors.Config("catalog", nil, "reasoner level must be between 1 and 4, got %d", c.ReasonerLevel)
	}
	return nil
}
