// Package registry holds the knowledge interactions a client declares and
// enforces their binding contracts when they are invoked or dispatched.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BlueBird-project/ke-client-go/pkg/bindings"
	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/pattern"
)

// Registry maps qualified interaction names and broker identifiers to
// declared interactions. Safe for concurrent use.
type Registry struct {
	catalog *pattern.Catalog
	logger  *slog.Logger

	mu     sync.RWMutex
	byName map[string]*Interaction
	byID   map[string]*Interaction
	order  []*Interaction
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for declarations and the default handler.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry over catalog.
func New(catalog *pattern.Catalog, opts ...Option) *Registry {
	r := &Registry{
		catalog: catalog,
		logger:  slog.Default(),
		byName:  make(map[string]*Interaction),
		byID:    make(map[string]*Interaction),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the catalog interactions are declared against.
func (r *Registry) Catalog() *pattern.Catalog { return r.catalog }

type declaration struct {
	args   any
	result any
}

// DeclareOption configures a declaration.
type DeclareOption func(*declaration)

// WithArgs declares the binding object of the argument pattern.
func WithArgs(obj any) DeclareOption {
	return func(d *declaration) { d.args = obj }
}

// WithResult declares the binding object of the result.
func WithResult(obj any) DeclareOption {
	return func(d *declaration) { d.result = obj }
}

// Post declares a POST interaction over the named pattern.
func (r *Registry) Post(name string, opts ...DeclareOption) (*Interaction, error) {
	return r.declare(KindPost, name, nil, opts)
}

// Ask declares an ASK interaction over the named pattern.
func (r *Registry) Ask(name string, opts ...DeclareOption) (*Interaction, error) {
	return r.declare(KindAsk, name, nil, opts)
}

// React declares a REACT interaction. A nil handler logs the request and
// replies with one empty binding.
func (r *Registry) React(name string, h Handler, opts ...DeclareOption) (*Interaction, error) {
	return r.declare(KindReact, name, h, opts)
}

// Answer declares an ANSWER interaction. A nil handler logs the request and
// replies with one empty binding.
func (r *Registry) Answer(name string, h Handler, opts ...DeclareOption) (*Interaction, error) {
	return r.declare(KindAnswer, name, h, opts)
}

func (r *Registry) declare(kind Kind, name string, h Handler, opts []DeclareOption) (*Interaction, error) {
	var d declaration
	for _, opt := range opts {
		opt(&d)
	}

	gp, err := r.catalog.Lookup(name)
	if err != nil {
		return nil, err
	}
	qualified := gp.Qualify(kind.Role())
	op := "declare " + qualified.Name

	if h == nil && kind.Passive() {
		h = r.defaultHandler()
	}
	if s, ok := h.(shaped); ok {
		in, out := s.Shapes()
		if d.args == nil {
			d.args = in
		}
		if d.result == nil {
			d.result = out
		}
	}

	ki := &Interaction{
		Name:     qualified.Name,
		Kind:     kind,
		Pattern:  qualified,
		Prefixes: r.catalog.MergedPrefixes(gp),
		handler:  h,
		reg:      r,
	}

	if d.args != nil {
		if ki.args, err = bindings.SchemaOf(d.args); err != nil {
			return nil, kerrors.Config(op, err, "argument object: %v", err)
		}
		if err := matchFields(op, "argument", ki.args.Names(), qualified.Vars()); err != nil {
			return nil, err
		}
	}
	if d.result != nil {
		if kind == KindPost && !qualified.HasResultPattern() {
			return nil, kerrors.Config(op, nil, "result object declared but %s has no result pattern", name)
		}
		if ki.result, err = bindings.SchemaOf(d.result); err != nil {
			return nil, kerrors.Config(op, err, "result object: %v", err)
		}
		if err := matchFields(op, "result", ki.result.Names(), ki.resultVars()); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[ki.Name]; dup {
		return nil, kerrors.Config(op, kerrors.ErrDuplicateInteraction, "%s already declared", ki.Name)
	}
	r.byName[ki.Name] = ki
	r.order = append(r.order, ki)

	r.logger.Debug("declared knowledge interaction", "name", ki.Name, "type", kind.WireType(), "vars", qualified.Vars())
	return ki, nil
}

// matchFields requires an exact two-way match between object fields and
// pattern variables.
func matchFields(op, what string, fields, vars []string) error {
	extra := difference(fields, vars)
	missing := difference(vars, fields)
	if len(extra) == 0 && len(missing) == 0 {
		return nil
	}
	var parts []string
	if len(extra) > 0 {
		parts = append(parts, fmt.Sprintf("fields not in pattern: %s", strings.Join(extra, ", ")))
	}
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("pattern variables without field: %s", strings.Join(missing, ", ")))
	}
	return kerrors.Config(op, nil, "%s object does not match pattern (%s)", what, strings.Join(parts, "; "))
}

// difference returns the sorted elements of a missing from b.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := in[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Lookup returns the interaction declared under the qualified name.
func (r *Registry) Lookup(name string) (*Interaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ki, ok := r.byName[name]
	return ki, ok
}

// ByID returns the interaction the broker knows under id.
func (r *Registry) ByID(id string) (*Interaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ki, ok := r.byID[id]
	return ki, ok
}

// Interactions returns every declared interaction in declaration order.
func (r *Registry) Interactions() []*Interaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Interaction(nil), r.order...)
}

// Assign records the broker identifier of a declared interaction.
func (r *Registry) Assign(name, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ki, ok := r.byName[name]
	if !ok {
		return kerrors.Config("assign "+name, nil, "%s is not declared", name)
	}
	if ki.id != "" {
		delete(r.byID, ki.id)
	}
	ki.id = id
	r.byID[id] = ki
	return nil
}

// ResetIDs forgets every broker identifier, ahead of re-registration.
func (r *Registry) ResetIDs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ki := range r.order {
		ki.id = ""
	}
	r.byID = make(map[string]*Interaction)
}

// Registered reports whether every declared interaction has an identifier.
func (r *Registry) Registered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ki := range r.order {
		if ki.id == "" {
			return false
		}
	}
	return true
}
