package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/BlueBird-project/ke-client-go/pkg/bindings"
	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/pattern"
)

// Interaction is a declared knowledge interaction. The broker identifier is
// set by Registry.Assign once registration succeeds.
type Interaction struct {
	Name     string
	Kind     Kind
	Pattern  *pattern.GraphPattern
	Prefixes map[string]string

	handler Handler
	args    *bindings.Schema
	result  *bindings.Schema
	reg     *Registry
	id      string
}

// ID returns the broker identifier, empty until registered.
func (ki *Interaction) ID() string {
	ki.reg.mu.RLock()
	defer ki.reg.mu.RUnlock()
	return ki.id
}

// Vars returns the argument pattern variables.
func (ki *Interaction) Vars() []string { return ki.Pattern.Vars() }

// ResultVars returns the variables a result binding may carry.
func (ki *Interaction) ResultVars() []string { return ki.resultVars() }

func (ki *Interaction) resultVars() []string {
	switch ki.Kind {
	case KindPost, KindReact:
		return ki.Pattern.ResultVars()
	}
	return ki.Pattern.Vars()
}

// emitVars is the variable set outgoing bindings are checked against.
func (ki *Interaction) emitVars() []string {
	if ki.Kind == KindReact {
		return ki.Pattern.ResultVars()
	}
	return ki.Pattern.Vars()
}

func (ki *Interaction) requireID(op string) (string, error) {
	id := ki.ID()
	if id == "" {
		return "", kerrors.Contract(op, kerrors.ErrNotRegistered, "%s has no knowledge interaction id, is the interaction registered?", ki.Name)
	}
	return id, nil
}

// Outgoing prepares the binding set of an ASK or POST call: the interaction
// must be registered, values are normalized (nil means one empty binding),
// ASK checks required bindings and every key must be a pattern variable.
func (ki *Interaction) Outgoing(values any) (string, bindings.Set, error) {
	op := ki.Kind.Role() + " " + ki.Name
	if ki.Kind.Passive() {
		return "", nil, kerrors.Contract(op, nil, "%s interactions are not invoked by the client", ki.Kind)
	}
	id, err := ki.requireID(op)
	if err != nil {
		return "", nil, err
	}

	set, err := bindings.Normalize(values)
	if err != nil {
		return "", nil, kerrors.Contract(op, err, "%v", err)
	}
	if set == nil {
		set = bindings.Set{{}}
	}

	if ki.Kind == KindAsk {
		for _, b := range set {
			if err := ki.Pattern.VerifyRequired(b); err != nil {
				return "", nil, kerrors.Contract(op, err, "%v", err)
			}
		}
	}
	if err := checkKeys(op, set, ki.emitVars()); err != nil {
		return "", nil, err
	}
	return id, set, nil
}

// Invoke runs the handler of a REACT or ANSWER interaction on an inbound
// binding set and validates its result.
func (ki *Interaction) Invoke(ctx context.Context, in bindings.Set) (bindings.Set, error) {
	op := ki.Kind.Role() + " " + ki.Name
	if !ki.Kind.Passive() {
		return nil, kerrors.Contract(op, nil, "%s interactions have no handler", ki.Kind)
	}
	id, err := ki.requireID(op)
	if err != nil {
		return nil, err
	}

	if ki.Kind == KindAnswer {
		for _, b := range in {
			if err := ki.Pattern.VerifyRequired(b); err != nil {
				return nil, kerrors.Contract(op, err, "%v", err)
			}
		}
	}

	out, err := ki.handle(ctx, id, in)
	if err != nil {
		return nil, fmt.Errorf("%s handler: %w", ki.Name, err)
	}
	if out == nil {
		out = bindings.Set{}
	}

	if err := checkConsistent(op, in, out); err != nil {
		return nil, err
	}
	if err := checkKeys(op, out, ki.emitVars()); err != nil {
		return nil, err
	}
	return out, nil
}

// handle calls the handler, turning a panic into an ErrHandlerPanic error.
func (ki *Interaction) handle(ctx context.Context, id string, in bindings.Set) (out bindings.Set, err error) {
	defer func() {
		if p := recover(); p != nil {
			ki.reg.logger.Error("panic recovered", "ki_name", ki.Name, "error", p, "stack", string(debug.Stack()))
			out, err = nil, fmt.Errorf("%w: %v", kerrors.ErrHandlerPanic, p)
		}
	}()
	return ki.handler.Handle(ctx, id, in)
}

// checkConsistent fails when an output value for a key shared with the input
// matches none of the input values for that key.
func checkConsistent(op string, in, out bindings.Set) error {
	inValues := in.Values()
	var bad []string
	for _, b := range out {
		for _, k := range b.Keys() {
			allowed, shared := inValues[k]
			if !shared || contains(allowed, b[k]) {
				continue
			}
			bad = append(bad, b[k])
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return kerrors.Contract(op, kerrors.ErrBindingMismatch, "input bindings don't match output bindings: %s", strings.Join(bad, ", "))
}

func checkKeys(op string, set bindings.Set, vars []string) error {
	known := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		known[v] = struct{}{}
	}
	var unknown []string
	for _, k := range set.Keys() {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return kerrors.Contract(op, kerrors.ErrUnknownVariable, "binding keys not in pattern: %s", strings.Join(unknown, ", "))
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (r *Registry) defaultHandler() Handler {
	return HandlerFunc(func(_ context.Context, kiID string, in bindings.Set) (bindings.Set, error) {
		r.logger.Info("knowledge interaction handled by default handler", "ki_id", kiID, "bindings", len(in))
		return bindings.Set{{}}, nil
	})
}
