package registry

import (
	"context"
	"reflect"

	"github.com/BlueBird-project/ke-client-go/pkg/bindings"
)

// Handler answers an inbound REACT or ANSWER request.
type Handler interface {
	Handle(ctx context.Context, kiID string, in bindings.Set) (bindings.Set, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, kiID string, in bindings.Set) (bindings.Set, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, kiID string, in bindings.Set) (bindings.Set, error) {
	return f(ctx, kiID, in)
}

// shaped is implemented by handlers that declare their binding objects.
type shaped interface {
	Shapes() (in, out reflect.Type)
}

type typed[In, Out any] struct {
	fn func(ctx context.Context, kiID string, in []In) ([]Out, error)
}

// Typed wraps a function over binding objects. The In and Out types are
// checked against the pattern when the interaction is declared.
func Typed[In, Out any](fn func(ctx context.Context, kiID string, in []In) ([]Out, error)) Handler {
	return typed[In, Out]{fn: fn}
}

func (t typed[In, Out]) Handle(ctx context.Context, kiID string, in bindings.Set) (bindings.Set, error) {
	rows, err := bindings.DecodeSet[In](in)
	if err != nil {
		return nil, err
	}
	out, err := t.fn(ctx, kiID, rows)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return bindings.EncodeSet(out)
}

func (t typed[In, Out]) Shapes() (reflect.Type, reflect.Type) {
	return reflect.TypeOf((*In)(nil)).Elem(), reflect.TypeOf((*Out)(nil)).Elem()
}
