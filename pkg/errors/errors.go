// Package errors classifies failures of the knowledge-exchange client so callers
// can tell declaration mistakes, binding contract violations, transport
// problems and broker-reported failures apart.
package errors

import (
	"errors"
	"fmt"
)

// Class is the failure category of a ClassifiedError.
type Class int

const (
	// ClassConfig covers unknown graph patterns, duplicate declarations and
	// invalid settings. Raised at declaration or load time.
	ClassConfig Class = iota
	// ClassContract covers binding violations detected at call time.
	ClassContract
	// ClassTransport covers connection refused, timeouts and unreadable responses.
	ClassTransport
	// ClassBroker covers FAILED exchanges and non-success broker responses.
	ClassBroker
	// ClassDrift means the broker no longer knows this knowledge base.
	ClassDrift
)

// String returns the lower-case class name.
func (c Class) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassContract:
		return "contract"
	case ClassTransport:
		return "transport"
	case ClassBroker:
		return "broker"
	case ClassDrift:
		return "drift"
	default:
		return "unknown"
	}
}

// Standard error variables.
var (
	ErrUnknownPattern       = errors.New("graph pattern is not defined")
	ErrDuplicateInteraction = errors.New("duplicate knowledge interaction")
	ErrNotRegistered        = errors.New("knowledge interaction has no broker id")
	ErrMissingBinding       = errors.New("missing binding key")
	ErrUnknownVariable      = errors.New("unknown binding variable")
	ErrBindingMismatch      = errors.New("input bindings don't match output bindings")
	ErrAlreadyStarted       = errors.New("client loop already started")
	ErrReconnectFailed      = errors.New("reconnect attempts exhausted")
	ErrExchangeFailed       = errors.New("knowledge exchange failed")
	ErrHandlerPanic         = errors.New("handler panicked")
)

// ClassifiedError wraps an error with its class and the operation that raised it.
type ClassifiedError struct {
	Class   Class
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s in: %s", msg, e.Op)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(class Class, op string, err error, format string, args ...any) *ClassifiedError {
	return &ClassifiedError{
		Class:   class,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// Config returns a configuration error.
func Config(op string, err error, format string, args ...any) error {
	return New(ClassConfig, op, err, format, args...)
}

// Contract returns a binding contract error.
func Contract(op string, err error, format string, args ...any) error {
	return New(ClassContract, op, err, format, args...)
}

// Transport returns a transport error.
func Transport(op string, err error, format string, args ...any) error {
	return New(ClassTransport, op, err, format, args...)
}

// Broker returns a broker-reported error.
func Broker(op string, err error, format string, args ...any) error {
	return New(ClassBroker, op, err, format, args...)
}

// ClassOf reports the class of err and whether err is classified at all.
func ClassOf(err error) (Class, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

func is(err error, class Class) bool {
	c, ok := ClassOf(err)
	return ok && c == class
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return is(err, ClassConfig) }

// IsContract reports whether err is a binding contract violation.
func IsContract(err error) bool { return is(err, ClassContract) }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return is(err, ClassTransport) }

// IsBroker reports whether err was reported by the broker.
func IsBroker(err error) bool { return is(err, ClassBroker) }

// IsDrift reports whether err means the broker forgot the knowledge base.
func IsDrift(err error) bool { return is(err, ClassDrift) }

// Is, As and Join re-export the standard helpers so callers importing this
// package under the name errors keep them.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)
