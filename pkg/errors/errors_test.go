package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifiedError(t *testing.T) {
	err := Contract("ask-measurement", ErrMissingBinding, "missing binding key %q", "x")

	assert.Equal(t, `missing binding key "x" in: ask-measurement`, err.Error())
	assert.True(t, IsContract(err))
	assert.False(t, IsConfig(err))
	assert.True(t, errors.Is(err, ErrMissingBinding))

	wrapped := fmt.Errorf("dispatch: %w", err)
	class, ok := ClassOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ClassContract, class)
}

func TestClassifiedError_NoMessage(t *testing.T) {
	err := &ClassifiedError{Class: ClassTransport, Err: errors.New("connection refused")}
	assert.Equal(t, "connection refused", err.Error())
	assert.True(t, IsTransport(err))
}

func TestClassString(t *testing.T) {
	tests := map[Class]string{
		ClassConfig:    "config",
		ClassContract:  "contract",
		ClassTransport: "transport",
		ClassBroker:    "broker",
		ClassDrift:     "drift",
		Class(42):      "unknown",
	}
	for class, want := range tests {
		assert.Equal(t, want, class.String())
	}
}

func TestClassOf_Unclassified(t *testing.T) {
	_, ok := ClassOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsBroker(nil))
}
