package raven

import (
	"errors"
	"fmt"
)

// Sentinel errors for client construction.
var (
	// ErrNoFactoryAvailable indicates no registered or discovered factory
	// produced a client.
	ErrNoFactoryAvailable = errors.New("no client factory available")

	// ErrNoDSN indicates autodetection found no DSN.
	ErrNoDSN = errors.New("no DSN configured")

	// ErrNilSender indicates NewClient was called without a sender.
	ErrNilSender = errors.New("sender cannot be nil")

	// ErrUnknownScheme indicates no sender is registered for a DSN scheme.
	ErrUnknownScheme = errors.New("no sender registered for scheme")
)

// FactoryNotFoundError is returned by ResolveNamed when no factory has the
// requested name.
type FactoryNotFoundError struct {
	// Name is the requested factory name.
	Name string
}

// Error implements the error interface.
func (e *FactoryNotFoundError) Error() string {
	return fmt.Sprintf("client factory %q not found", e.Name)
}

// ClientInstantiationError wraps a failure raised by a factory, including
// panics and nil clients.
type ClientInstantiationError struct {
	// Factory is the name of the factory that failed.
	Factory string
	// Err is the underlying cause.
	Err error

	// exhausted marks the error returned when every candidate failed.
	exhausted bool
}

// Error implements the error interface.
func (e *ClientInstantiationError) Error() string {
	return fmt.Sprintf("client factory %s: %v", e.Factory, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ClientInstantiationError) Unwrap() error {
	return e.Err
}

// Is matches ErrNoFactoryAvailable when every candidate factory failed.
func (e *ClientInstantiationError) Is(target error) bool {
	return e.exhausted && target == ErrNoFactoryAvailable
}

// PanicError is the cause recorded when a factory panics.
type PanicError struct {
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("factory panicked: %v", e.Value)
}
