package potency

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against any error FetchOrCompute returns.
var (
	ErrSerialize   = errors.New("potency: serialize")
	ErrDeserialize = errors.New("potency: deserialize")
	ErrBackend     = errors.New("potency: backend")
	ErrCompute     = errors.New("potency: compute")
	ErrBind        = errors.New("potency: bind")
)

// SerializeError: a computed value could not be encoded. Nothing was stored.
type SerializeError struct {
	Key   string
	Codec string
	Err   error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("potency: serialize %q with %s: %v", e.Key, e.Codec, e.Err)
}

func (e *SerializeError) Unwrap() []error { return unwrap(ErrSerialize, e.Err) }

// DeserializeError: a stored value could not be decoded into the requested
// type. Either the entry is damaged or two callers disagree about the type
// stored under one key; retrying will not help.
type DeserializeError struct {
	Key   string
	Codec string
	Err   error
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("potency: deserialize %q with %s: %v", e.Key, e.Codec, e.Err)
}

func (e *DeserializeError) Unwrap() []error { return unwrap(ErrDeserialize, e.Err) }

// BackendError wraps a storage failure. Op is one of "acquire", "fetch",
// "store", "delete".
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("potency: backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("potency: backend %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() []error { return unwrap(ErrBackend, e.Err) }

// ComputeError carries the caller's own failure. It is never cached.
type ComputeError struct {
	Key string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("potency: compute %q: %v", e.Key, e.Err)
}

func (e *ComputeError) Unwrap() []error { return unwrap(ErrCompute, e.Err) }

// PanicError carries a value recovered from a computation that panicked on a
// shared flight.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// BindError reports a function/parameter mismatch or an unkeyable parameter.
type BindError struct {
	Reason string
	Err    error
}

func (e *BindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("potency: %s: %v", e.Reason, e.Err)
	}
	return "potency: " + e.Reason
}

func (e *BindError) Unwrap() []error { return unwrap(ErrBind, e.Err) }

func unwrap(sentinel, err error) []error {
	errs := make([]error, 0, 2)
	errs = append(errs, sentinel)
	if err != nil {
		errs = append(errs, err)
	}
	return errs
}
