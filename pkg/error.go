package pkg

import (
	"context"
	"errors"
	"fmt"

	"github.com/hostusb/hostusb/host/native"
)

// Typed errors produced by the translation boundary. Every native failure
// surfaces as exactly one of these (or as a *NativeError for codes without a
// dedicated variant); callers match with errors.Is.
var (
	// ErrTimeout indicates the request did not complete within its timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrInvalidArgument indicates a malformed request or an argument the
	// native stack rejected, such as an unsupported alternate setting.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates no object exists at the requested identity:
	// no matching interface, no endpoint at an address, no stream at an ID.
	ErrNotFound = errors.New("not found")

	// ErrNotCapable indicates the operation is not supported by the handle,
	// such as stream operations on a non-stream-capable endpoint.
	ErrNotCapable = errors.New("not capable")

	// ErrAborted indicates the request was cancelled by an explicit abort.
	ErrAborted = errors.New("request aborted")

	// ErrDestroyed indicates an operation on an already-destroyed wrapper.
	// It is host-side state, never produced by Translate.
	ErrDestroyed = errors.New("object destroyed")
)

// NativeError carries a native status code that maps to no dedicated typed
// error, preserving the original code for diagnostics.
type NativeError struct {
	Code  native.Status
	Cause error // underlying error when the failure arrived as an error value
}

// Error returns a description including the original status code.
func (e *NativeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("native failure: %v", e.Cause)
	}
	return fmt.Sprintf("native failure: %s (%d)", e.Code, int32(e.Code))
}

// Unwrap returns the underlying cause, if any.
func (e *NativeError) Unwrap() error {
	return e.Cause
}

// Translate maps a native status code into the typed error set. The mapping
// is total: native.OK yields nil, recognized failure codes yield their typed
// error, and every other code yields a *NativeError carrying it. This is the
// only place raw status codes are interpreted.
func Translate(s native.Status) error {
	switch s {
	case native.OK:
		return nil
	case native.ETimeout:
		return ErrTimeout
	case native.EAborted:
		return ErrAborted
	case native.EBadArgument:
		return ErrInvalidArgument
	case native.ENotFound:
		return ErrNotFound
	case native.EUnsupported:
		return ErrNotCapable
	default:
		return &NativeError{Code: s}
	}
}

// TranslateErr maps a failure that arrived as an error value rather than a
// raw status code. Errors already belonging to the typed set pass through
// unchanged; context cancellation and deadline errors map to ErrAborted and
// ErrTimeout; anything else is wrapped as a generic native failure.
func TranslateErr(err error) error {
	if err == nil {
		return nil
	}
	for _, typed := range []error{ErrTimeout, ErrInvalidArgument, ErrNotFound, ErrNotCapable, ErrAborted, ErrDestroyed} {
		if errors.Is(err, typed) {
			return err
		}
	}
	var ne *NativeError
	if errors.As(err, &ne) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrAborted
	}
	return &NativeError{Code: native.EIO, Cause: err}
}
