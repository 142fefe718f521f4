// Package faults classifies pipeline failures so callers can tell an expected
// absence from a fatal misconfiguration or a remote definition that could not
// be brought in line with its prompt.
package faults

import (
	"errors"
	"fmt"
)

// Sentinel errors usable with errors.Is.
var (
	// ErrNotFound marks an expected absence (flow, alias, data source).
	ErrNotFound = errors.New("not found")

	// ErrConfiguration marks a missing identifier or an uninitialized handle.
	ErrConfiguration = errors.New("configuration error")

	// ErrStateDrift marks a remote flow that exists but could not be updated
	// to the current prompt.
	ErrStateDrift = errors.New("state drift")

	// ErrTransient marks a per-call remote failure.
	ErrTransient = errors.New("transient remote error")
)

// Error kinds.
const (
	KindNotFound      = "not_found"
	KindTransient     = "transient"
	KindConfiguration = "configuration"
	KindStateDrift    = "state_drift"
)

// Error wraps an underlying error with the failing operation and its kind.
type Error struct {
	Op   string
	Kind string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the sentinel that corresponds to the error kind, so
// errors.Is(err, ErrConfiguration) holds for any configuration fault.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
	}
	return target == sentinelFor(e.Kind)
}

func sentinelFor(kind string) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindTransient:
		return ErrTransient
	case KindConfiguration:
		return ErrConfiguration
	case KindStateDrift:
		return ErrStateDrift
	default:
		return nil
	}
}

// Configuration returns a configuration fault for op.
func Configuration(op string, format string, args ...any) error {
	return &Error{Op: op, Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

// StateDrift wraps err as a state drift fault for op.
func StateDrift(op string, err error) error {
	return &Error{Op: op, Kind: KindStateDrift, Err: err}
}

// Transient wraps err as a transient remote fault for op.
func Transient(op string, err error) error {
	return &Error{Op: op, Kind: KindTransient, Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
