// Package syncerr defines the error kinds shared across the coordinator and
// the participant, so callers can branch on kind without string matching.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the propagation policy each side follows.
type Kind int

const (
	TransportUnavailable Kind = iota
	TransportTimeout
	ProtocolSchema
	IntegrityMismatch
	StorageIO
	StateCorruption
	ConfigInvalid
	FilterDenied
)

func (k Kind) String() string {
	switch k {
	case TransportUnavailable:
		return "transport_unavailable"
	case TransportTimeout:
		return "transport_timeout"
	case ProtocolSchema:
		return "protocol_schema"
	case IntegrityMismatch:
		return "integrity_mismatch"
	case StorageIO:
		return "storage_io"
	case StateCorruption:
		return "state_corruption"
	case ConfigInvalid:
		return "config_invalid"
	case FilterDenied:
		return "filter_denied"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so policy code can switch on
// it with errors.As rather than string matching.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and no path.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// NewPath wraps err with kind and the relpath it concerns.
func NewPath(kind Kind, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Path: path, Err: err}
}

// Is reports whether err (or something it wraps) is a *Error of kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
