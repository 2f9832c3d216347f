// Package apperr defines the typed error model shared by the pipeline, the
// dashboard loaders and the HTTP layer.
//
// Kinds describe what went wrong from the caller's point of view:
//   - KindNotFound: an expected input file or dataset does not exist
//   - KindUnavailable: the data exists but has nothing for the selection
//   - KindInvalid: the request or selector input is malformed
//   - KindSchema: a processed file lacks an expected column or key
//   - KindComputation: a derivation failed on otherwise valid data
//
// Operators see the wrapped cause in logs; end users only see Message for
// user-facing kinds and a generic message otherwise.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "data_unavailable"
	KindInvalid     Kind = "invalid_input"
	KindSchema      Kind = "schema_error"
	KindComputation Kind = "computation_error"
	KindInternal    Kind = "internal_error"
)

// Error is a classified error with a user-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err returns nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain, or
// KindInternal when none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserFacing reports whether messages of this kind may be shown to end users.
func (k Kind) UserFacing() bool {
	switch k {
	case KindNotFound, KindUnavailable, KindInvalid:
		return true
	default:
		return false
	}
}

// UserMessage returns the text safe to show to an end user.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind.UserFacing() {
		return e.Message
	}
	return "The chart could not be produced because of a data processing error."
}

// MissingFile builds the NotFound error for an expected input path.
func MissingFile(what, path string, cause error) error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s data file not found: %s", what, path),
		Err:     cause,
	}
}

// MissingColumn builds the Schema error for a column lookup that failed.
func MissingColumn(column, dataset string) error {
	if dataset == "" {
		return &Error{Kind: KindSchema, Message: fmt.Sprintf("missing column %q", column)}
	}
	return &Error{Kind: KindSchema, Message: fmt.Sprintf("missing column %q in %s", column, dataset)}
}
