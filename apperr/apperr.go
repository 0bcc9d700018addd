// Package apperr implements the error taxonomy shared by the fingerprinter,
// the stores, and the orchestrator: a small Kind enum riding on top of
// go-xerrors so callers can branch on what went wrong while logs still get
// a stack trace.
package apperr

import (
	"errors"
	"fmt"

	"github.com/mdobak/go-xerrors"
)

// Kind classifies a failure the way the orchestrator's callers need to
// react to it, independent of the underlying wrapped error's message.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadAudio
	KindEmptyInput
	KindResampleError
	KindInsufficientAudio
	KindNoFingerprints
	KindDuplicatePath
	KindNotFound
	KindIOError
	KindSchemaMismatch
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindBadAudio:
		return "bad_audio"
	case KindEmptyInput:
		return "empty_input"
	case KindResampleError:
		return "resample_error"
	case KindInsufficientAudio:
		return "insufficient_audio"
	case KindNoFingerprints:
		return "no_fingerprints"
	case KindDuplicatePath:
		return "duplicate_path"
	case KindNotFound:
		return "not_found"
	case KindIOError:
		return "io_error"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with an underlying, stack-traced error.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.err) }
func (e *Error) Unwrap() error  { return e.err }

// New creates a Kind-tagged error with a fresh stack trace.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, err: xerrors.New(msg)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, err: xerrors.New(fmt.Sprintf(format, args...))}
}

// Wrap tags an existing error with a Kind, capturing a stack trace at the
// wrap site. Returns nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, err: xerrors.New(err)}
}

// Wrapf is Wrap with a formatted prefix message attached ahead of err's own
// message. Returns nil if err is nil.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, err: xerrors.New(fmt.Errorf("%s: %w", msg, err))}
}

// KindOf extracts the Kind from err, or KindUnknown if err was never
// tagged by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err was tagged with the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
