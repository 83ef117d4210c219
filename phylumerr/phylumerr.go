// Package phylumerr defines the error kinds from spec.md §7. Errors bubble
// up the call stack unchanged (§7 Propagation) — this package only gives
// callers a stable way to classify them with errors.Is/errors.As, in the
// same spirit as the teacher's diskimage.StatusError (a status byte plus a
// message riding on a plain Go error).
package phylumerr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure the way spec.md §7 enumerates it. Kind
// itself satisfies error so callers can write errors.Is(err,
// phylumerr.NotFound) directly.
type Kind byte

const (
	// IoError is an underlying SectorMap read/write failure.
	IoError Kind = iota + 1
	// NotFound means the requested sector/name/key does not exist.
	NotFound
	// Corrupt means a header tag mismatch, an unexpected zero-length
	// delimiter, or a pp/np inconsistency was found at mount.
	Corrupt
	// BufferFull means a record is larger than S minus header overhead.
	BufferFull
	// Exhausted means the sector allocator counter would overflow.
	Exhausted
	// LogicError means API misuse: writing through a released page-lock,
	// closing twice, dropping a dirty buffer without flushing it.
	LogicError
)

func (k Kind) Error() string {
	switch k {
	case IoError:
		return "io-error"
	case NotFound:
		return "not-found"
	case Corrupt:
		return "corrupt"
	case BufferFull:
		return "buffer-full"
	case Exhausted:
		return "exhausted"
	case LogicError:
		return "logic-error"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every Phylum operation returns on
// failure. Op names the failing operation (e.g. "DirectoryChain.mount")
// so a caller scanning logs does not need a stack trace to localize it.
type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("phylum: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("phylum: %s: %s: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, phylumerr.NotFound) (or any other Kind) match
// regardless of Op/Cause.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// New builds an *Error for op, wrapping cause (which may be nil).
func New(kind Kind, op string, cause error) error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Of reports the Kind of err if it (or something it wraps) is a *Error,
// and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// Assert implements spec.md §7's rule for LogicError conditions (API
// misuse such as writing through a released page-lock or closing
// twice): "treated as a panic in a debug build; a defensive
// implementation may surface it as an error." Build with -tags
// phylum_debug to get the panic; the default build returns the error.
func Assert(cond bool, op, msg string) error {
	if cond {
		return nil
	}
	if debugBuild {
		panic(fmt.Sprintf("phylum: %s: %s", op, msg))
	}
	return New(LogicError, op, errors.New(msg))
}
