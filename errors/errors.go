package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Kind classifies an error by what the caller can do about it. Every error
// crossing a package boundary carries exactly one kind.
type Kind int

const (
	KindUnknown      Kind = iota
	KindConfig            // missing or invalid startup configuration, fatal
	KindUpstream          // provider unreachable or returned a protocol error, retryable
	KindMalformed         // input failed decoding or structural validation, not retried
	KindVerification      // structurally valid proof failed cryptographic verification
	KindNotFound          // referenced record does not exist
	KindTransfer          // on-chain transfer rejected or timed out
	KindDuplicate         // key collision on create
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindUpstream:
		return "upstream"
	case KindMalformed:
		return "malformed"
	case KindVerification:
		return "verification"
	case KindNotFound:
		return "not_found"
	case KindTransfer:
		return "transfer"
	case KindDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// WithKind creates a new classified error.
func WithKind(kind Kind, format string, a ...interface{}) error {
	return &kindError{
		kind: kind,
		err:  fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...)),
	}
}

// WrapKind classifies an existing error while adding context. A nil error
// stays nil. An inner kind, if any, is shadowed by the new one: the outermost
// boundary decides how a failure is surfaced.
func WrapKind(err error, kind Kind, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &kindError{
		kind: kind,
		err:  fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err),
	}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindUnknown if no error in the chain carries one.
func KindOf(err error) Kind {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// IsKind reports whether err's outermost classification matches k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
