// Package errs defines the sentinel error kinds shared across the host.
//
// Wrap builds an error that carries a call-site-specific message and
// unwraps to its sentinel kind, so callers can errors.Is(err, kind) across
// package boundaries. The underlying cause is formatted into the message
// only; it is not itself reachable through errors.Is/errors.As.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadError covers script syntax/evaluation errors, a missing or
	// malformed describe_extension(), and cyclic load() chains.
	ErrLoadError = errors.New("load error")

	// ErrRegistryConflict signals a tool-name collision across extensions.
	ErrRegistryConflict = errors.New("registry conflict")

	// ErrToolNotFound signals a dispatch against an unregistered tool name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrArgumentError signals a missing required parameter or a type
	// mismatch between a supplied JSON argument and its declared type.
	ErrArgumentError = errors.New("argument error")

	// ErrCapabilityDenied signals an exec whitelist violation.
	ErrCapabilityDenied = errors.New("capability denied")

	// ErrParseError signals malformed input to json.decode.
	ErrParseError = errors.New("parse error")

	// ErrStorageError signals a sqlite/postgres failure.
	ErrStorageError = errors.New("storage error")

	// ErrResourceError signals a data.load_json failure.
	ErrResourceError = errors.New("resource error")

	// ErrTransportError signals an http capability failure reported as a value.
	ErrTransportError = errors.New("transport error")

	// ErrInternalError signals a value-bridge conversion failure or a
	// scheduler invariant violation.
	ErrInternalError = errors.New("internal error")
)

// Wrap formats format/args into a message and ties it to a sentinel kind so
// errors.Is(err, kind) succeeds while the message remains specific to the
// call site.
func Wrap(kind error, format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &kindError{kind: kind, msg: msg}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }
