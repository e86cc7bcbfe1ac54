package trader

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrConfiguration is returned for malformed setup: bad endpoint or session id, missing collaborators
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidState is returned when an operation is invoked outside its lifecycle state
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for malformed trade parameters
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSigningFailed is returned when the signer fails or the user rejects the request
	ErrSigningFailed = errors.New("signing failed")

	// ErrSubmitFailed is returned when the broker does not accept a signed intent
	ErrSubmitFailed = errors.New("submit failed")
)

// Error describes a failed Trader operation
type Error struct {
	// Op is the operation that failed, e.g. "build intent"
	Op string
	// Kind is one of the Err* kinds above
	Kind error
	// Err is the underlying cause, may be nil
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind, the cause is reachable through Unwrap
func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(op string, kind error, format string, args ...interface{}) error {
	return &Error{Op: op, Kind: kind, Err: errors.Errorf(format, args...)}
}

func wrapError(op string, kind error, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
