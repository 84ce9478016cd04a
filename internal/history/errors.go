package history

import (
	platformerrors "github.com/jmgilman/go/errors"
)

// Error codes in addition to the platform set. NotFound and InvalidArgument
// use platformerrors.CodeNotFound and platformerrors.CodeInvalidInput.
const (
	// CodeInvalidState indicates an operation on a disposed component.
	CodeInvalidState platformerrors.ErrorCode = "INVALID_STATE"

	// CodeUpstreamFailure indicates the history source rejected a fetch.
	CodeUpstreamFailure platformerrors.ErrorCode = "UPSTREAM_FAILURE"
)

// NotFoundf returns a NotFound error.
func NotFoundf(format string, args ...interface{}) error {
	return platformerrors.Newf(platformerrors.CodeNotFound, format, args...)
}

// InvalidArgumentf returns an InvalidArgument error.
func InvalidArgumentf(format string, args ...interface{}) error {
	return platformerrors.Newf(platformerrors.CodeInvalidInput, format, args...)
}

// InvalidStatef returns an InvalidState error.
func InvalidStatef(format string, args ...interface{}) error {
	return platformerrors.Newf(CodeInvalidState, format, args...)
}

// UpstreamFailure wraps an error returned by a history source.
func UpstreamFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	return platformerrors.Wrap(err, CodeUpstreamFailure, message)
}

// IsNotFound reports whether err carries the NotFound code.
func IsNotFound(err error) bool {
	return platformerrors.GetCode(err) == platformerrors.CodeNotFound
}

// IsInvalidArgument reports whether err carries the InvalidArgument code.
func IsInvalidArgument(err error) bool {
	return platformerrors.GetCode(err) == platformerrors.CodeInvalidInput
}

// IsInvalidState reports whether err carries the InvalidState code.
func IsInvalidState(err error) bool {
	return platformerrors.GetCode(err) == CodeInvalidState
}

// IsUpstreamFailure reports whether err carries the UpstreamFailure code.
func IsUpstreamFailure(err error) bool {
	return platformerrors.GetCode(err) == CodeUpstreamFailure
}
