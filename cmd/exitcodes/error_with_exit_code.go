package exitcodes

import "github.com/pkg/errors"

// ErrorWithExitCode is an `error` type that wraps an existing error and exit code, providing exit codes
// for a given error if they are bubbled up to the top-level.
type ErrorWithExitCode struct {
	err      error
	exitCode int
}

// NewErrorWithExitCode creates a new error (ErrorWithExitCode) with the provided internal error and exit code.
func NewErrorWithExitCode(err error, exitCode int) *ErrorWithExitCode {
	return &ErrorWithExitCode{
		err:      err,
		exitCode: exitCode,
	}
}

// Error returns the error message string, implementing the `error` interface.
func (e *ErrorWithExitCode) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

// Unwrap returns the inner error.
func (e *ErrorWithExitCode) Unwrap() error {
	return e.err
}

// GetInnerErrorAndExitCode returns the error the application should report along with the exit code it should exit
// with: 0 for a nil error, 1 for a generic error, and the carried code for an ErrorWithExitCode anywhere in the chain.
func GetInnerErrorAndExitCode(err error) (error, int) {
	if err == nil {
		return nil, ExitCodeSuccess
	}
	var withExitCode *ErrorWithExitCode
	if errors.As(err, &withExitCode) {
		return withExitCode.err, withExitCode.exitCode
	}
	return err, ExitCodeGeneralError
}
