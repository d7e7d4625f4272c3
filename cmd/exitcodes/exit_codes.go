package exitcodes

const (
	// ================================
	// Platform-universal exit codes
	// ================================

	// ExitCodeSuccess indicates no errors or failures had occurred.
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates some type of general error occurred.
	ExitCodeGeneralError = 1

	// ================================
	// Application-specific exit codes
	// ================================
	// Note: Despite not being standardized, exit codes 2-5 are often used for common use cases, so we avoid them.

	// ExitCodeSearcherError indicates that the searcher stopped because of an error while running. Note that an error
	// with error code ExitCodeGeneralError and ExitCodeSearcherError are mutually exclusive errors
	ExitCodeSearcherError = 6

	// ExitCodeHandledError indicates the error was already logged and should not be printed again.
	ExitCodeHandledError = 8
)
