package exitcodes

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestGetInnerErrorAndExitCode verifies exit codes are found on plain, coded and wrapped errors.
func TestGetInnerErrorAndExitCode(t *testing.T) {
	err, code := GetInnerErrorAndExitCode(nil)
	assert.NoError(t, err)
	assert.Equal(t, ExitCodeSuccess, code)

	plain := errors.New("boom")
	err, code = GetInnerErrorAndExitCode(plain)
	assert.Equal(t, plain, err)
	assert.Equal(t, ExitCodeGeneralError, code)

	coded := NewErrorWithExitCode(plain, ExitCodeSearcherError)
	err, code = GetInnerErrorAndExitCode(coded)
	assert.Equal(t, plain, err)
	assert.Equal(t, ExitCodeSearcherError, code)

	err, code = GetInnerErrorAndExitCode(errors.WithMessage(NewErrorWithExitCode(plain, ExitCodeHandledError), "run"))
	assert.Equal(t, plain, err)
	assert.Equal(t, ExitCodeHandledError, code)
}
