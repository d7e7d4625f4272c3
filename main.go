package main

import (
	"fmt"
	"os"

	"github.com/syafiqeil/mev-builder/cmd"
	"github.com/syafiqeil/mev-builder/cmd/exitcodes"
)

func main() {
	// Run our root CLI command, which contains all underlying command logic and will handle parsing/invocation.
	err := cmd.Execute()

	// Obtain the actual error and exit code from the error, if any.
	var exitCode int
	err, exitCode = exitcodes.GetInnerErrorAndExitCode(err)

	// If we have an error that was not logged already, print it.
	if err != nil && exitCode != exitcodes.ExitCodeHandledError && exitCode != exitcodes.ExitCodeSearcherError {
		fmt.Fprintln(os.Stderr, err)
	}

	// If we have a non-success exit code, exit with it.
	if exitCode != exitcodes.ExitCodeSuccess {
		os.Exit(exitCode)
	}
}
