package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/conceptlab/conceptci/internal/chat"
	"github.com/conceptlab/conceptci/internal/concepts"
	"github.com/conceptlab/conceptci/internal/dataset"
	"github.com/conceptlab/conceptci/internal/quotes"
	"github.com/conceptlab/conceptci/internal/statistics"
	"github.com/conceptlab/conceptci/internal/wizard"
)

// Exit codes for different failure modes
const (
	ExitSuccess    = 0 // Command completed
	ExitInputError = 1 // Bad arguments, flags or input data
	ExitError      = 2 // Configuration, network or other runtime error
)

// InputError marks failures caused by what the user passed in rather than
// by the environment.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputError(err error) error {
	if err == nil {
		return nil
	}
	return &InputError{Err: err}
}

// Errors from the domain packages that always mean bad input.
var inputSentinels = []error{
	statistics.ErrEmptySample,
	statistics.ErrInvalidIterations,
	statistics.ErrInvalidConfidence,
	statistics.ErrNonFinite,
	concepts.ErrEmptyName,
	concepts.ErrNotFound,
	chat.ErrMissingAPIKey,
	wizard.ErrUnexpectedEOF,
	dataset.ErrColumnNotFound,
	dataset.ErrInvalidNumber,
	quotes.ErrInvalidSymbol,
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return ExitInputError
	}
	for _, s := range inputSentinels {
		if errors.Is(err, s) {
			return ExitInputError
		}
	}
	return ExitError
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
