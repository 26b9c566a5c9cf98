package main

import (
	"errors"
	"fmt"
	"os"

	dcverrors "github.com/alexisbeaulieu97/dcvprov/pkg/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 1 for an aborted run and 2 when the input could not be used.
func exitCode(err error) int {
	var parseErr *dcverrors.ParseError
	var validationErr *dcverrors.ValidationError
	if errors.As(err, &parseErr) || errors.As(err, &validationErr) {
		return 2
	}
	return 1
}
