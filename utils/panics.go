package utils

import (
	"errors"
	"fmt"
)

// ErrPanic marks errors produced by RecoverWithError.
var ErrPanic = errors.New("got panic")

// RecoverWithError turns a panic in the deferring function into an error
// stored in *err. Deferred directly: defer utils.RecoverWithError(&err).
func RecoverWithError(err *error) {
	if rv := recover(); rv != nil {
		*err = fmt.Errorf("%w: %v", ErrPanic, rv)
	}
}
