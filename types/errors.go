package types

import (
	"errors"
	"fmt"
)

var (
	ErrAlignment       = errors.New("alignment error")
	ErrLengthMismatch  = errors.New("length mismatch")
	ErrMissingResource = errors.New("missing resource")
	ErrMarkedInput     = errors.New("input already carries marks")
)

// AlignmentError reports a marked word that cannot be split into aligned pairs.
type AlignmentError struct {
	Word   string
	Offset int
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("cannot align %q at rune %d: %s", e.Word, e.Offset, e.Reason)
}

func (e *AlignmentError) Is(target error) bool {
	return target == ErrAlignment
}

type LengthMismatchError struct {
	Gold      string
	Predicted string
	GoldLen   int
	PredLen   int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("gold %q has %d aligned characters, predicted %q has %d",
		e.Gold, e.GoldLen, e.Predicted, e.PredLen)
}

func (e *LengthMismatchError) Is(target error) bool {
	return target == ErrLengthMismatch
}

type MissingResourceError struct {
	Path string
	Err  error
}

func (e *MissingResourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("missing resource %s", e.Path)
	}
	return fmt.Sprintf("missing resource %s: %v", e.Path, e.Err)
}

func (e *MissingResourceError) Is(target error) bool {
	return target == ErrMissingResource
}

func (e *MissingResourceError) Unwrap() error {
	return e.Err
}
