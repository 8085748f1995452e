package client

import (
	"errors"
	"fmt"
)

var (
	ErrClosed    = errors.New("connection closed")
	ErrNotPaired = errors.New("no partner")
)

// Error records the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
