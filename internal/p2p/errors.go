package p2p

import (
	"errors"
	"fmt"
)

var (
	ErrChannelNotOpen   = errors.New("channel not open")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
	ErrClosed           = errors.New("peer closed")
)

// PeerError records which step of the connection failed.
type PeerError struct {
	Op      string
	Err     error
	Details string
}

func (e *PeerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *PeerError {
	return &PeerError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *PeerError {
	return &PeerError{Op: op, Err: err, Details: details}
}
