package session

import (
	"errors"
	"fmt"
)

// ErrPreconditionViolation is the class of every local guard failure. Such
// failures never reach the network and never populate LastError.
var ErrPreconditionViolation = errors.New("precondition violation")

// PreconditionError is a guard failure with a reason the UI can show.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionViolation
}

func precondition(reason string) *PreconditionError {
	return &PreconditionError{Reason: reason}
}

var (
	ErrBusy            = precondition("another request is already in flight")
	ErrSessionActive   = precondition("a session is already active; end it first")
	ErrNoActiveSession = precondition("no active session")
	ErrNoFilesSelected = precondition("no files selected")
	ErrEmptyQuery      = precondition("query is empty")
	ErrChatPending     = precondition("the previous question is still being answered")
	ErrNotPDF          = precondition("only PDF files are accepted")
)

// ErrSuperseded is returned when a gateway result arrives after the Store was
// reset or moved on to another session. The result is discarded.
var ErrSuperseded = errors.New("result discarded: session changed while the request was in flight")

// ErrIllegalTransition reports an edge missing from the transition table.
// Seeing it means a guard above it is wrong.
var ErrIllegalTransition = errors.New("illegal phase transition")

func illegalTransition(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
