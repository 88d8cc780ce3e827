package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies why a backend call failed.
type Kind int

const (
	// NetworkFailure means no response was received: transport error,
	// cancellation or timeout.
	NetworkFailure Kind = iota + 1
	// ServerFailure means the backend answered with a non-2xx status.
	ServerFailure
	// ProtocolFailure means the response body could not be decoded into
	// the expected shape.
	ProtocolFailure
)

func (k Kind) String() string {
	switch k {
	case NetworkFailure:
		return "network failure"
	case ServerFailure:
		return "server failure"
	case ProtocolFailure:
		return "protocol failure"
	default:
		return "unknown failure"
	}
}

// Op names the gateway operation that failed.
type Op string

const (
	OpUpload    Op = "upload documents"
	OpChat      Op = "submit query"
	OpTerminate Op = "terminate session"
)

// Error is the only error type returned by Gateway operations.
type Error struct {
	Kind       Kind
	Op         Op
	StatusCode int    // set for ServerFailure
	Message    string // backend supplied detail, if any
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or 0 when err is not a gateway error.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func networkError(op Op, err error) *Error {
	return &Error{Kind: NetworkFailure, Op: op, Err: err}
}

func protocolError(op Op, format string, args ...interface{}) *Error {
	return &Error{Kind: ProtocolFailure, Op: op, Err: fmt.Errorf(format, args...)}
}

func serverError(op Op, status int, message string) *Error {
	return &Error{Kind: ServerFailure, Op: op, StatusCode: status, Message: message}
}

// Classify returns err as a gateway error. Anything that is not already one
// is treated as a NetworkFailure of op: no usable response was received.
func Classify(op Op, err error) *Error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return networkError(op, err)
}
