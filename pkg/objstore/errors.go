package objstore

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies backend failures for the gateway's HTTP mapping.
type ErrorKind int

const (
	// KindOther is any unclassified backend failure.
	KindOther ErrorKind = iota
	// KindConnection is a transport failure or timeout talking to the store.
	KindConnection
	// KindPresigning is a failure while presigning a URL.
	KindPresigning
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindPresigning:
		return "presigning"
	default:
		return "other"
	}
}

// Error wraps a backend failure with its classification and the operation
// that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("objstore: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError classifies err for op. Timeouts and context cancellation map to
// KindConnection, everything else to KindOther.
func NewError(op string, err error) *Error {
	return &Error{Kind: classify(err), Op: op, Err: err}
}

// NewPresignError marks a presigning failure.
func NewPresignError(op string, err error) *Error {
	return &Error{Kind: KindPresigning, Op: op, Err: err}
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindConnection
	}
	return KindOther
}

// KindOf extracts the classification from err, or KindOther when err is not
// an objstore error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// IsConnection reports whether err is classified as a transport failure.
func IsConnection(err error) bool { return KindOf(err) == KindConnection }
