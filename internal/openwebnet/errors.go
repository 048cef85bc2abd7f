package openwebnet

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrSessionClosed is reported when a command session is closed before it
// completed.
var ErrSessionClosed = errors.New("session closed")

// ErrorKind represents the category of a transport error
type ErrorKind int

const (
	// ErrKindDial is a connection failure without a more specific cause
	ErrKindDial ErrorKind = iota
	// ErrKindRefused means the gateway refused the TCP connection
	ErrKindRefused
	// ErrKindTimeout means the connect or a read timed out
	ErrKindTimeout
	// ErrKindDNS means the gateway host name could not be resolved
	ErrKindDNS
	// ErrKindClosed means the gateway closed or reset the connection
	ErrKindClosed
	// ErrKindIO is any other read or write failure
	ErrKindIO
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrKindDial:
		return "dial"
	case ErrKindRefused:
		return "connection refused"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindDNS:
		return "dns"
	case ErrKindClosed:
		return "closed"
	case ErrKindIO:
		return "io"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a transport error on one gateway connection.
type Error struct {
	Kind ErrorKind
	Op   string // "dial", "read", "write"
	Addr string
	Mode Mode
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("openwebnet %s %s %s: %s: %v", e.Mode, e.Op, e.Addr, e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyError wraps err into an *Error with the most specific kind.
// It returns nil for a nil err.
func ClassifyError(op string, p Params, err error) *Error {
	if err == nil {
		return nil
	}

	e := &Error{Kind: ErrKindIO, Op: op, Addr: p.Addr(), Mode: p.Mode, Err: err}
	if op == "dial" {
		e.Kind = ErrKindDial
	}

	var dnsErr *net.DNSError
	switch {
	case os.IsTimeout(err):
		e.Kind = ErrKindTimeout
	case errors.As(err, &dnsErr):
		e.Kind = ErrKindDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Kind = ErrKindRefused
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, net.ErrClosed):
		e.Kind = ErrKindClosed
	}
	return e
}

// IsClosed reports whether err means the peer or the local side closed the
// connection, as opposed to a failure.
func IsClosed(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == ErrKindClosed
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
