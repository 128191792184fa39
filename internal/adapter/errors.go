package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// ConnectReason classifies why a connection attempt failed. The caller of an
// open function can distinguish a refused port from an unreachable host from
// a dial timeout.
type ConnectReason int

const (
	ReasonOther ConnectReason = iota
	ReasonRefused
	ReasonUnreachable
	ReasonTimeout
)

func (r ConnectReason) String() string {
	switch r {
	case ReasonRefused:
		return "connection refused"
	case ReasonUnreachable:
		return "host unreachable"
	case ReasonTimeout:
		return "connection timed out"
	default:
		return "connection failed"
	}
}

// ConnectionError is returned when a transport cannot be established.
type ConnectionError struct {
	Addr   string
	Reason ConnectReason
	Cause  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Addr, e.Reason, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// AuthError is returned when the SSH server rejects the supplied credentials.
// It is distinct from ConnectionError so the caller can prompt for new
// credentials instead of retrying the dial.
type AuthError struct {
	User  string
	Addr  string
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s@%s: %v", e.User, e.Addr, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// connError wraps a dial failure in a ConnectionError with a classified reason.
func connError(addr string, err error) *ConnectionError {
	return &ConnectionError{Addr: addr, Reason: classifyDialError(err), Cause: err}
}

func classifyDialError(err error) ConnectReason {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonRefused
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return ReasonUnreachable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonUnreachable
	}
	return ReasonOther
}
