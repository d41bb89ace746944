package erp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// TransientError marks a failure worth retrying: timeouts, refused
// connections, 5xx-equivalent remote errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient transport error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthExpiredError marks a rejected call whose session is no longer valid.
// The retry wrapper re-authenticates once and replays the call.
type AuthExpiredError struct {
	Err error
}

func (e *AuthExpiredError) Error() string { return fmt.Sprintf("session expired: %v", e.Err) }
func (e *AuthExpiredError) Unwrap() error { return e.Err }

// ValidationError marks a call the remote side rejected on business rules or
// payload shape. Retrying cannot help.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("remote rejected call: %v", e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsAuthExpired(err error) bool {
	var a *AuthExpiredError
	return errors.As(err, &a)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// classifyNetErr wraps connection-level failures as transient. Anything the
// network layer produces is worth another try.
func classifyNetErr(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.As(err, &netErr):
		return &TransientError{Err: err}
	}
	return err
}

// classifyFault maps a remote application fault onto the error taxonomy by
// the exception name the ERP reports.
func classifyFault(name, message string) error {
	fault := fmt.Errorf("%s: %s", name, message)
	switch {
	case strings.Contains(name, "SessionExpired"),
		strings.Contains(message, "Session expired"):
		return &AuthExpiredError{Err: fault}
	case strings.Contains(name, "OperationalError"),
		strings.Contains(name, "InternalError"):
		// Database deadlocks and serialization failures on the ERP side
		// clear up on retry.
		return &TransientError{Err: fault}
	default:
		return &ValidationError{Err: fault}
	}
}
