package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrNotConnected is returned by Send/Resize when the session is not in the
// connected state.
var ErrNotConnected = errors.New("conn: session not connected")

// ErrUnknownSession is returned for session ids the manager does not track.
var ErrUnknownSession = errors.New("conn: unknown session")

// ConnectReason categorizes why a connection attempt failed.
type ConnectReason string

const (
	ReasonTimeout      ConnectReason = "timeout"
	ReasonAuthFailed   ConnectReason = "authFailed"
	ReasonNetworkError ConnectReason = "networkError"
	ReasonRefused      ConnectReason = "refused"
)

// ConnectionError wraps a transport failure with a user-presentable reason.
type ConnectionError struct {
	Reason ConnectReason
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed (%s): %v", e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// classifyConnectErr maps a raw dial/handshake error onto a ConnectReason.
func classifyConnectErr(err error) *ConnectionError {
	reason := ReasonNetworkError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		reason = ReasonRefused
	case isAuthError(err):
		reason = ReasonAuthFailed
	case isTimeoutError(err):
		reason = ReasonTimeout
	}

	return &ConnectionError{Reason: reason, Err: err}
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isAuthError matches the error strings x/crypto/ssh produces on
// authentication failure; the library exposes no sentinel for them.
func isAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "no auth material")
}
