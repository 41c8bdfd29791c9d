package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned synchronously by operations that require
	// a live session. There is no send queue; callers retry explicitly.
	ErrNotConnected = errors.New("chatclient: not connected")
	// ErrDuplicateTempID rejects a second send reusing a still-in-flight
	// temp id.
	ErrDuplicateTempID = errors.New("chatclient: temp id already in flight")
	// ErrNoIdentity is returned by Reconnect before any Initialize.
	ErrNoIdentity = errors.New("chatclient: no identity to reconnect with")
)

// ErrorKind is a coarse classification of connection failures. Config and
// negotiation failures are fatal; timeouts and unknown network errors are
// retried by the automatic reconnect loop.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindConfig      ErrorKind = "config"
	KindNegotiation ErrorKind = "negotiation"
	KindServerClose ErrorKind = "server_close"
	KindUnknown     ErrorKind = "unknown"
)

// ConnectionError pairs a human-readable cause with its classification.
type ConnectionError struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chatclient: %s (%s): %v", e.Msg, e.Kind, e.Cause)
	}
	return fmt.Sprintf("chatclient: %s (%s)", e.Msg, e.Kind)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// Retryable reports whether the automatic reconnect loop should handle
// this failure. Configuration problems need operator attention, and a
// deliberate server close usually means an authorization or protocol
// rejection.
func (e *ConnectionError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnknown
}

func classifyDialError(err error) *ConnectionError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ConnectionError{Kind: KindTimeout, Msg: "connection attempt timed out", Cause: err}
	case errors.Is(err, websocket.ErrBadHandshake):
		return &ConnectionError{Kind: KindNegotiation, Msg: "transport negotiation failed", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectionError{Kind: KindTimeout, Msg: "connection attempt timed out", Cause: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ConnectionError{Kind: KindConfig, Msg: "invalid server url", Cause: err}
	}
	return &ConnectionError{Kind: KindUnknown, Msg: "connection failed", Cause: err}
}

func classifyCloseError(err error) *ConnectionError {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		// 1006 is synthesized locally when the peer vanishes without a
		// close frame; only a real close frame counts as a server close.
		if closeErr.Code != websocket.CloseAbnormalClosure {
			return &ConnectionError{
				Kind:  KindServerClose,
				Msg:   fmt.Sprintf("server closed the connection (%d %s)", closeErr.Code, closeErr.Text),
				Cause: err,
			}
		}
	}
	return &ConnectionError{Kind: KindUnknown, Msg: "connection lost", Cause: err}
}
