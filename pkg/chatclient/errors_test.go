package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/gorilla/websocket"
)

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout, true},
		{"handshake", websocket.ErrBadHandshake, KindNegotiation, false},
		{"bad url", &url.Error{Op: "parse", URL: ":", Err: errors.New("bad")}, KindConfig, false},
		{"other", errors.New("connection refused"), KindUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyDialError(tt.err)
			if got.Kind != tt.kind {
				t.Fatalf("kind=%s, want %s", got.Kind, tt.kind)
			}
			if got.Retryable() != tt.retryable {
				t.Fatalf("retryable=%v, want %v", got.Retryable(), tt.retryable)
			}
			if !errors.Is(got, tt.err) {
				t.Fatal("cause not preserved through Unwrap")
			}
		})
	}
}

func TestClassifyCloseError(t *testing.T) {
	deliberate := classifyCloseError(&websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "unauthorized"})
	if deliberate.Kind != KindServerClose || deliberate.Retryable() {
		t.Fatalf("deliberate close misclassified: %+v", deliberate)
	}

	// 1006 is synthesized for vanished peers; that is a network problem,
	// not a rejection.
	dropped := classifyCloseError(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "unexpected EOF"})
	if dropped.Kind != KindUnknown || !dropped.Retryable() {
		t.Fatalf("abnormal closure misclassified: %+v", dropped)
	}

	plain := classifyCloseError(fmt.Errorf("read tcp: connection reset"))
	if plain.Kind != KindUnknown || !plain.Retryable() {
		t.Fatalf("plain error misclassified: %+v", plain)
	}
}
