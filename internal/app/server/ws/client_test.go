package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// newServerSocket upgrades one in-process connection and returns its
// server side; the dialer side stays open for the test's lifetime.
func newServerSocket(t *testing.T) *WebSocket {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	dialed, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { dialed.Close() })
	return NewWebSocket(context.Background(), <-accepted)
}

func testEnvelope(t *testing.T) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.EventError, protocol.ErrorPayload{Message: "x"})
	if err != nil {
		t.Fatalf("building envelope: %v", err)
	}
	return env
}

// Registry fan-out calls Send without holding the hub lock, so sends race
// disconnects in production. A send after (or during) Close must report an
// error or drop the frame, never crash.
func TestClientSendAfterCloseDoesNotPanic(t *testing.T) {
	c := NewClient(context.Background(), newServerSocket(t), "u1", "c1")
	c.Close()

	env := testEnvelope(t)
	var lastErr error
	for i := 0; i < 512; i++ { // overruns the outbound buffer
		lastErr = c.Send(context.Background(), env)
	}
	if lastErr == nil {
		t.Fatal("expected Send to report the closed client once the buffer filled")
	}
}

func TestClientConcurrentSendAndClose(t *testing.T) {
	c := NewClient(context.Background(), newServerSocket(t), "u1", "c1")
	env := testEnvelope(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = c.Send(context.Background(), env)
			}
		}()
	}
	c.Close()
	wg.Wait()
	c.Close() // idempotent
}
