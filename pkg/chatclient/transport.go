package chatclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

const writeTimeout = 10 * time.Second

// session owns one physical WebSocket connection. It is created connected
// and never reconnects; the Client replaces the whole session instead, so
// no component can ever write through a stale transport.
type session struct {
	conn *websocket.Conn
	out  chan protocol.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

// dialSession opens the transport with a bounded timeout. Identity is
// carried redundantly (query parameters plus Authorization header) so the
// handshake works for clients that cannot set upgrade headers.
func dialSession(ctx context.Context, cfg Config, id Identity) (*session, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, &ConnectionError{Kind: KindConfig, Msg: "invalid server url", Cause: err}
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, &ConnectionError{Kind: KindConfig, Msg: "unsupported url scheme " + u.Scheme}
	}
	q := u.Query()
	q.Set("user_id", id.UserID)
	q.Set("user_email", id.UserEmail)
	if id.Token != "" {
		q.Set("token", id.Token)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if id.Token != "" {
		header.Set("Authorization", "Bearer "+id.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, classifyDialError(err)
	}

	s := &session{
		conn: conn,
		out:  make(chan protocol.Envelope, 64),
		done: make(chan struct{}),
	}
	// The write pump starts with the session so pre-run traffic (the room
	// replay after a reconnect) drains no matter how many rooms there are.
	go s.writeLoop()
	return s, nil
}

// run starts the read pump. onEvent is called from the read goroutine in
// transport order; onClose fires exactly once when the session dies, with
// the read error that killed it.
func (s *session) run(onEvent func(protocol.Envelope), onClose func(error)) {
	go s.readLoop(onEvent, onClose)
}

func (s *session) emit(env protocol.Envelope) error {
	select {
	case s.out <- env:
		return nil
	case <-s.done:
		return ErrNotConnected
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case env := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(env); err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *session) readLoop(onEvent func(protocol.Envelope), onClose func(error)) {
	defer s.close()
	s.conn.SetReadLimit(512 * 1024)
	for {
		var env protocol.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			onClose(err)
			return
		}
		if env.Event == "" {
			continue
		}
		onEvent(env)
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
