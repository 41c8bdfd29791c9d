package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// RuntimeClient is one live connection: a write pump draining a buffered
// outbound queue into the socket. A user may own several RuntimeClients
// at once (devices, tabs), each with its own conn id.
type RuntimeClient struct {
	ctx    context.Context
	cancel context.CancelFunc
	ws     *WebSocket
	userID string
	connID string
	out    chan []byte
	once   sync.Once
}

func NewClient(
	parent context.Context,
	ws *WebSocket,
	userID, connID string,
) *RuntimeClient {
	ctx, cancel := context.WithCancel(parent)
	c := &RuntimeClient{
		ctx:    ctx,
		cancel: cancel,
		ws:     ws,
		userID: userID,
		connID: connID,
		out:    make(chan []byte, 256),
	}
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) UserID() string { return c.userID }
func (c *RuntimeClient) ConnID() string { return c.connID }

func (c *RuntimeClient) Send(ctx context.Context, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return errors.New("client closed")
	}
}

// Close is idempotent. The out channel is never closed: registry fan-out
// calls Send without holding the hub lock, so a send can race Close, and
// a send on a closed channel would take the whole process down. A frame
// enqueued after Close is simply never written.
func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			_ = c.ws.WriteMessage(data)
		}
	}
}
