package contracts

import (
	"context"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// Registry is the in-memory connection hub: it tracks live client
// connections, their room memberships, and fans events out to rooms and
// users. Rooms are broadcast groups keyed by conversation id; one user
// may hold several connections (devices, tabs) at once.
type Registry interface {
	// Register adds a freshly authenticated connection.
	Register(c Client)
	// Unregister removes the connection and all its room memberships.
	Unregister(c Client)
	// Join subscribes the connection to a conversation room.
	Join(c Client, convID string)
	// Leave unsubscribes the connection from a room.
	Leave(c Client, convID string)
	// SendToConn delivers to one specific connection, if still live.
	SendToConn(ctx context.Context, connID string, env protocol.Envelope)
	// SendToUser delivers to every connection of a user.
	SendToUser(ctx context.Context, userID string, env protocol.Envelope)
	// BroadcastToRoom delivers to every connection in a room except
	// excludeConn (empty string excludes nobody).
	BroadcastToRoom(ctx context.Context, convID string, env protocol.Envelope, excludeConn string)
	// BroadcastAll delivers to every live connection.
	BroadcastAll(ctx context.Context, env protocol.Envelope)
	// ConnCount reports how many live connections a user has.
	ConnCount(userID string) int
}

// Client is the minimal surface the Registry needs to talk to one
// WebSocket connection.
type Client interface {
	UserID() string
	ConnID() string
	Send(ctx context.Context, env protocol.Envelope) error
	Close()
}
