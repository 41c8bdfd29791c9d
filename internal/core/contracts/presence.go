package contracts

import (
	"context"
	"time"
)

// PresenceStore keeps the TTL-based online set and last-seen records in
// Redis. Entries not refreshed within the TTL fall out of the online set
// on the next read.
type PresenceStore interface {
	// SetOnline adds or refreshes the user's presence entry.
	SetOnline(ctx context.Context, userID string, ttl time.Duration) error
	// SetOffline removes the user from the online set and records when
	// they were last seen.
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
	// OnlineUsers returns users seen within the TTL window.
	OnlineUsers(ctx context.Context) ([]string, error)
	// LastSeen returns the recorded last-seen time, nil if unknown.
	LastSeen(ctx context.Context, userID string) (*time.Time, error)
}
