package chatclient

import (
	"sort"
	"sync"
	"time"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// presenceView is the client-side mirror of server presence pushes. It is
// a cache: reset on every reconnection, repopulated only by fresh
// user_online events.
type presenceView struct {
	mu      sync.RWMutex
	entries map[string]protocol.PresenceEntry
}

func newPresenceView() *presenceView {
	return &presenceView{entries: make(map[string]protocol.PresenceEntry)}
}

func (p *presenceView) applyOnline(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[userID]
	e.UserID = userID
	e.IsOnline = true
	p.entries[userID] = e
}

// applyOffline keeps the entry (with its last-seen time) rather than
// deleting it, so "last seen at" stays renderable.
func (p *presenceView) applyOffline(userID string, lastSeen *time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[userID]
	e.UserID = userID
	e.IsOnline = false
	if lastSeen != nil {
		e.LastSeen = lastSeen
	}
	p.entries[userID] = e
}

func (p *presenceView) reset() {
	p.mu.Lock()
	p.entries = make(map[string]protocol.PresenceEntry)
	p.mu.Unlock()
}

// IsOnline reports whether userID is currently in the online set.
func (p *presenceView) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[userID].IsOnline
}

// LastSeen returns the recorded last-seen time for userID, if any.
func (p *presenceView) LastSeen(userID string) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[userID]
	if !ok || e.LastSeen == nil {
		return time.Time{}, false
	}
	return *e.LastSeen, true
}

// OnlineUsers returns the sorted ids of currently-online users.
func (p *presenceView) OnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var ids []string
	for id, e := range p.entries {
		if e.IsOnline {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
