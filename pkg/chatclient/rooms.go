package chatclient

import (
	"sort"
	"sync"
)

// roomSet tracks which conversation rooms the session is subscribed to.
// Membership is recorded only while connected; joins attempted while
// disconnected fail fast, so a reconnect never replays stale intents the
// UI has moved on from.
type roomSet struct {
	mu     sync.RWMutex
	joined map[string]struct{}
}

func newRoomSet() *roomSet {
	return &roomSet{joined: make(map[string]struct{})}
}

func (r *roomSet) add(convID string) {
	r.mu.Lock()
	r.joined[convID] = struct{}{}
	r.mu.Unlock()
}

// remove reports whether the conversation was a member.
func (r *roomSet) remove(convID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.joined[convID]; !ok {
		return false
	}
	delete(r.joined, convID)
	return true
}

func (r *roomSet) reset() {
	r.mu.Lock()
	r.joined = make(map[string]struct{})
	r.mu.Unlock()
}

// list returns the joined conversation ids in sorted order, which makes
// the post-reconnect join replay deterministic.
func (r *roomSet) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.joined))
	for id := range r.joined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
