package chatclient

import (
	"sort"
	"sync"
	"time"
)

// typingSet merges remote user_typing events into per-conversation typist
// sets. Every addition carries a TTL timer: a typist whose start event is
// never refreshed and whose stop event got lost on a flaky link is
// expired locally instead of sticking forever.
//
// The local side tracks which conversations this client is typing in so
// typing_start can be called on every keystroke while emitting only on
// state changes.
type typingSet struct {
	mu     sync.Mutex
	byConv map[string]map[string]*time.Timer
	local  map[string]bool
	ttl    time.Duration
}

func newTypingSet(ttl time.Duration) *typingSet {
	return &typingSet{
		byConv: make(map[string]map[string]*time.Timer),
		local:  make(map[string]bool),
		ttl:    ttl,
	}
}

// markLocal records the local typing state and reports whether it
// changed, i.e. whether an event should go out.
func (t *typingSet) markLocal(convID string, typing bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.local[convID] == typing {
		return false
	}
	if typing {
		t.local[convID] = true
	} else {
		delete(t.local, convID)
	}
	return true
}

func (t *typingSet) applyRemote(convID, userID string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	typists := t.byConv[convID]
	if isTyping {
		if typists == nil {
			typists = make(map[string]*time.Timer)
			t.byConv[convID] = typists
		}
		if timer, ok := typists[userID]; ok {
			timer.Stop()
		}
		typists[userID] = time.AfterFunc(t.ttl, func() {
			t.expire(convID, userID)
		})
		return
	}
	if timer, ok := typists[userID]; ok {
		timer.Stop()
		delete(typists, userID)
		if len(typists) == 0 {
			delete(t.byConv, convID)
		}
	}
}

func (t *typingSet) expire(convID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	typists := t.byConv[convID]
	if _, ok := typists[userID]; !ok {
		return
	}
	delete(typists, userID)
	if len(typists) == 0 {
		delete(t.byConv, convID)
	}
}

// typists returns the sorted ids of users currently typing in convID.
func (t *typingSet) typists(convID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for id := range t.byConv[convID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *typingSet) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, typists := range t.byConv {
		for _, timer := range typists {
			timer.Stop()
		}
	}
	t.byConv = make(map[string]map[string]*time.Timer)
	t.local = make(map[string]bool)
}
