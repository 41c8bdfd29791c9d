package registry

import (
	"context"
	"sync"

	"github.com/next-dentist/next-dentist-sub003/internal/core/contracts"
	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// Registry is the local connection hub. Unlike a one-room-per-connection
// design, a connection here joins and leaves any number of conversation
// rooms over its lifetime. The first member of a room starts that room's
// stream worker; the last one out stops it.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]contracts.Client            // conn_id → client
	byUser    map[string]map[string]contracts.Client // user_id → conn_id → client
	rooms     map[string]map[string]contracts.Client // conv_id → conn_id → client
	joined    map[string]map[string]struct{}         // conn_id → conv_id set
	workers   map[string]context.CancelFunc          // conv_id → worker stop
	runWorker func(ctx context.Context, convID string) error
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]contracts.Client),
		byUser:  make(map[string]map[string]contracts.Client),
		rooms:   make(map[string]map[string]contracts.Client),
		joined:  make(map[string]map[string]struct{}),
		workers: make(map[string]context.CancelFunc),
	}
}

// RunWorker installs the per-conversation consumer started when a room
// gains its first member.
func (h *Registry) RunWorker(runWorker func(ctx context.Context, convID string) error) {
	h.runWorker = runWorker
}

func (h *Registry) Register(c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ConnID()] = c
	if h.byUser[c.UserID()] == nil {
		h.byUser[c.UserID()] = make(map[string]contracts.Client)
	}
	h.byUser[c.UserID()][c.ConnID()] = c
	h.joined[c.ConnID()] = make(map[string]struct{})
}

func (h *Registry) Unregister(c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	connID := c.ConnID()
	for convID := range h.joined[connID] {
		h.leaveLocked(c, convID)
	}
	delete(h.joined, connID)
	delete(h.conns, connID)
	if conns := h.byUser[c.UserID()]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.byUser, c.UserID())
		}
	}
}

func (h *Registry) Join(c contracts.Client, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.joined[c.ConnID()]; !ok {
		return // not registered
	}
	if h.rooms[convID] == nil {
		h.rooms[convID] = make(map[string]contracts.Client)
		if h.runWorker != nil {
			ctx, cancel := context.WithCancel(context.Background())
			h.workers[convID] = cancel
			go h.runWorker(ctx, convID)
		}
	}
	h.rooms[convID][c.ConnID()] = c
	h.joined[c.ConnID()][convID] = struct{}{}
}

func (h *Registry) Leave(c contracts.Client, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, convID)
	if set := h.joined[c.ConnID()]; set != nil {
		delete(set, convID)
	}
}

func (h *Registry) leaveLocked(c contracts.Client, convID string) {
	room := h.rooms[convID]
	if room == nil {
		return
	}
	delete(room, c.ConnID())
	if len(room) == 0 {
		delete(h.rooms, convID)
		if cancel := h.workers[convID]; cancel != nil {
			cancel()
			delete(h.workers, convID)
		}
	}
}

func (h *Registry) SendToConn(ctx context.Context, connID string, env protocol.Envelope) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	_ = c.Send(ctx, env)
}

func (h *Registry) SendToUser(ctx context.Context, userID string, env protocol.Envelope) {
	h.mu.RLock()
	conns := make([]contracts.Client, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.Send(ctx, env)
	}
}

func (h *Registry) BroadcastToRoom(ctx context.Context, convID string, env protocol.Envelope, excludeConn string) {
	h.mu.RLock()
	conns := make([]contracts.Client, 0, len(h.rooms[convID]))
	for connID, c := range h.rooms[convID] {
		if connID == excludeConn {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.Send(ctx, env)
	}
}

func (h *Registry) BroadcastAll(ctx context.Context, env protocol.Envelope) {
	h.mu.RLock()
	conns := make([]contracts.Client, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.Send(ctx, env)
	}
}

func (h *Registry) ConnCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}
