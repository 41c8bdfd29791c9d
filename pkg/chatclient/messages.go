package chatclient

import (
	"sync"
	"time"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// exchange is the local message store of the send/ack/reconcile cycle.
// Outgoing messages live in pending keyed by temp id until the server
// acknowledges them; reconciliation mutates the stored record in place so
// the object the UI rendered optimistically is the one that gains the
// durable id.
type exchange struct {
	mu      sync.Mutex
	pending map[string]*protocol.Message
	byConv  map[string][]*protocol.Message
	byID    map[string]*protocol.Message
	unread  map[string]int
}

func newExchange() *exchange {
	return &exchange{
		pending: make(map[string]*protocol.Message),
		byConv:  make(map[string][]*protocol.Message),
		byID:    make(map[string]*protocol.Message),
		unread:  make(map[string]int),
	}
}

// addOutgoing registers a provisional message. Fails if the temp id is
// already in flight.
func (e *exchange) addOutgoing(msg *protocol.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[msg.TempID]; ok {
		return ErrDuplicateTempID
	}
	e.pending[msg.TempID] = msg
	e.byConv[msg.ConversationID] = append(e.byConv[msg.ConversationID], msg)
	return nil
}

// dropOutgoing removes a provisional message whose emit failed.
func (e *exchange) dropOutgoing(msg *protocol.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, msg.TempID)
	msgs := e.byConv[msg.ConversationID]
	for i, m := range msgs {
		if m == msg {
			e.byConv[msg.ConversationID] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
}

// applyAck reconciles a provisional message with its durable form.
// Idempotent: a duplicate ack finds no pending entry and is ignored, so
// the message is never duplicated.
func (e *exchange) applyAck(p protocol.MessageSentPayload) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	local, ok := e.pending[p.TempID]
	if !ok {
		return false
	}
	delete(e.pending, p.TempID)

	tempID := local.TempID
	*local = p.Message
	local.TempID = tempID
	if local.Status == "" {
		local.Status = protocol.StatusSent
	}
	if local.ID != "" {
		e.byID[local.ID] = local
	}
	return true
}

// applyInbound appends a message pushed by the server. Duplicates (same
// durable id) are dropped.
func (e *exchange) applyInbound(msg protocol.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if msg.ID != "" {
		if _, ok := e.byID[msg.ID]; ok {
			return false
		}
	}
	m := msg
	e.byConv[m.ConversationID] = append(e.byConv[m.ConversationID], &m)
	if m.ID != "" {
		e.byID[m.ID] = &m
	}
	return true
}

// applyEdit rewrites a message by durable id. Missing messages (already
// scrolled out of local state) are tolerated.
func (e *exchange) applyEdit(msg protocol.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	local, ok := e.byID[msg.ID]
	if !ok {
		return
	}
	local.Content = msg.Content
	local.MessageType = msg.MessageType
	local.Attachments = msg.Attachments
}

// applyDelete removes a message by durable id, tolerating absence.
func (e *exchange) applyDelete(msgID, convID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	local, ok := e.byID[msgID]
	if !ok {
		return
	}
	delete(e.byID, msgID)
	msgs := e.byConv[convID]
	for i, m := range msgs {
		if m == local {
			e.byConv[convID] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
}

// applyRead marks the local user's own sent messages in the conversation
// as read by the counterpart. An empty id list means all of them. A
// receipt read by the local user (an echo from another device marking
// received messages) says nothing about the user's own sent messages and
// is ignored.
func (e *exchange) applyRead(p protocol.MessagesReadPayload, localUserID string, at time.Time) {
	if p.ReadByUserID == localUserID {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	match := func(id string) bool {
		if len(p.MessageIDs) == 0 {
			return true
		}
		for _, want := range p.MessageIDs {
			if id == want {
				return true
			}
		}
		return false
	}
	for _, m := range e.byConv[p.ConversationID] {
		if m.SenderID != localUserID || m.ID == "" || !match(m.ID) {
			continue
		}
		m.Status = protocol.StatusRead
		t := at
		m.ReadAt = &t
	}
}

func (e *exchange) setUnread(convID string, n int) {
	e.mu.Lock()
	e.unread[convID] = n
	e.mu.Unlock()
}

func (e *exchange) unreadCount(convID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread[convID]
}

// snapshot returns copies of the conversation's messages in arrival order.
func (e *exchange) snapshot(convID string) []protocol.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.byConv[convID]
	out := make([]protocol.Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

func (e *exchange) pendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *exchange) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = make(map[string]*protocol.Message)
	e.byConv = make(map[string][]*protocol.Message)
	e.byID = make(map[string]*protocol.Message)
	e.unread = make(map[string]int)
}
