package chatclient

import (
	"sync"
	"time"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// Dispatcher fans protocol and lifecycle events out to subscribers. Each
// event category keeps an ordered list; handlers run synchronously on the
// session's read goroutine, so within one session every subscriber sees
// events in the exact order the transport delivered them.
type Dispatcher struct {
	mu sync.RWMutex

	connected        []func()
	disconnected     []func(reason string)
	reconnecting     []func(attempt int, delay time.Duration)
	connectionFailed []func(err error)

	confirmed      []func(protocol.ConnectionConfirmedPayload)
	newMessage     []func(protocol.Message)
	messageSent    []func(protocol.MessageSentPayload)
	messageEdited  []func(protocol.Message)
	messageDeleted []func(protocol.MessageDeletedPayload)
	messagesRead   []func(protocol.MessagesReadPayload)
	userTyping     []func(protocol.UserTypingPayload)
	userOnline     []func(protocol.PresencePayload)
	userOffline    []func(protocol.PresencePayload)
	notification   []func(protocol.MessageNotificationPayload)
	serverError    []func(message string)
}

func newDispatcher() *Dispatcher { return &Dispatcher{} }

// OnConnected fires after every successful connection, first and
// reconnects alike, once joined rooms have been replayed.
func (d *Dispatcher) OnConnected(h func()) {
	d.mu.Lock()
	d.connected = append(d.connected, h)
	d.mu.Unlock()
}

// OnDisconnected fires when a live session dies, before any reconnect
// attempt starts.
func (d *Dispatcher) OnDisconnected(h func(reason string)) {
	d.mu.Lock()
	d.disconnected = append(d.disconnected, h)
	d.mu.Unlock()
}

// OnReconnecting fires before each automatic reconnect attempt.
func (d *Dispatcher) OnReconnecting(h func(attempt int, delay time.Duration)) {
	d.mu.Lock()
	d.reconnecting = append(d.reconnecting, h)
	d.mu.Unlock()
}

// OnConnectionFailed fires when the manager enters the terminal Failed
// state; only a manual Reconnect leaves it.
func (d *Dispatcher) OnConnectionFailed(h func(err error)) {
	d.mu.Lock()
	d.connectionFailed = append(d.connectionFailed, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnConnectionConfirmed(h func(protocol.ConnectionConfirmedPayload)) {
	d.mu.Lock()
	d.confirmed = append(d.confirmed, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnNewMessage(h func(protocol.Message)) {
	d.mu.Lock()
	d.newMessage = append(d.newMessage, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnMessageSent(h func(protocol.MessageSentPayload)) {
	d.mu.Lock()
	d.messageSent = append(d.messageSent, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnMessageEdited(h func(protocol.Message)) {
	d.mu.Lock()
	d.messageEdited = append(d.messageEdited, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnMessageDeleted(h func(protocol.MessageDeletedPayload)) {
	d.mu.Lock()
	d.messageDeleted = append(d.messageDeleted, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnMessagesRead(h func(protocol.MessagesReadPayload)) {
	d.mu.Lock()
	d.messagesRead = append(d.messagesRead, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnUserTyping(h func(protocol.UserTypingPayload)) {
	d.mu.Lock()
	d.userTyping = append(d.userTyping, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnUserOnline(h func(protocol.PresencePayload)) {
	d.mu.Lock()
	d.userOnline = append(d.userOnline, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnUserOffline(h func(protocol.PresencePayload)) {
	d.mu.Lock()
	d.userOffline = append(d.userOffline, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnMessageNotification(h func(protocol.MessageNotificationPayload)) {
	d.mu.Lock()
	d.notification = append(d.notification, h)
	d.mu.Unlock()
}

func (d *Dispatcher) OnServerError(h func(message string)) {
	d.mu.Lock()
	d.serverError = append(d.serverError, h)
	d.mu.Unlock()
}

func (d *Dispatcher) emitConnected() {
	d.mu.RLock()
	handlers := d.connected
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *Dispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := d.disconnected
	d.mu.RUnlock()
	for _, h := range handlers {
		h(reason)
	}
}

func (d *Dispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := d.reconnecting
	d.mu.RUnlock()
	for _, h := range handlers {
		h(attempt, delay)
	}
}

func (d *Dispatcher) emitConnectionFailed(err error) {
	d.mu.RLock()
	handlers := d.connectionFailed
	d.mu.RUnlock()
	for _, h := range handlers {
		h(err)
	}
}

func (d *Dispatcher) emitConfirmed(p protocol.ConnectionConfirmedPayload) {
	d.mu.RLock()
	handlers := d.confirmed
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (d *Dispatcher) emitNewMessage(m protocol.Message) {
	d.mu.RLock()
	handlers := d.newMessage
	d.mu.RUnlock()
	for _, h := range handlers {
		h(m)
	}
}

func (d *Dispatcher) emitMessageSent(p protocol.MessageSentPayload) {
	d.mu.RLock()
	handlers := d.messageSent
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (d *Dispatcher) emitMessageEdited(m protocol.Message) {
	d.mu.RLock()
	handlers := d.messageEdited
	d.mu.RUnlock()
	for _, h := range handlers {
		h(m)
	}
}

func (d *Dispatcher) emitMessageDeleted(p protocol.MessageDeletedPayload) {
	d.mu.RLock()
	handlers := d.messageDeleted
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (d *Dispatcher) emitMessagesRead(p protocol.MessagesReadPayload) {
	d.mu.RLock()
	handlers := d.messagesRead
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (d *Dispatcher) emitUserTyping(p protocol.UserTypingPayload) {
	d.mu.RLock()
	handlers := d.userTyping
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (d *Dispatcher) emitUserOnline(p protocol.PresencePayload) {
	d.mu.RLock()
	handlers := d.userOnline
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (d *Dispatcher) emitUserOffline(p protocol.PresencePayload) {
	d.mu.RLock()
	handlers := d.userOffline
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (d *Dispatcher) emitNotification(p protocol.MessageNotificationPayload) {
	d.mu.RLock()
	handlers := d.notification
	d.mu.RUnlock()
	for _, h := range handlers {
		h(p)
	}
}

func (d *Dispatcher) emitServerError(msg string) {
	d.mu.RLock()
	handlers := d.serverError
	d.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
}
