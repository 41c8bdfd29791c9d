// Package chatclient is the client-side protocol manager of the real-time
// messaging layer. It owns a single authenticated transport session per
// signed-in identity and keeps conversations, delivery state, typing
// indicators and presence synchronized across reconnections.
//
// All operations are non-blocking: sends, joins and typing signals fail
// fast with ErrNotConnected instead of queuing, and completion is
// signaled through Dispatcher events rather than return values. Only the
// connection attempt itself (Initialize) is awaited.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// ConnectionState is the lifecycle of the managed connection. Connected
// implies exactly one live transport session; every other state implies
// zero.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// Identity is the authentication context of a session. A session is bound
// to exactly one identity for its lifetime.
type Identity struct {
	UserID    string
	UserEmail string
	Token     string
}

// Config tunes the connection manager. Zero values fall back to defaults.
type Config struct {
	// URL of the messaging endpoint (ws://, wss://, or the http(s)
	// equivalent, which is rewritten).
	URL string

	ConnectTimeout       time.Duration // default 20s
	ReconnectInitialWait time.Duration // default 1s
	ReconnectMaxWait     time.Duration // default 30s
	MaxReconnectAttempts int           // default 8; attempts before giving up
	TypingTTL            time.Duration // default 7s; remote typist expiry
	Logger               *slog.Logger  // default slog.Default()
}

func (c *Config) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 20 * time.Second
	}
	if c.ReconnectInitialWait <= 0 {
		c.ReconnectInitialWait = time.Second
	}
	if c.ReconnectMaxWait <= 0 {
		c.ReconnectMaxWait = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 8
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 7 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client is the connection manager. It is the composition root for the
// message exchange, room membership, typing and presence components, all
// of which write through the one session the Client owns.
type Client struct {
	cfg Config
	log *slog.Logger

	dispatcher *Dispatcher
	exchange   *exchange
	rooms      *roomSet
	typing     *typingSet
	presence   *presenceView

	sf singleflight.Group

	mu          sync.Mutex
	state       ConnectionState
	sess        *session
	gen         uint64
	identity    Identity
	hasIdentity bool
	userName    string
	connErr     *ConnectionError
	serverErr   string
}

// NewClient builds a disconnected Client; call Initialize to connect.
func NewClient(cfg Config) *Client {
	cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		log:        cfg.Logger,
		dispatcher: newDispatcher(),
		exchange:   newExchange(),
		rooms:      newRoomSet(),
		typing:     newTypingSet(cfg.TypingTTL),
		presence:   newPresenceView(),
		state:      StateDisconnected,
	}
}

// Handlers exposes the event dispatcher for subscription.
func (c *Client) Handlers() *Dispatcher { return c.dispatcher }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionError returns the recorded connection failure, if any.
func (c *Client) ConnectionError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connErr == nil {
		return nil
	}
	return c.connErr
}

// LastServerError returns the most recent error event pushed by the
// server, empty if none.
func (c *Client) LastServerError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverErr
}

// UserName returns the display name confirmed by the server handshake.
func (c *Client) UserName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userName
}

// Initialize establishes the session for the given identity. Concurrent
// calls share one connection attempt; calling it while already connected
// with the same user is a no-op. A different identity tears the previous
// session down first.
func (c *Client) Initialize(ctx context.Context, id Identity) error {
	if id.UserID == "" {
		return errors.New("chatclient: identity requires a user id")
	}
	_, err, _ := c.sf.Do("initialize", func() (any, error) {
		return nil, c.initialize(ctx, id)
	})
	return err
}

func (c *Client) initialize(ctx context.Context, id Identity) error {
	c.mu.Lock()
	if c.state == StateConnected && c.sess != nil && c.identity.UserID == id.UserID {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	prev := c.sess
	c.sess = nil
	c.state = StateConnecting
	c.connErr = nil
	c.serverErr = ""
	c.identity = id
	c.hasIdentity = true
	c.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	// fresh identity, fresh caches
	c.rooms.reset()
	c.typing.reset()
	c.presence.reset()

	c.log.Info("chatclient - initialize - connecting", "user_id", id.UserID, "url", c.cfg.URL)
	sess, err := dialSession(ctx, c.cfg, id)
	if err != nil {
		connErr := asConnectionError(err)
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateFailed
			c.connErr = connErr
		}
		c.mu.Unlock()
		c.log.Error("chatclient - initialize - connect failed", "user_id", id.UserID, "kind", string(connErr.Kind), "err", err)
		c.dispatcher.emitConnectionFailed(connErr)
		return connErr
	}
	if !c.install(gen, sess) {
		sess.close()
		return errors.New("chatclient: connection superseded")
	}
	c.log.Info("chatclient - initialize - connected", "user_id", id.UserID)
	return nil
}

// install wires a freshly dialed session in: joined rooms are replayed
// before any other outbound traffic, presence and typing caches are
// emptied to await fresh pushes, then the read pump starts.
func (c *Client) install(gen uint64, sess *session) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	for _, convID := range c.rooms.list() {
		env, _ := protocol.NewEnvelope(protocol.EventJoinConversation, protocol.ConversationPayload{ConversationID: convID})
		_ = sess.emit(env)
	}

	c.presence.reset()
	c.typing.reset()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.sess = sess
	c.state = StateConnected
	c.connErr = nil
	c.mu.Unlock()

	sess.run(
		func(env protocol.Envelope) { c.handleEnvelope(env) },
		func(err error) { c.handleClosed(gen, err) },
	)
	c.dispatcher.emitConnected()
	return true
}

func (c *Client) handleClosed(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.sess == nil {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	connErr := classifyCloseError(err)
	if !connErr.Retryable() {
		c.state = StateFailed
		c.connErr = connErr
		c.mu.Unlock()
		c.log.Error("chatclient - session closed - not retryable", "kind", string(connErr.Kind), "err", err)
		c.dispatcher.emitDisconnected(connErr.Msg)
		c.dispatcher.emitConnectionFailed(connErr)
		return
	}
	c.state = StateReconnecting
	c.mu.Unlock()
	c.log.Warn("chatclient - session closed - reconnecting", "err", err)
	c.dispatcher.emitDisconnected(connErr.Msg)
	go c.runReconnect(gen)
}

func (c *Client) runReconnect(gen uint64) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitialWait
	bo.MaxInterval = c.cfg.ReconnectMaxWait
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		delay := bo.NextBackOff()
		c.dispatcher.emitReconnecting(attempt, delay)
		time.Sleep(delay)

		c.mu.Lock()
		if c.gen != gen || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		id := c.identity
		c.mu.Unlock()

		sess, err := dialSession(context.Background(), c.cfg, id)
		if err != nil {
			connErr := asConnectionError(err)
			c.log.Warn("chatclient - reconnect attempt failed", "attempt", attempt, "kind", string(connErr.Kind), "err", err)
			if !connErr.Retryable() {
				c.failReconnect(gen, connErr)
				return
			}
			continue
		}

		c.mu.Lock()
		if c.gen != gen || c.state != StateReconnecting {
			c.mu.Unlock()
			sess.close()
			return
		}
		c.gen++
		newGen := c.gen
		c.mu.Unlock()

		if c.install(newGen, sess) {
			c.log.Info("chatclient - reconnected", "attempt", attempt)
		} else {
			sess.close()
		}
		return
	}
	c.failReconnect(gen, &ConnectionError{Kind: KindTimeout, Msg: "reconnect attempts exhausted"})
}

func (c *Client) failReconnect(gen uint64, connErr *ConnectionError) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.connErr = connErr
	c.mu.Unlock()
	c.log.Error("chatclient - reconnect gave up", "kind", string(connErr.Kind))
	c.dispatcher.emitConnectionFailed(connErr)
}

// Reconnect clears the recorded error and retries with the last-known
// identity. Used after automatic backoff exhausted or on explicit user
// request.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasIdentity {
		c.mu.Unlock()
		return ErrNoIdentity
	}
	id := c.identity
	c.connErr = nil
	c.mu.Unlock()
	return c.Initialize(ctx, id)
}

// Teardown disconnects and resets every dependent cache. Used on logout;
// the Client is reusable via Initialize afterwards.
func (c *Client) Teardown() {
	c.mu.Lock()
	c.gen++
	prev := c.sess
	c.sess = nil
	c.state = StateDisconnected
	c.connErr = nil
	c.serverErr = ""
	c.identity = Identity{}
	c.hasIdentity = false
	c.userName = ""
	c.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	c.rooms.reset()
	c.typing.reset()
	c.presence.reset()
	c.exchange.reset()
	if prev != nil {
		c.dispatcher.emitDisconnected("client teardown")
	}
}

// emit sends one envelope through the live session, failing fast when not
// connected.
func (c *Client) emit(event string, payload any) error {
	c.mu.Lock()
	sess := c.sess
	state := c.state
	c.mu.Unlock()
	if state != StateConnected || sess == nil {
		return ErrNotConnected
	}
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return sess.emit(env)
}

func asConnectionError(err error) *ConnectionError {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr
	}
	return &ConnectionError{Kind: KindUnknown, Msg: "connection failed", Cause: err}
}

// ---- message exchange operations ----

type sendOptions struct {
	messageType protocol.MessageType
	replyToID   string
	receiverID  string
	tempID      string
	attachments []protocol.Attachment
}

// SendOption customizes a Send.
type SendOption func(*sendOptions)

func WithMessageType(t protocol.MessageType) SendOption {
	return func(o *sendOptions) { o.messageType = t }
}

func WithReplyTo(messageID string) SendOption {
	return func(o *sendOptions) { o.replyToID = messageID }
}

func WithReceiver(userID string) SendOption {
	return func(o *sendOptions) { o.receiverID = userID }
}

// WithTempID overrides the generated temp id; a temp id still in flight
// is rejected.
func WithTempID(tempID string) SendOption {
	return func(o *sendOptions) { o.tempID = tempID }
}

func WithAttachments(atts ...protocol.Attachment) SendOption {
	return func(o *sendOptions) { o.attachments = atts }
}

// Send emits a message optimistically and returns the provisional record
// (status SENT, temp id set, no durable id yet). It never blocks on the
// network; reconciliation with the durable record arrives via the
// message_sent event. Not connected means an immediate ErrNotConnected;
// nothing is queued.
func (c *Client) Send(conversationID, content string, opts ...SendOption) (protocol.Message, error) {
	c.mu.Lock()
	state := c.state
	sess := c.sess
	senderID := c.identity.UserID
	c.mu.Unlock()
	if state != StateConnected || sess == nil {
		return protocol.Message{}, ErrNotConnected
	}

	o := sendOptions{messageType: protocol.MessageTypeText}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tempID == "" {
		o.tempID = uuid.NewString()
	}

	msg := &protocol.Message{
		TempID:         o.tempID,
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     o.receiverID,
		Content:        content,
		MessageType:    o.messageType,
		Status:         protocol.StatusSent,
		ReplyToID:      o.replyToID,
		Attachments:    o.attachments,
		CreatedAt:      time.Now(),
	}
	if err := c.exchange.addOutgoing(msg); err != nil {
		return protocol.Message{}, err
	}

	env, err := protocol.NewEnvelope(protocol.EventSendMessage, protocol.SendMessagePayload{
		ConversationID: conversationID,
		Content:        content,
		MessageType:    o.messageType,
		ReplyToID:      o.replyToID,
		TempID:         o.tempID,
		ReceiverID:     o.receiverID,
		Attachments:    o.attachments,
	})
	if err == nil {
		err = sess.emit(env)
	}
	if err != nil {
		c.exchange.dropOutgoing(msg)
		return protocol.Message{}, err
	}
	return *msg, nil
}

// EditMessage is fire-and-forget; the authoritative result arrives as a
// message_edited event.
func (c *Client) EditMessage(messageID, newContent string) error {
	return c.emit(protocol.EventEditMessage, protocol.EditMessagePayload{
		MessageID:  messageID,
		NewContent: newContent,
	})
}

// DeleteMessage is fire-and-forget; the authoritative result arrives as a
// message_deleted event.
func (c *Client) DeleteMessage(messageID string) error {
	return c.emit(protocol.EventDeleteMessage, protocol.DeleteMessagePayload{MessageID: messageID})
}

// MarkMessagesRead advises the server that messages were read. No ack is
// expected. An empty id list means everything unread in the conversation.
func (c *Client) MarkMessagesRead(conversationID string, messageIDs ...string) error {
	err := c.emit(protocol.EventMarkMessagesRead, protocol.MarkMessagesReadPayload{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
	})
	if err == nil {
		c.exchange.setUnread(conversationID, 0)
	}
	return err
}

// Messages returns the conversation's locally known messages in the
// order their events were received. No reordering by timestamp happens:
// without a server sequence number, delivery order is the only ordering
// signal there is.
func (c *Client) Messages(conversationID string) []protocol.Message {
	return c.exchange.snapshot(conversationID)
}

// PendingSends reports how many sends still await acknowledgment.
func (c *Client) PendingSends() int { return c.exchange.pendingCount() }

// UnreadCount returns the last unread count pushed for the conversation.
func (c *Client) UnreadCount(conversationID string) int {
	return c.exchange.unreadCount(conversationID)
}

// ---- room membership operations ----

// JoinConversation subscribes to a room. Membership is recorded only on a
// successful emit, so joins attempted while disconnected fail fast and
// the caller re-issues them once Connected is observed. Recorded rooms
// are replayed automatically after every reconnect.
func (c *Client) JoinConversation(conversationID string) error {
	if err := c.emit(protocol.EventJoinConversation, protocol.ConversationPayload{ConversationID: conversationID}); err != nil {
		return err
	}
	c.rooms.add(conversationID)
	return nil
}

// LeaveConversation unsubscribes from a room; a no-op when not a member.
func (c *Client) LeaveConversation(conversationID string) error {
	if !c.rooms.remove(conversationID) {
		return nil
	}
	return c.emit(protocol.EventLeaveConversation, protocol.ConversationPayload{ConversationID: conversationID})
}

// Rooms returns the sorted ids of joined conversations.
func (c *Client) Rooms() []string { return c.rooms.list() }

// ---- typing operations ----

// StartTyping is safe to call on every keystroke: the event goes out only
// when the local typing state actually flips.
func (c *Client) StartTyping(conversationID string) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateConnected {
		return ErrNotConnected
	}
	if !c.typing.markLocal(conversationID, true) {
		return nil
	}
	if err := c.emit(protocol.EventTypingStart, protocol.ConversationPayload{ConversationID: conversationID}); err != nil {
		c.typing.markLocal(conversationID, false)
		return err
	}
	return nil
}

// StopTyping signals the end of local typing, normally from the caller's
// input-idle timer.
func (c *Client) StopTyping(conversationID string) error {
	if !c.typing.markLocal(conversationID, false) {
		return nil
	}
	return c.emit(protocol.EventTypingStop, protocol.ConversationPayload{ConversationID: conversationID})
}

// Typists returns the users currently typing in the conversation.
func (c *Client) Typists(conversationID string) []string {
	return c.typing.typists(conversationID)
}

// ---- presence accessors ----

func (c *Client) IsOnline(userID string) bool { return c.presence.IsOnline(userID) }

func (c *Client) LastSeen(userID string) (time.Time, bool) { return c.presence.LastSeen(userID) }

func (c *Client) OnlineUsers() []string { return c.presence.OnlineUsers() }

// ---- inbound event routing ----

func (c *Client) handleEnvelope(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventConnectionConfirmed:
		var p protocol.ConnectionConfirmedPayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		c.mu.Lock()
		c.userName = p.UserName
		c.mu.Unlock()
		c.dispatcher.emitConfirmed(p)

	case protocol.EventNewMessage:
		var m protocol.Message
		if !decode(env.Data, &m, c.log, env.Event) {
			return
		}
		if c.exchange.applyInbound(m) {
			c.dispatcher.emitNewMessage(m)
		}

	case protocol.EventMessageSent:
		var p protocol.MessageSentPayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		if c.exchange.applyAck(p) {
			c.dispatcher.emitMessageSent(p)
		}

	case protocol.EventMessageEdited:
		var m protocol.Message
		if !decode(env.Data, &m, c.log, env.Event) {
			return
		}
		c.exchange.applyEdit(m)
		c.dispatcher.emitMessageEdited(m)

	case protocol.EventMessageDeleted:
		var p protocol.MessageDeletedPayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		c.exchange.applyDelete(p.MessageID, p.ConversationID)
		c.dispatcher.emitMessageDeleted(p)

	case protocol.EventMessagesRead:
		var p protocol.MessagesReadPayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		c.mu.Lock()
		localUser := c.identity.UserID
		c.mu.Unlock()
		c.exchange.applyRead(p, localUser, time.Now())
		c.dispatcher.emitMessagesRead(p)

	case protocol.EventUserTyping:
		var p protocol.UserTypingPayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		c.typing.applyRemote(p.ConversationID, p.UserID, p.IsTyping)
		c.dispatcher.emitUserTyping(p)

	case protocol.EventUserOnline:
		var p protocol.PresencePayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		c.presence.applyOnline(p.UserID)
		c.dispatcher.emitUserOnline(p)

	case protocol.EventUserOffline:
		var p protocol.PresencePayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		c.presence.applyOffline(p.UserID, p.LastSeen)
		c.dispatcher.emitUserOffline(p)

	case protocol.EventMessageNotification:
		var p protocol.MessageNotificationPayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		c.exchange.setUnread(p.ConversationID, p.UnreadCount)
		c.dispatcher.emitNotification(p)

	case protocol.EventError:
		var p protocol.ErrorPayload
		if !decode(env.Data, &p, c.log, env.Event) {
			return
		}
		c.mu.Lock()
		c.serverErr = p.Message
		c.mu.Unlock()
		c.dispatcher.emitServerError(p.Message)

	default:
		c.log.Debug("chatclient - unhandled event", "event", env.Event)
	}
}

func decode(data json.RawMessage, v any, log *slog.Logger, event string) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn("chatclient - bad payload", "event", event, "err", err)
		return false
	}
	return true
}
