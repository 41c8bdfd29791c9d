package protocol

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the transport. Client-to-server and
// server-to-client directions share one envelope format.
const (
	// client -> server
	EventSendMessage       = "send_message"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkMessagesRead  = "mark_messages_read"
	EventEditMessage       = "edit_message"
	EventDeleteMessage     = "delete_message"

	// server -> client
	EventNewMessage          = "new_message"
	EventMessageSent         = "message_sent"
	EventUserTyping          = "user_typing"
	EventMessagesRead        = "messages_read"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventMessageNotification = "message_notification"
	EventConnectionConfirmed = "connection_confirmed"
	EventError               = "error"
)

// Envelope is the wire format: one JSON object per WebSocket text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an Envelope for the given event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// SendMessagePayload is the client's send_message request.
type SendMessagePayload struct {
	ConversationID string       `json:"conversationId"`
	Content        string       `json:"content"`
	MessageType    MessageType  `json:"messageType,omitempty"`
	ReplyToID      string       `json:"replyToId,omitempty"`
	TempID         string       `json:"tempId,omitempty"`
	ReceiverID     string       `json:"receiverId,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// MessageSentPayload acknowledges a send back to its author only.
type MessageSentPayload struct {
	TempID  string  `json:"tempId"`
	Message Message `json:"message"`
}

// ConversationPayload carries a bare conversation reference
// (join_conversation, leave_conversation, typing_start, typing_stop).
type ConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// UserTypingPayload fans a typist state change out to a room.
type UserTypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// MarkMessagesReadPayload is advisory; an empty MessageIDs slice means
// "everything unread in the conversation".
type MarkMessagesReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

// MessagesReadPayload propagates read receipts to the room.
type MessagesReadPayload struct {
	ConversationID string   `json:"conversationId"`
	ReadByUserID   string   `json:"readByUserId"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

// EditMessagePayload is the client's edit request.
type EditMessagePayload struct {
	MessageID  string `json:"messageId"`
	NewContent string `json:"newContent"`
}

// DeleteMessagePayload is the client's delete request.
type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// MessageDeletedPayload propagates a deletion to the room.
type MessageDeletedPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// PresencePayload announces a user going online or offline.
type PresencePayload struct {
	UserID   string     `json:"userId"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// MessageNotificationPayload nudges a receiver's other surfaces (badge
// counts) without requiring room membership.
type MessageNotificationPayload struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
	UnreadCount    int     `json:"unreadCount"`
}

// ConnectionConfirmedPayload is emitted once the server has validated the
// handshake identity.
type ConnectionConfirmedPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ErrorPayload is a transport-safe server error.
type ErrorPayload struct {
	Message string `json:"message"`
}
