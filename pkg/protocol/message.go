// Package protocol defines the wire contract of the real-time messaging
// layer: the message model, the event taxonomy, and the JSON envelope both
// the client and the server speak.
package protocol

import "time"

// MessageType discriminates the payload carried by a message.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeVoice  MessageType = "VOICE"
	MessageTypeVideo  MessageType = "VIDEO"
	MessageTypeSystem MessageType = "SYSTEM"
)

// MessageStatus is the delivery lifecycle of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
	StatusFailed    MessageStatus = "FAILED"
)

// Attachment is an opaque reference to externally stored media.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a chat entry. Before server acknowledgment it is identified
// only by TempID; once acknowledged, ID is the durable identity and TempID
// is preserved as the reconciliation join key.
type Message struct {
	ID             string        `json:"id,omitempty"`
	TempID         string        `json:"tempId,omitempty"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	ReceiverID     string        `json:"receiverId,omitempty"`
	Content        string        `json:"content"`
	MessageType    MessageType   `json:"messageType"`
	Status         MessageStatus `json:"status"`
	ReplyToID      string        `json:"replyToId,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	DeliveredAt    *time.Time    `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time    `json:"readAt,omitempty"`
}

// PresenceEntry is the best-effort online view of one user.
type PresenceEntry struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
