package domain

import (
	"time"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// Conversation holds what the messaging layer owns of a conversation:
// participants and unread bookkeeping. The full record lives in the
// marketplace database.
type Conversation struct {
	ID           string
	Participants []string
	CreatedAt    time.Time
}

// PendingMessage is a send accepted by the ingest path but not yet
// persisted; it travels through the conversation stream to the worker.
type PendingMessage struct {
	TempID         string                `json:"tempId"`
	OriginConnID   string                `json:"originConnId,omitempty"`
	ConversationID string                `json:"conversationId"`
	SenderID       string                `json:"senderId"`
	ReceiverID     string                `json:"receiverId,omitempty"`
	Content        string                `json:"content"`
	MessageType    protocol.MessageType  `json:"messageType"`
	ReplyToID      string                `json:"replyToId,omitempty"`
	Attachments    []protocol.Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
}
