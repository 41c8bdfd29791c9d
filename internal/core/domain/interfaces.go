package domain

import (
	"context"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

// ConversationRepository handles conversation lifecycle and unread
// bookkeeping.
type ConversationRepository interface {
	GetConversationByID(ctx context.Context, convID string) (*Conversation, error)
	// EnsureConversation creates the conversation row if it does not exist.
	EnsureConversation(ctx context.Context, convID string, participants []string) error
	// IncrementUnread bumps the receiver's unread counter and returns the
	// new value.
	IncrementUnread(ctx context.Context, convID, userID string) (int, error)
	ResetUnread(ctx context.Context, convID, userID string) error
}

// MessageRepository handles durable message state.
type MessageRepository interface {
	// Save persists a message and stamps its durable identity.
	Save(ctx context.Context, msg *protocol.Message) error
	GetMessageByID(ctx context.Context, msgID string) (*protocol.Message, error)
	// UpdateContent rewrites the content of an existing message and
	// returns the updated record.
	UpdateContent(ctx context.Context, msgID, content string) (*protocol.Message, error)
	// SoftDelete marks a message deleted and returns its conversation id.
	SoftDelete(ctx context.Context, msgID string) (string, error)
	// MarkRead flips matching sent messages to READ for reader userID.
	// Empty msgIDs means every unread message in the conversation. Returns
	// the ids actually updated.
	MarkRead(ctx context.Context, convID, userID string, msgIDs []string) ([]string, error)
}
