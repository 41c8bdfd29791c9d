package domain

import "errors"

var (
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrNotParticipant        = errors.New("user is not a conversation participant")
	ErrNotMessageSender      = errors.New("user is not the message sender")
	ErrEmptyContent          = errors.New("message content is empty")
)
