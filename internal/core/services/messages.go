package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/next-dentist/next-dentist-sub003/internal/core/contracts"
	"github.com/next-dentist/next-dentist-sub003/internal/core/domain"
	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

type IMessageService interface {
	// AcceptMessage validates an inbound send and enqueues it on the
	// conversation stream. The message_sent ack is emitted only after
	// the worker persists it, so the ack always carries the durable id.
	AcceptMessage(ctx context.Context, senderID, connID string, p protocol.SendMessagePayload) error
	// SaveAndBroadcast persists a pending message atomically and fans
	// out message_sent / new_message / message_notification.
	SaveAndBroadcast(ctx context.Context, pending *domain.PendingMessage) error
	// EditMessage rewrites content and broadcasts message_edited.
	EditMessage(ctx context.Context, userID string, p protocol.EditMessagePayload) error
	// DeleteMessage soft-deletes and broadcasts message_deleted.
	DeleteMessage(ctx context.Context, userID string, p protocol.DeleteMessagePayload) error
	// MarkRead persists read receipts, resets the reader's unread count
	// and broadcasts messages_read to the room.
	MarkRead(ctx context.Context, userID string, p protocol.MarkMessagesReadPayload) error
}

type MessageService struct {
	queue     contracts.MessageQueue
	registry  contracts.Registry
	msgRepo   domain.MessageRepository
	convRepo  domain.ConversationRepository
	txManager contracts.TxManager
	log       *slog.Logger
}

func NewMessageService(
	log *slog.Logger,
	queue contracts.MessageQueue,
	registry contracts.Registry,
	msgRepo domain.MessageRepository,
	convRepo domain.ConversationRepository,
	txManager contracts.TxManager,
) *MessageService {
	return &MessageService{
		log:       log,
		queue:     queue,
		registry:  registry,
		msgRepo:   msgRepo,
		convRepo:  convRepo,
		txManager: txManager,
	}
}

func (s *MessageService) AcceptMessage(
	ctx context.Context,
	senderID, connID string,
	p protocol.SendMessagePayload,
) error {
	if p.ConversationID == "" {
		return domain.ErrInvalidConversationID
	}
	if p.Content == "" && len(p.Attachments) == 0 {
		return domain.ErrEmptyContent
	}
	msgType := p.MessageType
	if msgType == "" {
		msgType = protocol.MessageTypeText
	}
	pending := domain.PendingMessage{
		TempID:         p.TempID,
		OriginConnID:   connID,
		ConversationID: p.ConversationID,
		SenderID:       senderID,
		ReceiverID:     p.ReceiverID,
		Content:        p.Content,
		MessageType:    msgType,
		ReplyToID:      p.ReplyToID,
		Attachments:    p.Attachments,
		CreatedAt:      time.Now(),
	}
	raw, _ := json.Marshal(pending)
	if err := s.queue.PublishToStream(ctx, p.ConversationID, raw); err != nil {
		s.log.ErrorContext(ctx, "messages - accept message - publish to stream failed", "conv_id", p.ConversationID, "err", err)
		return err
	}
	s.log.InfoContext(ctx, "messages - accept message - queued", "conv_id", p.ConversationID, "temp_id", p.TempID)
	return nil
}

func (s *MessageService) SaveAndBroadcast(
	ctx context.Context,
	pending *domain.PendingMessage,
) error {
	msg := &protocol.Message{
		ID:             uuid.NewString(),
		TempID:         pending.TempID,
		ConversationID: pending.ConversationID,
		SenderID:       pending.SenderID,
		ReceiverID:     pending.ReceiverID,
		Content:        pending.Content,
		MessageType:    pending.MessageType,
		Status:         protocol.StatusSent,
		ReplyToID:      pending.ReplyToID,
		Attachments:    pending.Attachments,
		CreatedAt:      pending.CreatedAt,
	}
	var unread int
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		participants := []string{pending.SenderID}
		if pending.ReceiverID != "" {
			participants = append(participants, pending.ReceiverID)
		}
		if err := s.convRepo.EnsureConversation(txCtx, pending.ConversationID, participants); err != nil {
			return err
		}
		if err := s.msgRepo.Save(txCtx, msg); err != nil {
			return err
		}
		if pending.ReceiverID != "" {
			var err error
			if unread, err = s.convRepo.IncrementUnread(txCtx, pending.ConversationID, pending.ReceiverID); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		s.log.ErrorContext(ctx, "messages - save and broadcast - persist failed", "conv_id", pending.ConversationID, "err", err)
		return err
	}
	s.log.InfoContext(ctx, "messages - save and broadcast - persisted", "msg_id", msg.ID, "conv_id", msg.ConversationID)

	// Ack only the originating connection: the temp id means nothing to
	// the sender's other devices, which get new_message like everyone
	// else in the room.
	if ack, err := protocol.NewEnvelope(protocol.EventMessageSent, protocol.MessageSentPayload{
		TempID:  pending.TempID,
		Message: *msg,
	}); err == nil {
		s.registry.SendToConn(ctx, pending.OriginConnID, ack)
	}
	if env, err := protocol.NewEnvelope(protocol.EventNewMessage, msg); err == nil {
		s.registry.BroadcastToRoom(ctx, msg.ConversationID, env, pending.OriginConnID)
	}
	if pending.ReceiverID != "" {
		if note, err := protocol.NewEnvelope(protocol.EventMessageNotification, protocol.MessageNotificationPayload{
			ConversationID: msg.ConversationID,
			Message:        *msg,
			UnreadCount:    unread,
		}); err == nil {
			s.registry.SendToUser(ctx, pending.ReceiverID, note)
		}
	}
	return nil
}

func (s *MessageService) EditMessage(
	ctx context.Context,
	userID string,
	p protocol.EditMessagePayload,
) error {
	existing, err := s.msgRepo.GetMessageByID(ctx, p.MessageID)
	if err != nil {
		return err
	}
	if existing.SenderID != userID {
		return domain.ErrNotMessageSender
	}
	var updated *protocol.Message
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		updated, txErr = s.msgRepo.UpdateContent(txCtx, p.MessageID, p.NewContent)
		return txErr
	}); err != nil {
		s.log.ErrorContext(ctx, "messages - edit - update failed", "msg_id", p.MessageID, "err", err)
		return err
	}
	if env, err := protocol.NewEnvelope(protocol.EventMessageEdited, updated); err == nil {
		s.registry.BroadcastToRoom(ctx, updated.ConversationID, env, "")
	}
	return nil
}

func (s *MessageService) DeleteMessage(
	ctx context.Context,
	userID string,
	p protocol.DeleteMessagePayload,
) error {
	existing, err := s.msgRepo.GetMessageByID(ctx, p.MessageID)
	if err != nil {
		return err
	}
	if existing.SenderID != userID {
		return domain.ErrNotMessageSender
	}
	var convID string
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		convID, txErr = s.msgRepo.SoftDelete(txCtx, p.MessageID)
		return txErr
	}); err != nil {
		s.log.ErrorContext(ctx, "messages - delete - soft delete failed", "msg_id", p.MessageID, "err", err)
		return err
	}
	if env, err := protocol.NewEnvelope(protocol.EventMessageDeleted, protocol.MessageDeletedPayload{
		MessageID:      p.MessageID,
		ConversationID: convID,
	}); err == nil {
		s.registry.BroadcastToRoom(ctx, convID, env, "")
	}
	return nil
}

func (s *MessageService) MarkRead(
	ctx context.Context,
	userID string,
	p protocol.MarkMessagesReadPayload,
) error {
	if p.ConversationID == "" {
		return domain.ErrInvalidConversationID
	}
	var readIDs []string
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		if readIDs, txErr = s.msgRepo.MarkRead(txCtx, p.ConversationID, userID, p.MessageIDs); txErr != nil {
			return txErr
		}
		return s.convRepo.ResetUnread(txCtx, p.ConversationID, userID)
	}); err != nil {
		s.log.ErrorContext(ctx, "messages - mark read - failed", "conv_id", p.ConversationID, "user_id", userID, "err", err)
		return err
	}
	if len(readIDs) == 0 {
		return nil
	}
	if env, err := protocol.NewEnvelope(protocol.EventMessagesRead, protocol.MessagesReadPayload{
		ConversationID: p.ConversationID,
		ReadByUserID:   userID,
		MessageIDs:     readIDs,
	}); err == nil {
		s.registry.BroadcastToRoom(ctx, p.ConversationID, env, "")
	}
	return nil
}
