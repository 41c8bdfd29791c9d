package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/next-dentist/next-dentist-sub003/internal/core/contracts"
	"github.com/next-dentist/next-dentist-sub003/internal/core/domain"
	"github.com/next-dentist/next-dentist-sub003/internal/core/services"
)

// ConversationWorker drains one conversation stream: persist, fan out,
// ack, delete. One worker runs per room with at least one local member.
type ConversationWorker struct {
	log      *slog.Logger
	queue    contracts.MessageQueue
	messages services.IMessageService
	conGroup string
}

func NewConversationWorker(
	log *slog.Logger,
	queue contracts.MessageQueue,
	messages services.IMessageService,
	conGroup string,
) contracts.AsyncWorker {
	return &ConversationWorker{
		log:      log,
		queue:    queue,
		messages: messages,
		conGroup: conGroup,
	}
}

func (w *ConversationWorker) Run(ctx context.Context, convID string) error {
	if err := w.queue.SubscribeToStream(ctx, convID, w.conGroup, w.ProcessMessage); err != nil {
		w.log.ErrorContext(ctx, "worker - run - subscribe to stream failed", "topic", convID, "group", w.conGroup, "err", err)
		return err
	}
	w.log.InfoContext(ctx, "worker - run - subscribe to stream success", "topic", convID, "group", w.conGroup)
	return nil
}

func (w *ConversationWorker) ProcessMessage(
	ctx context.Context,
	messageID string,
	raw []byte,
) error {
	var pending domain.PendingMessage
	if err := json.Unmarshal(raw, &pending); err != nil {
		w.log.Error("worker - process message - wrong payload", "message_id", messageID)
		return err
	}
	if err := w.messages.SaveAndBroadcast(ctx, &pending); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - save and broadcast failed", "message_id", messageID, "err", err)
		return err
	}
	// DB save confirmed; remove the entry from the pending entries list.
	if err := w.queue.AcknowledgeMessage(ctx, pending.ConversationID, w.conGroup, messageID); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - acknowledge message failed", "message_id", messageID, "err", err)
		return err
	}
	// XDEL keeps the stream memory-efficient; failure here is harmless,
	// the entry is already ACKed.
	if err := w.queue.DeleteMessage(ctx, pending.ConversationID, messageID); err != nil {
		w.log.ErrorContext(ctx, "worker - process message - delete message failed", "message_id", messageID, "err", err)
	}
	return nil
}
