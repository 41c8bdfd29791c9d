package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/next-dentist/next-dentist-sub003/internal/core/domain"
	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

type fakeQueue struct {
	acked   []string
	deleted []string
}

func (q *fakeQueue) PublishToStream(context.Context, string, []byte) error { return nil }
func (q *fakeQueue) SubscribeToStream(context.Context, string, string, func(context.Context, string, []byte) error) error {
	return nil
}
func (q *fakeQueue) AcknowledgeMessage(_ context.Context, _, _, mesgID string) error {
	q.acked = append(q.acked, mesgID)
	return nil
}
func (q *fakeQueue) DeleteMessage(_ context.Context, _, mesgID string) error {
	q.deleted = append(q.deleted, mesgID)
	return nil
}
func (q *fakeQueue) DeleteStream(context.Context, string) error { return nil }

type fakeMessages struct {
	saved []*domain.PendingMessage
	err   error
}

func (m *fakeMessages) AcceptMessage(context.Context, string, string, protocol.SendMessagePayload) error {
	return nil
}
func (m *fakeMessages) SaveAndBroadcast(_ context.Context, pending *domain.PendingMessage) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, pending)
	return nil
}
func (m *fakeMessages) EditMessage(context.Context, string, protocol.EditMessagePayload) error {
	return nil
}
func (m *fakeMessages) DeleteMessage(context.Context, string, protocol.DeleteMessagePayload) error {
	return nil
}
func (m *fakeMessages) MarkRead(context.Context, string, protocol.MarkMessagesReadPayload) error {
	return nil
}

func TestProcessMessageAcksAfterPersist(t *testing.T) {
	queue := &fakeQueue{}
	msgs := &fakeMessages{}
	w := NewConversationWorker(slog.Default(), queue, msgs, "group-1")

	raw, _ := json.Marshal(domain.PendingMessage{
		TempID:         "t1",
		ConversationID: "conv-1",
		SenderID:       "u1",
		Content:        "hello",
	})
	if err := w.ProcessMessage(context.Background(), "1-0", raw); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if len(msgs.saved) != 1 || msgs.saved[0].TempID != "t1" {
		t.Fatalf("pending not persisted: %+v", msgs.saved)
	}
	if len(queue.acked) != 1 || queue.acked[0] != "1-0" {
		t.Fatalf("entry not acked: %v", queue.acked)
	}
	if len(queue.deleted) != 1 || queue.deleted[0] != "1-0" {
		t.Fatalf("entry not deleted: %v", queue.deleted)
	}
}

func TestProcessMessageLeavesEntryOnFailure(t *testing.T) {
	queue := &fakeQueue{}
	msgs := &fakeMessages{err: errors.New("db down")}
	w := NewConversationWorker(slog.Default(), queue, msgs, "group-1")

	raw, _ := json.Marshal(domain.PendingMessage{ConversationID: "conv-1", Content: "x"})
	if err := w.ProcessMessage(context.Background(), "1-0", raw); err == nil {
		t.Fatal("expected persist failure to propagate")
	}
	// Unacked entries stay in the pending list for redelivery.
	if len(queue.acked) != 0 || len(queue.deleted) != 0 {
		t.Fatal("failed entry must not be acked or deleted")
	}
}

func TestProcessMessageRejectsGarbage(t *testing.T) {
	queue := &fakeQueue{}
	w := NewConversationWorker(slog.Default(), queue, &fakeMessages{}, "group-1")
	if err := w.ProcessMessage(context.Background(), "1-0", []byte("not json")); err == nil {
		t.Fatal("expected an unmarshal error")
	}
}
