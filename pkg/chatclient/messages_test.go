package chatclient

import (
	"testing"
	"time"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

func TestExchangeAckMutatesInPlace(t *testing.T) {
	e := newExchange()
	local := &protocol.Message{
		TempID:         "t1",
		ConversationID: "c1",
		SenderID:       "u1",
		Content:        "hello",
		Status:         protocol.StatusSent,
	}
	if err := e.addOutgoing(local); err != nil {
		t.Fatalf("addOutgoing failed: %v", err)
	}

	ok := e.applyAck(protocol.MessageSentPayload{
		TempID: "t1",
		Message: protocol.Message{
			ID:             "m1",
			ConversationID: "c1",
			SenderID:       "u1",
			Content:        "hello",
			Status:         protocol.StatusDelivered,
		},
	})
	if !ok {
		t.Fatal("first ack was not applied")
	}
	// The object registered at send time is the one that gained the id.
	if local.ID != "m1" {
		t.Fatalf("in-place reconcile failed, id=%q", local.ID)
	}
	if local.TempID != "t1" {
		t.Fatalf("temp id lost during reconcile, got %q", local.TempID)
	}
	if local.Status != protocol.StatusDelivered {
		t.Fatalf("status not taken from durable record, got %s", local.Status)
	}
	if e.pendingCount() != 0 {
		t.Fatalf("pending not cleared, count=%d", e.pendingCount())
	}

	if e.applyAck(protocol.MessageSentPayload{TempID: "t1"}) {
		t.Fatal("duplicate ack must be a no-op")
	}
	if got := e.snapshot("c1"); len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
}

func TestExchangeDuplicateTempID(t *testing.T) {
	e := newExchange()
	if err := e.addOutgoing(&protocol.Message{TempID: "t1", ConversationID: "c1"}); err != nil {
		t.Fatalf("addOutgoing failed: %v", err)
	}
	if err := e.addOutgoing(&protocol.Message{TempID: "t1", ConversationID: "c1"}); err != ErrDuplicateTempID {
		t.Fatalf("expected ErrDuplicateTempID, got %v", err)
	}
}

func TestExchangeDropOutgoing(t *testing.T) {
	e := newExchange()
	m := &protocol.Message{TempID: "t1", ConversationID: "c1"}
	if err := e.addOutgoing(m); err != nil {
		t.Fatalf("addOutgoing failed: %v", err)
	}
	e.dropOutgoing(m)
	if e.pendingCount() != 0 || len(e.snapshot("c1")) != 0 {
		t.Fatal("dropOutgoing left residue")
	}
	// The temp id is free again after the failed emit.
	if err := e.addOutgoing(m); err != nil {
		t.Fatalf("re-send with same temp id failed: %v", err)
	}
}

func TestExchangeInboundDedupe(t *testing.T) {
	e := newExchange()
	m := protocol.Message{ID: "m1", ConversationID: "c1", SenderID: "u2"}
	if !e.applyInbound(m) {
		t.Fatal("first inbound rejected")
	}
	if e.applyInbound(m) {
		t.Fatal("duplicate inbound accepted")
	}
	if got := e.snapshot("c1"); len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
}

func TestExchangeEditAndDeleteTolerant(t *testing.T) {
	e := newExchange()
	e.applyInbound(protocol.Message{ID: "m1", ConversationID: "c1", Content: "before"})

	e.applyEdit(protocol.Message{ID: "m1", Content: "after"})
	if got := e.snapshot("c1"); got[0].Content != "after" {
		t.Fatalf("edit not applied, content=%q", got[0].Content)
	}
	// Edits and deletes of unknown messages must not panic or create state.
	e.applyEdit(protocol.Message{ID: "missing", Content: "x"})
	e.applyDelete("missing", "c1")

	e.applyDelete("m1", "c1")
	if got := e.snapshot("c1"); len(got) != 0 {
		t.Fatalf("delete not applied, %d left", len(got))
	}
}

func TestExchangeReadReceiptsOwnMessagesOnly(t *testing.T) {
	e := newExchange()
	e.applyInbound(protocol.Message{ID: "mine", ConversationID: "c1", SenderID: "u1", Status: protocol.StatusSent})
	e.applyInbound(protocol.Message{ID: "theirs", ConversationID: "c1", SenderID: "u2", Status: protocol.StatusSent})

	at := time.Now()
	e.applyRead(protocol.MessagesReadPayload{ConversationID: "c1", ReadByUserID: "u2"}, "u1", at)

	for _, m := range e.snapshot("c1") {
		switch m.ID {
		case "mine":
			if m.Status != protocol.StatusRead || m.ReadAt == nil {
				t.Fatalf("own message not marked read: %+v", m)
			}
		case "theirs":
			if m.Status == protocol.StatusRead {
				t.Fatal("counterpart's message must not be marked read")
			}
		}
	}
}

func TestExchangeReadIgnoresOwnDeviceEcho(t *testing.T) {
	e := newExchange()
	e.applyInbound(protocol.Message{ID: "mine", ConversationID: "c1", SenderID: "u1", Status: protocol.StatusSent})

	// The user's other device marked received messages read; the server
	// may echo that with an empty id list. It must not flip the user's own
	// sent messages to READ.
	e.applyRead(protocol.MessagesReadPayload{ConversationID: "c1", ReadByUserID: "u1"}, "u1", time.Now())

	got := e.snapshot("c1")
	if got[0].Status == protocol.StatusRead || got[0].ReadAt != nil {
		t.Fatalf("own read echo marked own sent message read: %+v", got[0])
	}
}

func TestExchangeUnreadCounts(t *testing.T) {
	e := newExchange()
	e.setUnread("c1", 4)
	if e.unreadCount("c1") != 4 {
		t.Fatalf("unread=%d, want 4", e.unreadCount("c1"))
	}
	e.setUnread("c1", 0)
	if e.unreadCount("c1") != 0 {
		t.Fatalf("unread=%d, want 0", e.unreadCount("c1"))
	}
	if e.unreadCount("unknown") != 0 {
		t.Fatal("unknown conversation must read as zero")
	}
}
