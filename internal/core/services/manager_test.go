package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/next-dentist/next-dentist-sub003/internal/config"
	"github.com/next-dentist/next-dentist-sub003/internal/core/domain"
	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

type fakeConn struct {
	userID string
	connID string
	sent   []protocol.Envelope
}

func (f *fakeConn) UserID() string { return f.userID }
func (f *fakeConn) ConnID() string { return f.connID }
func (f *fakeConn) Close()         {}
func (f *fakeConn) Send(_ context.Context, env protocol.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

type fakePresence struct {
	online   map[string]bool
	lastSeen map[string]time.Time
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[string]bool), lastSeen: make(map[string]time.Time)}
}

func (p *fakePresence) SetOnline(_ context.Context, userID string, _ time.Duration) error {
	p.online[userID] = true
	return nil
}
func (p *fakePresence) SetOffline(_ context.Context, userID string, lastSeen time.Time) error {
	delete(p.online, userID)
	p.lastSeen[userID] = lastSeen
	return nil
}
func (p *fakePresence) OnlineUsers(context.Context) ([]string, error) {
	var out []string
	for id := range p.online {
		out = append(out, id)
	}
	return out, nil
}
func (p *fakePresence) LastSeen(_ context.Context, userID string) (*time.Time, error) {
	t, ok := p.lastSeen[userID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type recordingMessageService struct {
	accepted []protocol.SendMessagePayload
	read     []protocol.MarkMessagesReadPayload
}

func (m *recordingMessageService) AcceptMessage(_ context.Context, senderID, connID string, p protocol.SendMessagePayload) error {
	m.accepted = append(m.accepted, p)
	return nil
}
func (m *recordingMessageService) SaveAndBroadcast(context.Context, *domain.PendingMessage) error {
	return nil
}
func (m *recordingMessageService) EditMessage(context.Context, string, protocol.EditMessagePayload) error {
	return nil
}
func (m *recordingMessageService) DeleteMessage(context.Context, string, protocol.DeleteMessagePayload) error {
	return nil
}
func (m *recordingMessageService) MarkRead(_ context.Context, _ string, p protocol.MarkMessagesReadPayload) error {
	m.read = append(m.read, p)
	return nil
}

func newTestManager() (*ManagerService, *fakeRegistry, *fakePresence, *recordingMessageService) {
	reg := &fakeRegistry{}
	pres := newFakePresence()
	msgs := &recordingMessageService{}
	svc := NewManagerService(slog.Default(), reg, pres, msgs, config.PresenceConfig{
		HeartbeatInterval: 10 * time.Millisecond,
		TTL:               time.Second,
	})
	return svc, reg, pres, msgs
}

func mustEnvelope(t *testing.T, event string, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		t.Fatalf("building envelope: %v", err)
	}
	return env
}

func TestHandleConnectAnnouncesAndReplaysPresence(t *testing.T) {
	svc, reg, pres, _ := newTestManager()
	pres.online["u2"] = true

	conn := &fakeConn{userID: "u1", connID: "c1"}
	if err := svc.HandleConnect(context.Background(), conn); err != nil {
		t.Fatalf("HandleConnect failed: %v", err)
	}
	if !pres.online["u1"] {
		t.Fatal("user not marked online")
	}
	if len(reg.toAll) != 1 || reg.toAll[0].Event != protocol.EventUserOnline {
		t.Fatalf("user_online not broadcast: %+v", reg.toAll)
	}
	// The already-online u2 is replayed to the new connection; u1 itself
	// is not echoed back.
	if len(conn.sent) != 1 {
		t.Fatalf("expected 1 replayed presence entry, got %d", len(conn.sent))
	}
	var p protocol.PresencePayload
	if err := json.Unmarshal(conn.sent[0].Data, &p); err != nil {
		t.Fatalf("bad presence payload: %v", err)
	}
	if p.UserID != "u2" {
		t.Fatalf("replayed wrong user: %s", p.UserID)
	}
}

func TestHandleDisconnectOnlyForLastConnection(t *testing.T) {
	svc, reg, pres, _ := newTestManager()
	pres.online["u1"] = true
	conn := &fakeConn{userID: "u1", connID: "c1"}

	reg.connCount = 1 // another device still connected
	if err := svc.HandleDisconnect(context.Background(), conn); err != nil {
		t.Fatalf("HandleDisconnect failed: %v", err)
	}
	if !pres.online["u1"] || len(reg.toAll) != 0 {
		t.Fatal("presence changed while another device was connected")
	}

	reg.connCount = 0
	if err := svc.HandleDisconnect(context.Background(), conn); err != nil {
		t.Fatalf("HandleDisconnect failed: %v", err)
	}
	if pres.online["u1"] {
		t.Fatal("user still online after last disconnect")
	}
	if len(reg.toAll) != 1 || reg.toAll[0].Event != protocol.EventUserOffline {
		t.Fatalf("user_offline not broadcast: %+v", reg.toAll)
	}
	var p protocol.PresencePayload
	if err := json.Unmarshal(reg.toAll[0].Data, &p); err != nil {
		t.Fatalf("bad presence payload: %v", err)
	}
	if p.LastSeen == nil {
		t.Fatal("user_offline missing last seen")
	}
}

func TestHandleEventRoutesSendMessage(t *testing.T) {
	svc, _, _, msgs := newTestManager()
	conn := &fakeConn{userID: "u1", connID: "c1"}

	env := mustEnvelope(t, protocol.EventSendMessage, protocol.SendMessagePayload{
		ConversationID: "conv-1", Content: "hi", TempID: "t1",
	})
	if err := svc.HandleEvent(context.Background(), conn, env); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(msgs.accepted) != 1 || msgs.accepted[0].TempID != "t1" {
		t.Fatalf("send_message not routed: %+v", msgs.accepted)
	}
}

func TestHandleEventTypingExcludesTypist(t *testing.T) {
	svc, reg, _, _ := newTestManager()
	conn := &fakeConn{userID: "u1", connID: "c1"}

	env := mustEnvelope(t, protocol.EventTypingStart, protocol.ConversationPayload{ConversationID: "conv-1"})
	if err := svc.HandleEvent(context.Background(), conn, env); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(reg.toRoom) != 1 {
		t.Fatalf("expected 1 room broadcast, got %d", len(reg.toRoom))
	}
	sent := reg.toRoom[0]
	if sent.env.Event != protocol.EventUserTyping || sent.exclude != "c1" {
		t.Fatalf("typing fan-out wrong: event=%s exclude=%s", sent.env.Event, sent.exclude)
	}
	var p protocol.UserTypingPayload
	if err := json.Unmarshal(sent.env.Data, &p); err != nil {
		t.Fatalf("bad typing payload: %v", err)
	}
	if !p.IsTyping || p.UserID != "u1" {
		t.Fatalf("unexpected typing payload: %+v", p)
	}

	stop := mustEnvelope(t, protocol.EventTypingStop, protocol.ConversationPayload{ConversationID: "conv-1"})
	if err := svc.HandleEvent(context.Background(), conn, stop); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := json.Unmarshal(reg.toRoom[1].env.Data, &p); err != nil {
		t.Fatalf("bad typing payload: %v", err)
	}
	if p.IsTyping {
		t.Fatal("typing_stop must fan out isTyping=false")
	}
}

func TestHandleEventJoinLeave(t *testing.T) {
	svc, reg, _, _ := newTestManager()
	conn := &fakeConn{userID: "u1", connID: "c1"}

	join := mustEnvelope(t, protocol.EventJoinConversation, protocol.ConversationPayload{ConversationID: "conv-1"})
	if err := svc.HandleEvent(context.Background(), conn, join); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	leave := mustEnvelope(t, protocol.EventLeaveConversation, protocol.ConversationPayload{ConversationID: "conv-1"})
	if err := svc.HandleEvent(context.Background(), conn, leave); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if len(reg.joined) != 1 || reg.joined[0] != "conv-1" || len(reg.left) != 1 {
		t.Fatalf("join/leave not routed: joined=%v left=%v", reg.joined, reg.left)
	}

	// Joining nothing is rejected and reported to the client.
	bad := mustEnvelope(t, protocol.EventJoinConversation, protocol.ConversationPayload{})
	if err := svc.HandleEvent(context.Background(), conn, bad); err == nil {
		t.Fatal("expected an error for an empty conversation id")
	}
	if len(conn.sent) != 1 || conn.sent[0].Event != protocol.EventError {
		t.Fatalf("error envelope not sent: %+v", conn.sent)
	}
}

func TestHandleEventUnknownEventErrors(t *testing.T) {
	svc, _, _, _ := newTestManager()
	conn := &fakeConn{userID: "u1", connID: "c1"}

	env := protocol.Envelope{Event: "time_travel", Data: json.RawMessage(`{}`)}
	if err := svc.HandleEvent(context.Background(), conn, env); err == nil {
		t.Fatal("expected an error for an unknown event")
	}
	if len(conn.sent) != 1 || conn.sent[0].Event != protocol.EventError {
		t.Fatalf("error envelope not sent: %+v", conn.sent)
	}
}
