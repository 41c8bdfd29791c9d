package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

type fakeClient struct {
	userID string
	connID string

	mu   sync.Mutex
	sent []protocol.Envelope
}

func (f *fakeClient) UserID() string { return f.userID }
func (f *fakeClient) ConnID() string { return f.connID }
func (f *fakeClient) Close()         {}

func (f *fakeClient) Send(_ context.Context, env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func envOf(t *testing.T, event string) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(event, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("building envelope: %v", err)
	}
	return env
}

func TestRegistrySendToUserHitsAllDevices(t *testing.T) {
	h := NewRegistry()
	phone := &fakeClient{userID: "u1", connID: "c1"}
	laptop := &fakeClient{userID: "u1", connID: "c2"}
	other := &fakeClient{userID: "u2", connID: "c3"}
	h.Register(phone)
	h.Register(laptop)
	h.Register(other)

	h.SendToUser(context.Background(), "u1", envOf(t, "message_notification"))

	if phone.sentCount() != 1 || laptop.sentCount() != 1 {
		t.Fatalf("both devices must receive, got %d/%d", phone.sentCount(), laptop.sentCount())
	}
	if other.sentCount() != 0 {
		t.Fatal("other user must not receive")
	}
	if h.ConnCount("u1") != 2 {
		t.Fatalf("ConnCount=%d, want 2", h.ConnCount("u1"))
	}
	h.Unregister(phone)
	if h.ConnCount("u1") != 1 {
		t.Fatalf("ConnCount after unregister=%d, want 1", h.ConnCount("u1"))
	}
}

func TestRegistryBroadcastToRoomExcludesOrigin(t *testing.T) {
	h := NewRegistry()
	a := &fakeClient{userID: "u1", connID: "c1"}
	b := &fakeClient{userID: "u2", connID: "c2"}
	outsider := &fakeClient{userID: "u3", connID: "c3"}
	h.Register(a)
	h.Register(b)
	h.Register(outsider)
	h.Join(a, "conv-1")
	h.Join(b, "conv-1")

	h.BroadcastToRoom(context.Background(), "conv-1", envOf(t, "new_message"), "c1")

	if a.sentCount() != 0 {
		t.Fatal("origin connection must be excluded")
	}
	if b.sentCount() != 1 {
		t.Fatalf("room member got %d envelopes, want 1", b.sentCount())
	}
	if outsider.sentCount() != 0 {
		t.Fatal("non-member must not receive room traffic")
	}
}

func TestRegistryJoinRequiresRegistration(t *testing.T) {
	h := NewRegistry()
	ghost := &fakeClient{userID: "u1", connID: "c1"}
	h.Join(ghost, "conv-1")
	h.BroadcastToRoom(context.Background(), "conv-1", envOf(t, "new_message"), "")
	if ghost.sentCount() != 0 {
		t.Fatal("unregistered connection joined a room")
	}
}

func TestRegistryWorkerLifecycle(t *testing.T) {
	h := NewRegistry()
	var starts int32
	var stops int32
	h.RunWorker(func(ctx context.Context, convID string) error {
		atomic.AddInt32(&starts, 1)
		<-ctx.Done()
		atomic.AddInt32(&stops, 1)
		return nil
	})

	a := &fakeClient{userID: "u1", connID: "c1"}
	b := &fakeClient{userID: "u2", connID: "c2"}
	h.Register(a)
	h.Register(b)

	h.Join(a, "conv-1")
	h.Join(b, "conv-1") // second member, no second worker
	waitCount(t, &starts, 1, "worker never started")

	h.Leave(a, "conv-1")
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&stops) != 0 {
		t.Fatal("worker stopped while the room still had a member")
	}

	// Unregister covers implicit leave of every joined room.
	h.Unregister(b)
	waitCount(t, &stops, 1, "worker never stopped after the room emptied")

	// A fresh first member starts a fresh worker.
	h.Register(a)
	h.Join(a, "conv-1")
	waitCount(t, &starts, 2, "worker not restarted for repopulated room")
}

func waitCount(t *testing.T, n *int32, want int32, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(n) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s (count=%d, want %d)", msg, atomic.LoadInt32(n), want)
}
