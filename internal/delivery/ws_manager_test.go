package delivery

import (
	"fmt"
	"sync"
	"testing"

	"scholarconnect-ws/internal/chat"
)

func newConn(id string) *WSConnection {
	return &WSConnection{ID: id, rooms: make(map[string]bool)}
}

func TestHub_RoomSubscriptionBookkeeping(t *testing.T) {
	w := NewWSManager(nil, nil)

	alice := newConn("c1")
	bob := newConn("c2")
	w.addConnection(alice)
	w.addConnection(bob)
	w.registerUser(alice, &chat.User{ID: "u1", Role: chat.RoleStudent})
	w.registerUser(bob, &chat.User{ID: "u2", Role: chat.RoleAdvisor})

	w.subscribe(alice, "room-1")
	w.subscribe(bob, "room-1")
	w.subscribe(bob, "room-2")

	if got := len(w.roomTargets("room-1", "")); got != 2 {
		t.Fatalf("expected 2 subscribers in room-1, got %d", got)
	}
	if got := w.roomTargets("room-1", "u1"); len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("exclusion must drop the excluded user's connection, got %+v", got)
	}

	counts := w.GetActiveConnections()
	if counts["room-1"] != 2 || counts["room-2"] != 1 {
		t.Fatalf("unexpected room counts: %v", counts)
	}

	w.removeConnection(bob)
	if got := len(w.roomTargets("room-1", "")); got != 1 {
		t.Fatalf("expected 1 subscriber after disconnect, got %d", got)
	}
	if _, exists := w.GetActiveConnections()["room-2"]; exists {
		t.Fatalf("empty rooms must be cleaned up")
	}
}

func TestHub_NewestConnectionOwnsDirectDelivery(t *testing.T) {
	w := NewWSManager(nil, nil)

	old := newConn("c1")
	w.addConnection(old)
	w.registerUser(old, &chat.User{ID: "u1"})

	// The same user reconnects before the old connection tears down.
	fresh := newConn("c2")
	w.addConnection(fresh)
	w.registerUser(fresh, &chat.User{ID: "u1"})

	// The stale connection's teardown must not unmap the fresh one.
	w.removeConnection(old)

	w.mutex.RLock()
	got := w.byUser["u1"]
	w.mutex.RUnlock()
	if got == nil || got.ID != "c2" {
		t.Fatalf("direct delivery must target the newest connection, got %+v", got)
	}
}

// Registration assigns conn.User while Broadcast reads it from another
// goroutine; run with -race to catch an unsynchronized assignment.
func TestHub_ConcurrentAuthAndBroadcast(t *testing.T) {
	w := NewWSManager(nil, nil)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			conn := newConn(fmt.Sprintf("c%d", i))
			w.addConnection(conn)
			w.registerUser(conn, &chat.User{ID: fmt.Sprintf("u%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			w.Broadcast("u0", "user_online", map[string]any{"seq": i})
		}
	}()
	wg.Wait()

	w.mutex.RLock()
	defer w.mutex.RUnlock()
	if len(w.byUser) != n {
		t.Fatalf("expected %d registered users, got %d", n, len(w.byUser))
	}
}
