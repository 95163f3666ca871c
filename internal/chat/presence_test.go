package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestPresence_OnlineOfflineRoundTrip(t *testing.T) {
	db := openTestDB(t)
	emitter := &fakeEmitter{}
	reg := NewRegistry(NewRepo(db), &fakeLive{}, emitter, &fakeRelay{})
	userID := uuid.New().String()

	gen := reg.RegisterOnline(context.Background(), userID, "conn-1")
	if !reg.IsOnline(userID) {
		t.Fatalf("user must be online after registration")
	}
	if len(emitter.byEvent("user_online")) != 1 {
		t.Fatalf("expected a user_online broadcast")
	}

	var rec PresenceRecord
	if err := db.First(&rec, "user_id = ?", userID).Error; err != nil {
		t.Fatalf("presence record: %v", err)
	}
	if rec.Status != PresenceOnline {
		t.Fatalf("expected persisted online status, got %s", rec.Status)
	}

	reg.RegisterOffline(context.Background(), userID, gen)
	if reg.IsOnline(userID) {
		t.Fatalf("user must be offline after deregistration")
	}
	if len(emitter.byEvent("user_offline")) != 1 {
		t.Fatalf("expected a user_offline broadcast")
	}

	db.First(&rec, "user_id = ?", userID)
	if rec.Status != PresenceOffline {
		t.Fatalf("expected persisted offline status, got %s", rec.Status)
	}
}

func TestPresence_StaleDisconnectIgnored(t *testing.T) {
	db := openTestDB(t)
	emitter := &fakeEmitter{}
	reg := NewRegistry(NewRepo(db), &fakeLive{}, emitter, &fakeRelay{})
	userID := uuid.New().String()

	oldGen := reg.RegisterOnline(context.Background(), userID, "conn-old")
	newGen := reg.RegisterOnline(context.Background(), userID, "conn-new")

	// The superseded connection's disconnect handler fires late.
	reg.RegisterOffline(context.Background(), userID, oldGen)
	if !reg.IsOnline(userID) {
		t.Fatalf("a stale disconnect must not flip the user offline")
	}
	if len(emitter.byEvent("user_offline")) != 0 {
		t.Fatalf("a stale disconnect must not broadcast user_offline")
	}

	reg.RegisterOffline(context.Background(), userID, newGen)
	if reg.IsOnline(userID) {
		t.Fatalf("the current connection's disconnect must flip the user offline")
	}
}

func TestPresence_OnlyNewestOfManyConnectionsCounts(t *testing.T) {
	db := openTestDB(t)
	emitter := &fakeEmitter{}
	reg := NewRegistry(NewRepo(db), &fakeLive{}, emitter, &fakeRelay{})
	userID := uuid.New().String()

	const n = 5
	gens := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		gens = append(gens, reg.RegisterOnline(context.Background(), userID, fmt.Sprintf("conn-%d", i)))
	}

	// Every superseded connection disconnects, in order.
	for i := 0; i < n-1; i++ {
		reg.RegisterOffline(context.Background(), userID, gens[i])
		if !reg.IsOnline(userID) {
			t.Fatalf("disconnect %d of a superseded connection flipped the user offline", i)
		}
	}

	reg.RegisterOffline(context.Background(), userID, gens[n-1])
	if reg.IsOnline(userID) {
		t.Fatalf("the newest connection's disconnect must flip the user offline")
	}
	if got := len(emitter.byEvent("user_offline")); got != 1 {
		t.Fatalf("expected exactly one user_offline broadcast, got %d", got)
	}
}

func TestPresence_BestEffortWhenStoreFails(t *testing.T) {
	db := openTestDB(t)
	emitter := &fakeEmitter{}
	live := &fakeLive{err: fmt.Errorf("redis down")}
	reg := NewRegistry(NewRepo(db), live, emitter, &fakeRelay{})
	userID := uuid.New().String()

	gen := reg.RegisterOnline(context.Background(), userID, "conn-1")
	if !reg.IsOnline(userID) {
		t.Fatalf("mirror failure must not block the in-memory change")
	}
	if len(emitter.byEvent("user_online")) != 1 {
		t.Fatalf("mirror failure must not suppress the broadcast")
	}

	reg.RegisterOffline(context.Background(), userID, gen)
	if reg.IsOnline(userID) {
		t.Fatalf("offline must land despite the failing mirror")
	}
}

func TestPresence_RelaysStatusChanges(t *testing.T) {
	db := openTestDB(t)
	relay := &fakeRelay{}
	reg := NewRegistry(NewRepo(db), &fakeLive{}, &fakeEmitter{}, relay)
	userID := uuid.New().String()

	gen := reg.RegisterOnline(context.Background(), userID, "conn-1")
	reg.RegisterOffline(context.Background(), userID, gen)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	if len(relay.events) != 2 {
		t.Fatalf("expected 2 relayed presence events, got %d", len(relay.events))
	}
	online, ok := relay.events[0].(PresenceEvent)
	if !ok || online.UserID != userID || online.Status != PresenceOnline {
		t.Fatalf("unexpected first relayed event: %#v", relay.events[0])
	}
	offline, ok := relay.events[1].(PresenceEvent)
	if !ok || offline.UserID != userID || offline.Status != PresenceOffline {
		t.Fatalf("unexpected second relayed event: %#v", relay.events[1])
	}
}

func TestPresence_OnlineUsersSnapshot(t *testing.T) {
	db := openTestDB(t)
	reg := NewRegistry(NewRepo(db), &fakeLive{}, &fakeEmitter{}, &fakeRelay{})

	a, b := uuid.New().String(), uuid.New().String()
	reg.RegisterOnline(context.Background(), a, "conn-a")
	genB := reg.RegisterOnline(context.Background(), b, "conn-b")
	reg.RegisterOffline(context.Background(), b, genB)

	online := reg.OnlineUsers()
	if len(online) != 1 || online[0] != a {
		t.Fatalf("expected only %s online, got %v", a, online)
	}
}
