package chat

import (
	"context"
	"log"
	"sync"
	"time"
)

// Typing tracks ephemeral per-room typing state. State lives in memory
// plus a TTL'd redis key, never in the relational store; the TTL and
// ClearUser give abrupt disconnects the expiry the indicator needs.
// Access control is connection-level only: any authenticated user may
// signal typing for any room id.
type Typing struct {
	mu     sync.Mutex
	active map[string]map[string]bool // userID -> roomID -> typing

	live    LiveStore
	emitter Emitter
	relay   Relay
}

func NewTyping(live LiveStore, emitter Emitter, relay Relay) *Typing {
	return &Typing{
		active:  make(map[string]map[string]bool),
		live:    live,
		emitter: emitter,
		relay:   relay,
	}
}

func (t *Typing) Start(ctx context.Context, roomID, userID string) {
	t.mu.Lock()
	if t.active[userID] == nil {
		t.active[userID] = make(map[string]bool)
	}
	t.active[userID][roomID] = true
	t.mu.Unlock()

	t.signal(ctx, roomID, userID, true)
}

func (t *Typing) Stop(ctx context.Context, roomID, userID string) {
	t.mu.Lock()
	delete(t.active[userID], roomID)
	if len(t.active[userID]) == 0 {
		delete(t.active, userID)
	}
	t.mu.Unlock()

	t.signal(ctx, roomID, userID, false)
}

// ClearUser stops typing in every room the user was typing in. Called on
// disconnect so indicators never outlive the connection.
func (t *Typing) ClearUser(ctx context.Context, userID string) {
	t.mu.Lock()
	rooms := make([]string, 0, len(t.active[userID]))
	for roomID := range t.active[userID] {
		rooms = append(rooms, roomID)
	}
	delete(t.active, userID)
	t.mu.Unlock()

	for _, roomID := range rooms {
		t.signal(ctx, roomID, userID, false)
	}
}

func (t *Typing) signal(ctx context.Context, roomID, userID string, isTyping bool) {
	if err := t.live.SetUserTyping(ctx, roomID, userID, isTyping); err != nil {
		log.Printf("typing: failed to mirror typing state for %s in %s: %v", userID, roomID, err)
	}

	now := time.Now()
	t.emitter.ToRoomExcept(roomID, userID, "user_typing", map[string]any{
		"chat_room_id": roomID,
		"user_id":      userID,
		"typing":       isTyping,
		"timestamp":    now.Format(time.RFC3339),
	})

	if err := t.relay.Publish(ctx, TypingEvent{
		ChatRoomID: roomID,
		UserID:     userID,
		IsTyping:   isTyping,
		Timestamp:  now,
	}); err != nil {
		log.Printf("typing: failed to publish typing event: %v", err)
	}
}
