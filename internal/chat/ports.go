package chat

import "context"

// Emitter delivers events to live socket connections. The delivery layer
// implements it; services never touch the transport directly, so the same
// fan-out logic works over any long-lived transport.
type Emitter interface {
	// ToRoom sends to every connection subscribed to roomID.
	ToRoom(roomID, event string, payload any)
	// ToRoomExcept sends to every room subscriber except excludeUserID.
	ToRoomExcept(roomID, excludeUserID, event string, payload any)
	// ToUser sends to the user's connection, if any.
	ToUser(userID, event string, payload any)
	// Broadcast sends to every authenticated connection except excludeUserID.
	Broadcast(excludeUserID, event string, payload any)
}

// LiveStore mirrors ephemeral state (online set, typing keys) into redis
// for other ScholarConnect services. All calls are best-effort.
type LiveStore interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
	SetUserTyping(ctx context.Context, roomID, userID string, isTyping bool) error
}

// Relay publishes accepted events to the message broker for downstream
// consumers (notifications, analytics). Best-effort.
type Relay interface {
	Publish(ctx context.Context, event any) error
}
