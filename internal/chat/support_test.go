package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type emittedEvent struct {
	Kind    string // room, roomExcept, user, broadcast
	Target  string
	Exclude string
	Event   string
	Payload any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (f *fakeEmitter) record(ev emittedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeEmitter) ToRoom(roomID, event string, payload any) {
	f.record(emittedEvent{Kind: "room", Target: roomID, Event: event, Payload: payload})
}

func (f *fakeEmitter) ToRoomExcept(roomID, excludeUserID, event string, payload any) {
	f.record(emittedEvent{Kind: "roomExcept", Target: roomID, Exclude: excludeUserID, Event: event, Payload: payload})
}

func (f *fakeEmitter) ToUser(userID, event string, payload any) {
	f.record(emittedEvent{Kind: "user", Target: userID, Event: event, Payload: payload})
}

func (f *fakeEmitter) Broadcast(excludeUserID, event string, payload any) {
	f.record(emittedEvent{Kind: "broadcast", Exclude: excludeUserID, Event: event, Payload: payload})
}

func (f *fakeEmitter) byEvent(event string) []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedEvent
	for _, ev := range f.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

type typingCall struct {
	RoomID   string
	UserID   string
	IsTyping bool
}

type fakeLive struct {
	mu     sync.Mutex
	online []string
	typing []typingCall
	err    error
}

func (f *fakeLive) SetUserOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, userID)
	return f.err
}

func (f *fakeLive) SetUserOffline(_ context.Context, userID string) error {
	return f.err
}

func (f *fakeLive) SetUserTyping(_ context.Context, roomID, userID string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingCall{RoomID: roomID, UserID: userID, IsTyping: isTyping})
	return f.err
}

type fakeRelay struct {
	mu     sync.Mutex
	events []any
}

func (f *fakeRelay) Publish(_ context.Context, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func seedUser(t *testing.T, db *gorm.DB, name, role string) *User {
	t.Helper()
	u := &User{ID: uuid.New().String(), Name: name, Role: role, CreatedAt: time.Now()}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

// seedPair creates a student, an advisor and their room.
func seedPair(t *testing.T, db *gorm.DB) (*User, *User, *ChatRoom) {
	t.Helper()
	student := seedUser(t, db, "Amina", RoleStudent)
	advisor := seedUser(t, db, "Dr. Boateng", RoleAdvisor)
	room := &ChatRoom{
		ID:             uuid.New().String(),
		StudentID:      student.ID,
		AdvisorID:      advisor.ID,
		LastActivityAt: time.Now(),
		CreatedAt:      time.Now(),
	}
	if err := db.Create(room).Error; err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return student, advisor, room
}
