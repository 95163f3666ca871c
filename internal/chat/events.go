package chat

import "time"

// Broker event payloads published for downstream services and consumed
// back when the backend originates a room event outside this process.

type MessageEvent struct {
	ID          string    `json:"id"`
	ChatRoomID  string    `json:"chat_room_id"`
	SenderID    string    `json:"sender_id"`
	ReceiverID  string    `json:"receiver_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
}

type TypingEvent struct {
	ChatRoomID string    `json:"chat_room_id"`
	UserID     string    `json:"user_id"`
	IsTyping   bool      `json:"is_typing"`
	Timestamp  time.Time `json:"timestamp"`
}

type PresenceEvent struct {
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
