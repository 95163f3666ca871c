package domain

import "encoding/json"

// SocketEvent is the inbound envelope: a type tag plus a raw payload the
// handler decodes per event.
type SocketEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SocketResponse is the outbound envelope for everything the server
// emits, fan-out and direct replies alike.
type SocketResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type RoomPayload struct {
	ChatRoomID string `json:"chatRoomId"`
}

type SendMessagePayload struct {
	ChatRoomID       string         `json:"chatRoomId"`
	Content          string         `json:"content"`
	MessageType      string         `json:"messageType,omitempty"`
	ReplyToMessageID *string        `json:"replyToMessageId,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	// ReceiverID is accepted on the wire but never trusted; the server
	// computes the receiver from room membership.
	ReceiverID string `json:"receiverId,omitempty"`
}

type MarkAsReadPayload struct {
	ChatRoomID string   `json:"chatRoomId"`
	MessageIDs []string `json:"messageIds"`
}

type CallInitiatePayload struct {
	ChatRoomID string `json:"chatRoomId"`
	CallType   string `json:"type"`
	// ReceiverID is accepted but ignored, same as SendMessagePayload.
	ReceiverID string `json:"receiverId,omitempty"`
}

type CallActionPayload struct {
	CallID string `json:"callId"`
}
