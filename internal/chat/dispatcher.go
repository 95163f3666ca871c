package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Dispatcher validates, persists and fans out chat messages. The
// receiver of a message is always computed server-side as the room's
// other participant; anything the client claims about the receiver is
// ignored.
type Dispatcher struct {
	repo    *Repo
	rooms   *Rooms
	emitter Emitter
	relay   Relay
}

func NewDispatcher(repo *Repo, rooms *Rooms, emitter Emitter, relay Relay) *Dispatcher {
	return &Dispatcher{repo: repo, rooms: rooms, emitter: emitter, relay: relay}
}

// SendInput carries a send request. ReceiverID is deliberately absent.
type SendInput struct {
	ChatRoomID       string
	Content          string
	MessageType      string
	ReplyToMessageID *string
	Metadata         map[string]any
}

func validMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeImage, MessageTypeVoice:
		return true
	}
	return false
}

// Send persists the message and fans it out: a `message_received`
// broadcast to every room subscriber plus a `message_sent` ack to the
// sender only, so the sender gets both. Persistence failures surface to
// the sender and nothing is broadcast; the client resubmits.
func (d *Dispatcher) Send(ctx context.Context, senderID string, in SendInput) (*Message, error) {
	if in.Content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrValidationFailed)
	}
	if in.MessageType == "" {
		in.MessageType = MessageTypeText
	}
	if !validMessageType(in.MessageType) {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidationFailed, in.MessageType)
	}

	room, err := d.rooms.VerifyAccess(ctx, senderID, in.ChatRoomID)
	if err != nil {
		return nil, err
	}

	if in.ReplyToMessageID != nil {
		parent, err := d.repo.GetMessage(ctx, *in.ReplyToMessageID)
		if err != nil || parent.ChatRoomID != in.ChatRoomID {
			return nil, fmt.Errorf("%w: reply target not in room", ErrValidationFailed)
		}
	}

	msg := &Message{
		ID:               uuid.New().String(),
		ChatRoomID:       room.ID,
		SenderID:         senderID,
		ReceiverID:       room.OtherParticipant(senderID),
		Content:          in.Content,
		MessageType:      in.MessageType,
		ReplyToMessageID: in.ReplyToMessageID,
		Metadata:         in.Metadata,
		CreatedAt:        time.Now(),
	}
	if err := d.repo.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := d.repo.TouchRoomActivity(ctx, room.ID, msg.CreatedAt); err != nil {
		log.Printf("dispatcher: failed to touch room %s activity: %v", room.ID, err)
	}

	d.emitter.ToRoom(room.ID, "message_received", d.withDisplayInfo(ctx, msg))
	d.emitter.ToUser(senderID, "message_sent", map[string]any{
		"id":        msg.ID,
		"timestamp": msg.CreatedAt.Format(time.RFC3339),
	})

	if err := d.relay.Publish(ctx, MessageEvent{
		ID:          msg.ID,
		ChatRoomID:  msg.ChatRoomID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		Timestamp:   msg.CreatedAt,
	}); err != nil {
		log.Printf("dispatcher: failed to publish message event: %v", err)
	}

	return msg, nil
}

// Edit rewrites content, filtered by sender ownership at the row level.
// A zero-row result collapses "no such message" and "not the sender"
// into one answer so existence never leaks.
func (d *Dispatcher) Edit(ctx context.Context, messageID, requesterID, newContent string) (*Message, error) {
	if newContent == "" {
		return nil, fmt.Errorf("%w: empty content", ErrValidationFailed)
	}
	rows, err := d.repo.UpdateMessageContent(ctx, messageID, requesterID, newContent, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rows == 0 {
		return nil, ErrNotFoundOrForbidden
	}
	msg, err := d.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msg, nil
}

// Delete removes the sender's own message. No matching row is a silent
// no-op so deletes stay idempotent from the client's side.
func (d *Dispatcher) Delete(ctx context.Context, messageID, requesterID string) error {
	if _, err := d.repo.DeleteMessage(ctx, messageID, requesterID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// MarkManyRead flips is_read on messages addressed to the requester,
// upserts receipts, and notifies the other participant. The client's id
// list is first narrowed to messages that actually live in the room and
// name the requester as receiver; receipts and the notification carry
// only that confirmed subset.
func (d *Dispatcher) MarkManyRead(ctx context.Context, requesterID, roomID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return fmt.Errorf("%w: no message ids", ErrValidationFailed)
	}
	room, err := d.rooms.VerifyAccess(ctx, requesterID, roomID)
	if err != nil {
		return err
	}

	confirmed, err := d.repo.AddressedMessageIDs(ctx, roomID, messageIDs, requesterID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(confirmed) == 0 {
		return nil
	}

	rows, err := d.repo.MarkMessagesRead(ctx, roomID, confirmed, requesterID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rows == 0 {
		return nil
	}

	now := time.Now()
	if err := d.repo.UpsertReadReceipts(ctx, confirmed, requesterID, now); err != nil {
		log.Printf("dispatcher: failed to upsert read receipts: %v", err)
	}

	d.emitter.ToUser(room.OtherParticipant(requesterID), "messages_read", map[string]any{
		"chat_room_id": roomID,
		"message_ids":  confirmed,
		"reader_id":    requesterID,
		"timestamp":    now.Format(time.RFC3339),
	})
	return nil
}

// MarkRead is the single-message form of MarkManyRead.
func (d *Dispatcher) MarkRead(ctx context.Context, requesterID, roomID, messageID string) error {
	return d.MarkManyRead(ctx, requesterID, roomID, []string{messageID})
}

// History returns a page of room messages, newest first, gated by
// membership like everything else. before and beforeID together form
// the keyset cursor; beforeID disambiguates rows sharing a timestamp.
func (d *Dispatcher) History(ctx context.Context, userID, roomID string, limit int, before time.Time, beforeID string) ([]Message, error) {
	if _, err := d.rooms.VerifyAccess(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	msgs, err := d.repo.ListMessages(ctx, roomID, limit, before, beforeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}

// withDisplayInfo decorates the broadcast payload with sender/receiver
// display records when they resolve; the message still goes out if the
// lookups fail.
func (d *Dispatcher) withDisplayInfo(ctx context.Context, msg *Message) map[string]any {
	payload := map[string]any{"message": msg}
	if sender, err := d.repo.GetUser(ctx, msg.SenderID); err == nil {
		payload["sender"] = sender
	}
	if receiver, err := d.repo.GetUser(ctx, msg.ReceiverID); err == nil {
		payload["receiver"] = receiver
	}
	return payload
}
