package chat

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	CallTypeAudio = "audio"
	CallTypeVideo = "video"
)

// Calls coordinates one call session's lifecycle between a room's two
// participants: ringing -> active -> ended, with rejection jumping
// straight from ringing to ended. Nothing leaves ended.
type Calls struct {
	repo    *Repo
	rooms   *Rooms
	emitter Emitter

	now func() time.Time
}

func NewCalls(repo *Repo, rooms *Rooms, emitter Emitter) *Calls {
	return &Calls{repo: repo, rooms: rooms, emitter: emitter, now: time.Now}
}

func newCallID(at time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(at.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// Initiate creates a ringing session and rings the room. The invited
// participant is always the room's other member regardless of what the
// client sent.
func (c *Calls) Initiate(ctx context.Context, roomID, initiatorID, callType string) (*CallSession, error) {
	if callType != CallTypeAudio && callType != CallTypeVideo {
		return nil, fmt.Errorf("%w: unknown call type %q", ErrValidationFailed, callType)
	}
	room, err := c.rooms.VerifyAccess(ctx, initiatorID, roomID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	session := &CallSession{
		ID:            newCallID(now),
		ChatRoomID:    room.ID,
		InitiatorID:   initiatorID,
		ParticipantID: room.OtherParticipant(initiatorID),
		CallType:      callType,
		Status:        CallRinging,
		CreatedAt:     now,
	}
	if err := c.repo.CreateCallSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.emitter.ToRoom(room.ID, "call_incoming", session)
	return session, nil
}

// Accept transitions ringing -> active. The row filter admits only the
// invited participant while the session is still ringing; zero rows
// means no state change and no broadcast.
func (c *Calls) Accept(ctx context.Context, callID, userID string) (*CallSession, error) {
	rows, err := c.repo.AcceptCall(ctx, callID, userID, c.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rows == 0 {
		return nil, ErrNotFoundOrForbidden
	}

	session, err := c.repo.GetCallSession(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.emitter.ToRoom(session.ChatRoomID, "call_accepted", session)
	return session, nil
}

// Reject ends a ringing call. Either side may reject; there is no
// ownership filter here on purpose, unlike Accept. The broadcast is
// best-effort even when the row update fails.
func (c *Calls) Reject(ctx context.Context, callID, userID string) error {
	session, err := c.repo.GetCallSession(ctx, callID)
	if err != nil {
		if IsNotFound(err) {
			return ErrNotFoundOrForbidden
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	now := c.now()
	if _, err := c.repo.TerminateCall(ctx, callID, now, nil); err != nil {
		log.Printf("calls: failed to persist rejection of %s: %v", callID, err)
	}

	c.emitter.ToRoom(session.ChatRoomID, "call_rejected", map[string]any{
		"call_id":      callID,
		"chat_room_id": session.ChatRoomID,
		"rejected_by":  userID,
		"timestamp":    now.Format(time.RFC3339),
	})
	return nil
}

// End terminates from whatever state the session is in. Ending an
// already-ended call is a harmless overwrite, never an error. When the
// call was answered, duration is end minus start in whole seconds.
func (c *Calls) End(ctx context.Context, callID, userID string) error {
	session, err := c.repo.GetCallSession(ctx, callID)
	if err != nil {
		if IsNotFound(err) {
			return ErrNotFoundOrForbidden
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	now := c.now()
	var duration *int64
	if session.StartedAt != nil {
		secs := int64(now.Sub(*session.StartedAt) / time.Second)
		if secs < 0 {
			secs = 0
		}
		duration = &secs
	}
	if _, err := c.repo.TerminateCall(ctx, callID, now, duration); err != nil {
		log.Printf("calls: failed to persist end of %s: %v", callID, err)
	}

	payload := map[string]any{
		"call_id":      callID,
		"chat_room_id": session.ChatRoomID,
		"ended_by":     userID,
		"timestamp":    now.Format(time.RFC3339),
	}
	if duration != nil {
		payload["duration_secs"] = *duration
	}
	c.emitter.ToRoom(session.ChatRoomID, "call_ended", payload)
	return nil
}
