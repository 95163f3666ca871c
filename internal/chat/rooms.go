package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Rooms owns membership: which rooms a user belongs to and whether a
// given user may act inside a given room. VerifyAccess is the single
// access-control gate for every room-scoped operation.
type Rooms struct {
	repo *Repo
}

func NewRooms(repo *Repo) *Rooms {
	return &Rooms{repo: repo}
}

// RequestRoom returns the room for a (student, advisor) pair, creating it
// on first contact. Lookup-before-create keeps the pair unique.
func (s *Rooms) RequestRoom(ctx context.Context, studentID, advisorID string) (*ChatRoom, error) {
	if studentID == "" || advisorID == "" || studentID == advisorID {
		return nil, fmt.Errorf("%w: invalid participant pair", ErrValidationFailed)
	}

	existing, err := s.repo.FindRoomByPair(ctx, studentID, advisorID)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	now := time.Now()
	room := &ChatRoom{
		ID:             uuid.New().String(),
		StudentID:      studentID,
		AdvisorID:      advisorID,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		// Lost a create race: the unique pair index rejected us, the
		// winner's row is the room.
		if again, lookupErr := s.repo.FindRoomByPair(ctx, studentID, advisorID); lookupErr == nil {
			return again, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return room, nil
}

// ResolveRoomsFor returns every room the user participates in; called
// once per successful authentication to subscribe the connection.
func (s *Rooms) ResolveRoomsFor(ctx context.Context, userID string) ([]ChatRoom, error) {
	rooms, err := s.repo.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return rooms, nil
}

// VerifyAccess fails unless the user is the room's student or advisor.
// On success it returns the room so callers can compute the other
// participant without a second lookup.
func (s *Rooms) VerifyAccess(ctx context.Context, userID, roomID string) (*ChatRoom, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !room.HasParticipant(userID) {
		return nil, ErrAccessDenied
	}
	return room, nil
}

// JoinActive is membership plus delivery: undelivered messages addressed
// to the user in the room are flagged delivered. It grants nothing that
// VerifyAccess hasn't already.
func (s *Rooms) JoinActive(ctx context.Context, userID, roomID string) (*ChatRoom, error) {
	room, err := s.VerifyAccess(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkMessagesDelivered(ctx, roomID, userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return room, nil
}
