package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo is the persistence gateway. Every mutation that carries an
// ownership rule expresses it as a WHERE filter so the row update itself
// is the check; callers inspect the affected-row count.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) CreateRoom(ctx context.Context, room *ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *Repo) GetRoom(ctx context.Context, id string) (*ChatRoom, error) {
	var room ChatRoom
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Repo) FindRoomByPair(ctx context.Context, studentID, advisorID string) (*ChatRoom, error) {
	var room ChatRoom
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND advisor_id = ?", studentID, advisorID).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRoomsForUser returns rooms where the user sits on either side,
// most recently active first.
func (r *Repo) ListRoomsForUser(ctx context.Context, userID string) ([]ChatRoom, error) {
	var rooms []ChatRoom
	err := r.db.WithContext(ctx).
		Where("student_id = ? OR advisor_id = ?", userID, userID).
		Order("last_activity_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *Repo) TouchRoomActivity(ctx context.Context, roomID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&ChatRoom{}).
		Where("id = ?", roomID).
		Update("last_activity_at", at).Error
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages newest to oldest, keyset-paginated on
// (created_at, id). Callers pass the last row of the previous page as
// the cursor.
func (r *Repo) ListMessages(ctx context.Context, roomID string, limit int, before time.Time, beforeID string) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	// Keyset cursor on (created_at, id): the id tie-breaker keeps rows
	// sharing a timestamp from being skipped between pages.
	if !before.IsZero() {
		if beforeID != "" {
			q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", before, before, beforeID)
		} else {
			q = q.Where("created_at < ?", before)
		}
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateMessageContent edits a message filtered by sender ownership.
// Zero affected rows means the message does not exist or the requester
// is not its sender.
func (r *Repo) UpdateMessageContent(ctx context.Context, messageID, senderID, content string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND sender_id = ?", messageID, senderID).
		Updates(map[string]any{
			"content":   content,
			"is_edited": true,
			"edited_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *Repo) DeleteMessage(ctx context.Context, messageID, senderID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND sender_id = ?", messageID, senderID).
		Delete(&Message{})
	return res.RowsAffected, res.Error
}

// AddressedMessageIDs returns the subset of ids naming messages that
// live in the room and are addressed to receiverID. Ids from other
// rooms, other receivers, or thin air are dropped.
func (r *Repo) AddressedMessageIDs(ctx context.Context, roomID string, messageIDs []string, receiverID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_room_id = ? AND id IN ? AND receiver_id = ?", roomID, messageIDs, receiverID).
		Pluck("id", &ids).Error
	return ids, err
}

// MarkMessagesRead flips is_read only on rows addressed to receiverID.
func (r *Repo) MarkMessagesRead(ctx context.Context, roomID string, messageIDs []string, receiverID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_room_id = ? AND id IN ? AND receiver_id = ?", roomID, messageIDs, receiverID).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// MarkMessagesDelivered flags everything addressed to the user in the
// room. Called when the user focuses the room.
func (r *Repo) MarkMessagesDelivered(ctx context.Context, roomID, receiverID string) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_room_id = ? AND receiver_id = ? AND is_delivered = ?", roomID, receiverID, false).
		Update("is_delivered", true).Error
}

// UpsertReadReceipts appends receipts idempotently.
func (r *Repo) UpsertReadReceipts(ctx context.Context, messageIDs []string, userID string, at time.Time) error {
	receipts := make([]ReadReceipt, 0, len(messageIDs))
	for _, id := range messageIDs {
		receipts = append(receipts, ReadReceipt{MessageID: id, UserID: userID, ReadAt: at})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipts).Error
}

func (r *Repo) UpsertPresence(ctx context.Context, userID, status string, at time.Time) error {
	rec := PresenceRecord{UserID: userID, Status: status, LastSeenAt: at}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen_at"}),
		}).
		Create(&rec).Error
}

func (r *Repo) CreateCallSession(ctx context.Context, s *CallSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetCallSession(ctx context.Context, id string) (*CallSession, error) {
	var s CallSession
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// AcceptCall transitions ringing -> active, filtered so only the invited
// participant can take a ringing call. Zero rows means wrong caller,
// wrong state, or no such session.
func (r *Repo) AcceptCall(ctx context.Context, callID, participantID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&CallSession{}).
		Where("id = ? AND status = ? AND participant_id = ?", callID, CallRinging, participantID).
		Updates(map[string]any{
			"status":     CallActive,
			"started_at": at,
		})
	return res.RowsAffected, res.Error
}

// TerminateCall moves a session to ended from whatever state it is in.
// Re-terminating an ended session is a harmless overwrite.
func (r *Repo) TerminateCall(ctx context.Context, callID string, at time.Time, duration *int64) (int64, error) {
	updates := map[string]any{
		"status":   CallEnded,
		"ended_at": at,
	}
	if duration != nil {
		updates["duration_secs"] = *duration
	}
	res := r.db.WithContext(ctx).Model(&CallSession{}).
		Where("id = ?", callID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// IsNotFound reports the gateway's "no row" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
