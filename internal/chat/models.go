package chat

import "time"

const (
	RoleStudent = "student"
	RoleAdvisor = "advisor"
	RoleAdmin   = "admin"
)

const (
	MessageTypeText  = "text"
	MessageTypeFile  = "file"
	MessageTypeImage = "image"
	MessageTypeVoice = "voice"
)

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

const (
	CallRinging = "ringing"
	CallActive  = "active"
	CallEnded   = "ended"
)

// User rows are owned by the account service; this service only reads them.
type User struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	AvatarURL string    `gorm:"type:text" json:"avatar_url"`
	CreatedAt time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

type ChatRoom struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID      string    `gorm:"type:uuid;not null;index:uniq_chat_room_pair,unique,priority:1" json:"student_id"`
	AdvisorID      string    `gorm:"type:uuid;not null;index:uniq_chat_room_pair,unique,priority:2" json:"advisor_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (ChatRoom) TableName() string { return "chat_rooms" }

// OtherParticipant returns the room member that is not userID.
func (r *ChatRoom) OtherParticipant(userID string) string {
	if r.StudentID == userID {
		return r.AdvisorID
	}
	return r.StudentID
}

// HasParticipant reports whether userID is the room's student or advisor.
func (r *ChatRoom) HasParticipant(userID string) bool {
	return r.StudentID == userID || r.AdvisorID == userID
}

type Message struct {
	ID               string         `gorm:"type:uuid;primaryKey" json:"id"`
	ChatRoomID       string         `gorm:"type:uuid;not null;index" json:"chat_room_id"`
	SenderID         string         `gorm:"type:uuid;not null;index" json:"sender_id"`
	ReceiverID       string         `gorm:"type:uuid;not null" json:"receiver_id"`
	Content          string         `gorm:"type:text;not null" json:"content"`
	MessageType      string         `gorm:"type:varchar(16);not null;default:text" json:"message_type"`
	ReplyToMessageID *string        `gorm:"type:uuid" json:"reply_to_message_id,omitempty"`
	Metadata         map[string]any `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`
	IsRead           bool           `gorm:"not null;default:false" json:"is_read"`
	IsDelivered      bool           `gorm:"not null;default:false" json:"is_delivered"`
	IsEdited         bool           `gorm:"not null;default:false" json:"is_edited"`
	CreatedAt        time.Time      `json:"created_at"`
	EditedAt         *time.Time     `json:"edited_at,omitempty"`
}

func (Message) TableName() string { return "chat_messages" }

type ReadReceipt struct {
	MessageID string    `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID    string    `gorm:"type:uuid;primaryKey" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

func (ReadReceipt) TableName() string { return "read_receipts" }

type PresenceRecord struct {
	UserID     string    `gorm:"type:uuid;primaryKey" json:"user_id"`
	Status     string    `gorm:"type:varchar(16);not null" json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (PresenceRecord) TableName() string { return "presence_records" }

type CallSession struct {
	ID            string     `gorm:"type:varchar(26);primaryKey" json:"id"`
	ChatRoomID    string     `gorm:"type:uuid;not null;index" json:"chat_room_id"`
	InitiatorID   string     `gorm:"type:uuid;not null" json:"initiator_id"`
	ParticipantID string     `gorm:"type:uuid;not null" json:"participant_id"`
	CallType      string     `gorm:"type:varchar(16);not null" json:"call_type"`
	Status        string     `gorm:"type:varchar(16);not null" json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	DurationSecs  *int64     `json:"duration_secs,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (CallSession) TableName() string { return "call_sessions" }

// Models lists every entity this service migrates.
func Models() []any {
	return []any{&User{}, &ChatRoom{}, &Message{}, &ReadReceipt{}, &PresenceRecord{}, &CallSession{}}
}
