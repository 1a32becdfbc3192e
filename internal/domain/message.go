package domain

import "time"

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Message неизменяемо после записи, кроме IsPinned. CreatedAt и Seq назначает
// хранилище: CreatedAt монотонно не убывает внутри комнаты, Seq разруливает
// одинаковые метки времени в порядке вставки.
type Message struct {
	ID             string      `json:"id"`
	Seq            int64       `json:"seq"`
	RoomID         string      `json:"room_id"`
	UserID         string      `json:"user_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"message_type"`
	FileURL        string      `json:"file_url,omitempty"`
	FileName       string      `json:"file_name,omitempty"`
	IsPinned       bool        `json:"is_pinned"`
	MentionedUsers []string    `json:"mentioned_users,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
