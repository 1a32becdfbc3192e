package http

import "time"

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Max         int    `json:"max,omitempty"`
}

type RoomItem struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	OwnerID         string    `json:"owner_id"`
	IsActive        bool      `json:"is_active"`
	MaxParticipants int       `json:"max_participants"`
	CreatedAt       time.Time `json:"created_at"`
}

type RoomsListResponse struct {
	Items      []RoomItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type JoinRoomResponse struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type ParticipantItem struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSeen    time.Time `json:"last_seen"`
}

type ParticipantsResponse struct {
	Items []ParticipantItem `json:"items"`
}

type ChatMessageItem struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	UserID         string    `json:"user_id"`
	Content        string    `json:"content"`
	Type           string    `json:"message_type"`
	FileURL        string    `json:"file_url,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	IsPinned       bool      `json:"is_pinned"`
	MentionedUsers []string  `json:"mentioned_users,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ChatHistoryResponse struct {
	Items      []ChatMessageItem `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
