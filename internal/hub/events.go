package hub

import "github.com/studysync/room-service/internal/domain"

// Типы событий, которые уходят подписчикам комнаты
const (
	EventState             = "state"              // снапшот участников при подключении
	EventParticipantJoined = "participant_joined" // пользователь присоединился
	EventParticipantLeft   = "participant_left"   // пользователь покинул
	EventMessageCreated    = "message_created"    // новое сообщение
	EventMessagePinned     = "message_pinned"     // сообщение закреплено/откреплено
	EventReactionToggled   = "reaction_toggled"   // реакция добавлена/снята
	EventRoomClosed        = "room_closed"        // владелец закрыл комнату
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ParticipantPayload struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type PinPayload struct {
	MessageID string `json:"message_id"`
	Pinned    bool   `json:"pinned"`
}

type ReactionPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	Active    bool   `json:"active"`
}

type RoomClosedPayload struct {
	RoomID string `json:"room_id"`
}

type StatePayload struct {
	RoomID       string                 `json:"room_id"`
	Participants []ParticipantStateItem `json:"participants"`
}

type ParticipantStateItem struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	JoinedAt    int64  `json:"joined_at_unix"`
	LastSeen    int64  `json:"last_seen_unix"`
}

func MessageCreated(msg *domain.Message) Event {
	return Event{Type: EventMessageCreated, Payload: msg}
}
