package store

import (
	"context"

	"github.com/studysync/room-service/internal/domain"
)

// Store — единый контракт хранилища; инварианты (уникальность участника,
// лимит комнаты, монотонный created_at) обеспечиваются на границе хранилища.
// Его реализуют BadgerStore и PostgresStore.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	// Rooms
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
	DeactivateRoom(ctx context.Context, id string) error

	// Participants. UpsertParticipant идемпотентен: повторный вызов для той же
	// пары (room, user) возвращает joined=false и не меняет счётчик.
	UpsertParticipant(ctx context.Context, roomID, userID string) (joined bool, err error)
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	TouchParticipant(ctx context.Context, roomID, userID string) error

	// Messages. AppendMessage назначает ID, Seq и CreatedAt.
	AppendMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	ListMessages(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error)
	SetPinned(ctx context.Context, messageID string, pinned bool) error

	// Reactions
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (active bool, err error)
	ListReactions(ctx context.Context, messageID string) ([]domain.Reaction, error)

	// Profiles
	UpsertProfile(ctx context.Context, p domain.Profile) error
	GetProfiles(ctx context.Context, ids []string) (map[string]domain.Profile, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
