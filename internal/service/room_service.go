package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/studysync/room-service/internal/domain"
	"github.com/studysync/room-service/internal/hub"
	"github.com/studysync/room-service/internal/store"
)

type RoomService struct {
	store store.Store
	hub   *hub.Hub
	locks *RoomLocks

	defaultMax int
	maxMax     int
}

func NewRoomService(st store.Store, h *hub.Hub, locks *RoomLocks) *RoomService {
	return &RoomService{
		store:      st,
		hub:        h,
		locks:      locks,
		defaultMax: 10,
		maxMax:     50,
	}
}

func (s *RoomService) SetMaxParticipantsDefault(n int) {
	if n > 0 {
		s.defaultMax = n
	}
}

// CreateRoom создаёт комнату с владельцем и лимитом участников.
func (s *RoomService) CreateRoom(ctx context.Context, ownerID, name, description string, max int) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidRoom)
	}
	if max <= 0 {
		max = s.defaultMax
	}
	if max > s.maxMax {
		max = s.maxMax
	}

	room := &domain.Room{
		Name:            name,
		Description:     strings.TrimSpace(description),
		OwnerID:         ownerID,
		MaxParticipants: max,
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("store.CreateRoom: %w", err)
	}
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	return s.store.GetRoom(ctx, id)
}

// ListRooms возвращает список комнат с курсорной пагинацией.
func (s *RoomService) ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	return s.store.ListRooms(ctx, limit, cursor)
}

// CloseRoom — одностороннее выключение комнаты владельцем. История остаётся
// читаемой, записи после закрытия отклоняются.
func (s *RoomService) CloseRoom(ctx context.Context, roomID, userID string) error {
	mu := s.locks.Get(roomID)
	mu.Lock()
	defer mu.Unlock()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != userID {
		return fmt.Errorf("%w: only the owner can close the room", domain.ErrForbidden)
	}
	if !room.IsActive {
		return nil
	}

	if err := s.store.DeactivateRoom(ctx, roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return err
		}
		return fmt.Errorf("store.DeactivateRoom: %w", err)
	}
	s.hub.Broadcast(roomID, hub.Event{
		Type:    hub.EventRoomClosed,
		Payload: hub.RoomClosedPayload{RoomID: roomID},
	})
	return nil
}
