package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/studysync/room-service/internal/auth"
	"github.com/studysync/room-service/internal/domain"
	"github.com/studysync/room-service/internal/hub"
	"github.com/studysync/room-service/internal/registry"
	"github.com/studysync/room-service/internal/store"
)

type MemberService struct {
	store store.Store
	reg   *registry.Registry
	hub   *hub.Hub
	locks *RoomLocks

	heartbeatWindow time.Duration
}

func NewMemberService(st store.Store, reg *registry.Registry, h *hub.Hub, locks *RoomLocks) *MemberService {
	return &MemberService{
		store:           st,
		reg:             reg,
		hub:             h,
		locks:           locks,
		heartbeatWindow: 60 * time.Second, // окно «онлайн»
	}
}

// Join — идемпотентное вступление в комнату. Под локом комнаты: проверка
// capacity не может гоняться с параллельным join, attach сессии и broadcast
// упорядочены с остальными событиями комнаты. sess может быть nil (join по
// HTTP без живого подключения).
func (s *MemberService) Join(ctx context.Context, roomID string, ident auth.Identity, sess registry.Session) error {
	mu := s.locks.Get(roomID)
	mu.Lock()
	defer mu.Unlock()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsActive {
		return domain.ErrRoomClosed
	}

	if _, err := s.store.UpsertParticipant(ctx, roomID, ident.UserID); err != nil {
		return err
	}

	// профиль нужен для резолва @упоминаний; ошибка не валит join
	if err := s.store.UpsertProfile(ctx, domain.Profile{
		ID:          ident.UserID,
		DisplayName: ident.DisplayName,
	}); err != nil {
		slog.Warn("upsert profile failed", "user", ident.UserID, "err", err)
	}

	if sess != nil {
		s.reg.Attach(roomID, sess)
	}
	s.hub.Broadcast(roomID, hub.Event{
		Type: hub.EventParticipantJoined,
		Payload: hub.ParticipantPayload{
			RoomID:      roomID,
			UserID:      ident.UserID,
			DisplayName: ident.DisplayName,
		},
	})
	return nil
}

// Leave снимает живые сессии пользователя и рассылает participant_left.
// Durable-строка участника остаётся: membership переживает реконнекты.
// Не-участник получает ErrNotInRoom и бродкаста не производит.
func (s *MemberService) Leave(ctx context.Context, roomID, userID string) error {
	mu := s.locks.Get(roomID)
	mu.Lock()
	defer mu.Unlock()

	// touch заодно проверяет membership: уход — последняя активность
	if err := s.store.TouchParticipant(ctx, roomID, userID); err != nil {
		return err
	}

	for _, sess := range s.reg.DetachUser(roomID, userID) {
		_ = sess.Close()
	}
	s.hub.Broadcast(roomID, hub.Event{
		Type:    hub.EventParticipantLeft,
		Payload: hub.ParticipantPayload{RoomID: roomID, UserID: userID},
	})
	return nil
}

func (s *MemberService) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, roomID)
}

// ParticipantDetailed — участник вместе с профилем для выдачи наружу.
type ParticipantDetailed struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	JoinedAt    time.Time
	LastSeen    time.Time
}

func (s *MemberService) ListParticipantsDetailed(ctx context.Context, roomID string) ([]ParticipantDetailed, error) {
	parts, err := s.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ids := lo.Map(parts, func(p domain.Participant, _ int) string { return p.UserID })
	profiles, err := s.store.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ParticipantDetailed, 0, len(parts))
	for _, p := range parts {
		item := ParticipantDetailed{
			UserID:   p.UserID,
			JoinedAt: p.JoinedAt,
			LastSeen: p.LastSeen,
		}
		if prof, ok := profiles[p.UserID]; ok {
			item.DisplayName = prof.DisplayName
			item.AvatarURL = prof.AvatarURL
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *MemberService) TouchHeartbeat(ctx context.Context, roomID, userID string) error {
	return s.store.TouchParticipant(ctx, roomID, userID)
}
