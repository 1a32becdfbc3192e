package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/studysync/room-service/internal/domain"
	"github.com/studysync/room-service/internal/hub"
	"github.com/studysync/room-service/internal/store"
)

type ChatService struct {
	store store.Store
	hub   *hub.Hub
	locks *RoomLocks

	maxContentLen int
}

func NewChatService(st store.Store, h *hub.Hub, locks *RoomLocks) *ChatService {
	return &ChatService{
		store:         st,
		hub:           h,
		locks:         locks,
		maxContentLen: 4000,
	}
}

func (s *ChatService) SetMaxContentLen(n int) {
	if n > 0 {
		s.maxContentLen = n
	}
}

type SendMessageInput struct {
	Content  string
	Type     domain.MessageType
	FileURL  string
	FileName string
}

// Send валидирует сообщение, резолвит упоминания, пишет в хранилище и
// рассылает message_created. Append и broadcast идут под локом комнаты:
// порядок доставки всем сессиям равен порядку коммитов, частичных записей
// не бывает — до успешного коммита наружу ничего не уходит.
func (s *ChatService) Send(ctx context.Context, roomID, userID string, in SendMessageInput) (*domain.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", domain.ErrInvalidMessage)
	}
	// лимит в символах, не байтах: кириллица не режет лимит вдвое
	if utf8.RuneCountInString(content) > s.maxContentLen {
		return nil, fmt.Errorf("%w: content too long", domain.ErrInvalidMessage)
	}
	msgType := in.Type
	if msgType == "" {
		msgType = domain.MessageText
	}
	if !msgType.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidMessage, in.Type)
	}
	if msgType == domain.MessageFile && in.FileURL == "" {
		return nil, fmt.Errorf("%w: file message without file_url", domain.ErrInvalidMessage)
	}

	mu := s.locks.Get(roomID)
	mu.Lock()
	defer mu.Unlock()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, domain.ErrRoomClosed
	}

	mentioned, err := s.resolveMentions(ctx, roomID, content)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		RoomID:         roomID,
		UserID:         userID,
		Content:        content,
		Type:           msgType,
		FileURL:        in.FileURL,
		FileName:       in.FileName,
		MentionedUsers: mentioned,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.hub.Broadcast(roomID, hub.MessageCreated(msg))
	return msg, nil
}

// History — pull-догон истории; лок комнаты не берётся, читатели не
// блокируют писателей и видят консистентный префикс.
func (s *ChatService) History(ctx context.Context, roomID, after string, limit int) ([]domain.Message, string, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, "", err
	}
	return s.store.ListMessages(ctx, roomID, after, limit)
}

// Pin идемпотентно переключает закреп. Право есть только у владельца комнаты.
func (s *ChatService) Pin(ctx context.Context, messageID, userID string) (bool, error) {
	probe, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}

	mu := s.locks.Get(probe.RoomID)
	mu.Lock()
	defer mu.Unlock()

	room, err := s.store.GetRoom(ctx, probe.RoomID)
	if err != nil {
		return false, err
	}
	if !room.IsActive {
		return false, domain.ErrRoomClosed
	}
	if room.OwnerID != userID {
		return false, fmt.Errorf("%w: only the room owner can pin", domain.ErrForbidden)
	}

	// перечитать под локом: между probe и локом закреп мог переключиться
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	pinned := !msg.IsPinned
	if err := s.store.SetPinned(ctx, messageID, pinned); err != nil {
		return false, err
	}

	s.hub.Broadcast(room.ID, hub.Event{
		Type:    hub.EventMessagePinned,
		Payload: hub.PinPayload{MessageID: messageID, Pinned: pinned},
	})
	return pinned, nil
}

// React переключает реакцию (повторная та же реакция снимает её) и рассылает
// reaction_toggled с итоговым состоянием.
func (s *ChatService) React(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > 32 {
		return false, fmt.Errorf("%w: bad emoji", domain.ErrInvalidMessage)
	}

	probe, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}

	mu := s.locks.Get(probe.RoomID)
	mu.Lock()
	defer mu.Unlock()

	room, err := s.store.GetRoom(ctx, probe.RoomID)
	if err != nil {
		return false, err
	}
	if !room.IsActive {
		return false, domain.ErrRoomClosed
	}

	active, err := s.store.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return false, err
	}

	s.hub.Broadcast(room.ID, hub.Event{
		Type: hub.EventReactionToggled,
		Payload: hub.ReactionPayload{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			Active:    active,
		},
	})
	return active, nil
}

func (s *ChatService) Reactions(ctx context.Context, messageID string) ([]domain.Reaction, error) {
	return s.store.ListReactions(ctx, messageID)
}

// resolveMentions сопоставляет @name-токены с display name участников
// комнаты; нераспознанные токены молча отбрасываются.
func (s *ChatService) resolveMentions(ctx context.Context, roomID, content string) ([]string, error) {
	names := domain.Mentions(content)
	if len(names) == 0 {
		return nil, nil
	}

	parts, err := s.store.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.UserID)
	}
	profiles, err := s.store.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]string, len(profiles))
	for _, prof := range profiles {
		byName[prof.DisplayName] = prof.ID
	}

	var mentioned []string
	seen := make(map[string]struct{})
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		mentioned = append(mentioned, id)
	}
	return mentioned, nil
}
