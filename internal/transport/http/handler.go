package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studysync/room-service/internal/domain"
	"github.com/studysync/room-service/internal/service"
	"github.com/studysync/room-service/internal/store"
	httpmw "github.com/studysync/room-service/internal/transport/http/middleware"
)

type Handler struct {
	roomSvc   *service.RoomService
	memberSvc *service.MemberService
	chatSvc   *service.ChatService
	store     store.Store
}

func NewHandler(room *service.RoomService, member *service.MemberService, chat *service.ChatService, st store.Store) *Handler {
	return &Handler{
		roomSvc:   room,
		memberSvc: member,
		chatSvc:   chat,
		store:     st,
	}
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError мапит доменную таксономию на статусы; неизвестные ошибки
// хранилища считаются временными (503, можно повторить).
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	case errors.Is(err, domain.ErrRoomNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
	case errors.Is(err, domain.ErrMessageNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "message not found"})
	case errors.Is(err, domain.ErrNotInRoom):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not in room"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case errors.Is(err, domain.ErrRoomFull):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "room full"})
	case errors.Is(err, domain.ErrRoomClosed):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "room closed"})
	case errors.Is(err, domain.ErrInvalidMessage), errors.Is(err, domain.ErrInvalidRoom):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrInvalidCursor):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
	case errors.Is(err, domain.ErrTransient):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "transient"})
	default:
		slog.Error("http handler:", slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "transient"})
	}
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	ident, ok := httpmw.IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	room, err := h.roomSvc.CreateRoom(r.Context(), ident.UserID, req.Name, req.Description, req.Max)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapRoom(room))
}

// GET /rooms?limit=&cursor=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	rooms, next, err := h.roomSvc.ListRooms(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := RoomsListResponse{Items: make([]RoomItem, 0, len(rooms)), NextCursor: next}
	for _, rm := range rooms {
		resp.Items = append(resp.Items, mapRoom(&rm))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRoom(room))
}

// POST /rooms/{id}/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	ident, ok := httpmw.IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	if err := h.memberSvc.Join(r.Context(), roomID, ident, nil); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JoinRoomResponse{RoomID: roomID, UserID: ident.UserID})
}

// POST /rooms/{id}/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	ident, ok := httpmw.IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	if err := h.memberSvc.Leave(r.Context(), roomID, ident.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// POST /rooms/{id}/close
func (h *Handler) CloseRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	ident, ok := httpmw.IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, domain.ErrUnauthorized)
		return
	}

	if err := h.roomSvc.CloseRoom(r.Context(), roomID, ident.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// GET /rooms/{id}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	items, err := h.memberSvc.ListParticipantsDetailed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ParticipantsResponse{Items: make([]ParticipantItem, 0, len(items))}
	for _, it := range items {
		resp.Items = append(resp.Items, ParticipantItem{
			UserID:      it.UserID,
			DisplayName: it.DisplayName,
			AvatarURL:   it.AvatarURL,
			JoinedAt:    it.JoinedAt,
			LastSeen:    it.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /rooms/{id}/chat?after=&limit=
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	after := r.URL.Query().Get("after")
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	items, next, err := h.chatSvc.History(r.Context(), roomID, after, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ChatHistoryResponse{Items: make([]ChatMessageItem, 0, len(items)), NextCursor: next}
	for _, m := range items {
		resp.Items = append(resp.Items, ChatMessageItem{
			ID:             m.ID,
			RoomID:         m.RoomID,
			UserID:         m.UserID,
			Content:        m.Content,
			Type:           string(m.Type),
			FileURL:        m.FileURL,
			FileName:       m.FileName,
			IsPinned:       m.IsPinned,
			MentionedUsers: m.MentionedUsers,
			CreatedAt:      m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func mapRoom(r *domain.Room) RoomItem {
	return RoomItem{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		OwnerID:         r.OwnerID,
		IsActive:        r.IsActive,
		MaxParticipants: r.MaxParticipants,
		CreatedAt:       r.CreatedAt,
	}
}
