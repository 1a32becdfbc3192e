package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studysync/room-service/internal/auth"
	"github.com/studysync/room-service/internal/domain"
	"github.com/studysync/room-service/internal/hub"
	"github.com/studysync/room-service/internal/service"
)

type Server struct {
	upgrader  websocket.Upgrader
	provider  auth.Provider
	memberSvc *service.MemberService
	chatSvc   *service.ChatService

	pingEvery  time.Duration
	sendBuffer int
}

func NewServer(provider auth.Provider, member *service.MemberService, chat *service.ChatService) *Server {
	return &Server{
		provider:  provider,
		memberSvc: member,
		chatSvc:   chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:  15 * time.Second,
		sendBuffer: 64,
	}
}

func (s *Server) SetPingEvery(d time.Duration) {
	if d > 0 {
		s.pingEvery = d
	}
}

func (s *Server) SetSendBuffer(n int) {
	if n > 0 {
		s.sendBuffer = n
	}
}

// WS endpoint: GET /ws/rooms/{id}?access_token=...
// Подключение сразу делает join: отдельного кадра от клиента не ждём.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	accessToken := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if accessToken == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	ident, err := s.provider.Verify(r.Context(), accessToken)
	if err != nil {
		http.Error(w, "invalid access_token", http.StatusUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	sess := newSession(conn, s.sendBuffer, ident.UserID)

	// writeLoop ещё не запущен: при неудачном join пишем ошибку напрямую,
	// кадр гарантированно уйдёт до закрытия соединения
	if err := s.memberSvc.Join(r.Context(), roomID, ident, sess); err != nil {
		s.writeDirect(sess, hub.Event{Type: FrameError, Payload: ErrorPayload{Reason: err.Error()}})
		_ = sess.Close()
		return
	}
	go s.writeLoop(sess)

	if err := s.sendState(r.Context(), sess, roomID); err != nil {
		slog.Warn("ws send initial state failed", "room", roomID, "user", ident.UserID, "err", err)
	}

	s.readLoop(r.Context(), sess, roomID)

	// readLoop вышел: соединение мертво или клиент прислал leave.
	// Leave сам снимет сессию из реестра и разошлёт participant_left.
	if err := s.memberSvc.Leave(context.Background(), roomID, ident.UserID); err != nil {
		slog.Debug("ws leave failed", "room", roomID, "user", ident.UserID, "err", err)
	}
	_ = sess.Close()
}

func (s *Server) sendState(ctx context.Context, sess *session, roomID string) error {
	parts, err := s.memberSvc.ListParticipantsDetailed(ctx, roomID)
	if err != nil {
		return err
	}
	items := make([]hub.ParticipantStateItem, 0, len(parts))
	for _, p := range parts {
		items = append(items, hub.ParticipantStateItem{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			JoinedAt:    p.JoinedAt.Unix(),
			LastSeen:    p.LastSeen.Unix(),
		})
	}

	return s.send(sess, hub.Event{
		Type: hub.EventState,
		Payload: hub.StatePayload{
			RoomID:       roomID,
			Participants: items,
		},
	})
}

func (s *Server) readLoop(ctx context.Context, sess *session, roomID string) {
	_ = s.memberSvc.TouchHeartbeat(ctx, roomID, sess.UserID())

	sess.conn.SetReadLimit(1 << 20)
	sess.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		_ = s.memberSvc.TouchHeartbeat(ctx, roomID, sess.UserID())
		return nil
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case FrameSend:
			var p SendPayload
			if decode(frame.Payload, &p) != nil {
				continue
			}
			_, err := s.chatSvc.Send(ctx, roomID, sess.UserID(), service.SendMessageInput{
				Content:  p.Content,
				Type:     domain.MessageType(p.Type),
				FileURL:  p.FileURL,
				FileName: p.FileName,
			})
			if err != nil {
				s.sendError(sess, err.Error())
			}
		case FrameReact:
			var p ReactPayload
			if decode(frame.Payload, &p) != nil {
				continue
			}
			if _, err := s.chatSvc.React(ctx, p.MessageID, sess.UserID(), p.Emoji); err != nil {
				s.sendError(sess, err.Error())
			}
		case FramePin:
			var p PinPayload
			if decode(frame.Payload, &p) != nil {
				continue
			}
			if _, err := s.chatSvc.Pin(ctx, p.MessageID, sess.UserID()); err != nil {
				s.sendError(sess, err.Error())
			}
		case FrameLeave:
			return
		default:
			// ignore
		}
	}
}

func (s *Server) writeLoop(sess *session) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case frame := <-sess.out:
			sess.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = sess.Close()
				return
			}
		case <-ticker.C:
			_ = sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-sess.closed:
			return
		}
	}
}

func (s *Server) send(sess *session, e hub.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	sess.Enqueue(b)
	return nil
}

func (s *Server) sendError(sess *session, reason string) {
	_ = s.send(sess, hub.Event{
		Type:    FrameError,
		Payload: ErrorPayload{Reason: reason},
	})
}

func (s *Server) writeDirect(sess *session, e hub.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	sess.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = sess.conn.WriteMessage(websocket.TextMessage, b)
}

// --- helpers ---

func decode(payload interface{}, dst interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, dst)
}

// session реализует registry.Session. Исходящие кадры идут через
// буферизованный канал: медленный клиент не блокирует бродкаст, его
// просто отцепит хаб.
type session struct {
	id     string
	userID string
	conn   *websocket.Conn
	out    chan []byte
	closed chan struct{}
}

func newSession(conn *websocket.Conn, buffer int, userID string) *session {
	return &session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		out:    make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *session) ID() string     { return c.id }
func (c *session) UserID() string { return c.userID }

func (c *session) Enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

func (c *session) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	return c.conn.Close()
}
