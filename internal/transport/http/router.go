package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/studysync/room-service/internal/auth"
	httpmw "github.com/studysync/room-service/internal/transport/http/middleware"
)

// NewRouter собирает все HTTP-маршруты сервиса. WS-эндпоинт принимаем как
// готовый handler, чтобы транспортные пакеты не зависели друг от друга.
func NewRouter(h *Handler, provider auth.Provider, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)

	// токен у WS идёт query-параметром, Bearer-middleware тут не нужен
	r.Get("/ws/rooms/{id}", wsHandler)

	r.Route("/rooms", func(r chi.Router) {
		r.Use(httpmw.AuthMiddleware(provider))
		r.Use(httpmw.HeartbeatMiddleware(h.memberSvc))

		r.Post("/", h.CreateRoom)
		r.Get("/", h.ListRooms)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Post("/join", h.JoinRoom)
			r.Post("/leave", h.LeaveRoom)
			r.Post("/close", h.CloseRoom)
			r.Get("/participants", h.GetParticipants)
			r.Get("/chat", h.GetChatHistory)
		})
	})

	return r
}
