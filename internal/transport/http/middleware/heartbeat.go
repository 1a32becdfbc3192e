package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type HeartbeatToucher interface {
	TouchHeartbeat(ctx context.Context, roomID, userID string) error
}

// HeartbeatMiddleware обновляет last_seen для {roomID,userID}, если roomID
// есть в пути.
func HeartbeatMiddleware(memberSvc HeartbeatToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ident, ok := IdentityFromCtx(r.Context()); ok {
				if roomID := chi.URLParam(r, "id"); roomID != "" {
					// best-effort: ошибки не прерывают запрос
					_ = memberSvc.TouchHeartbeat(r.Context(), roomID, ident.UserID)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
