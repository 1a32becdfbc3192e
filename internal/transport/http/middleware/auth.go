package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/studysync/room-service/internal/auth"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// AuthMiddleware требует Bearer-токен и проверяет его у Auth Provider;
// identity кладётся в контекст запроса.
func AuthMiddleware(provider auth.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") || len(header) <= 7 {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			ident, err := provider.Verify(r.Context(), strings.TrimSpace(header[7:]))
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) (auth.Identity, bool) {
	ident, ok := ctx.Value(ctxKeyIdentity).(auth.Identity)
	return ident, ok
}
