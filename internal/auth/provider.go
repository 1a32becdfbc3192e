package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/studysync/room-service/internal/domain"
)

// Identity — то, что Auth Provider знает о пользователе. Ядро не выпускает
// и не хранит учётки, только проверяет токен.
type Identity struct {
	UserID      string
	DisplayName string
}

type Provider interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type claims struct {
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider проверяет HS256-токены внешнего Auth Provider:
// sub = user id, name = display name.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) Verify(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c,
		func(t *jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: invalid claims", domain.ErrUnauthorized)
	}

	name := c.DisplayName
	if name == "" {
		name = c.Subject
	}
	return Identity{UserID: c.Subject, DisplayName: name}, nil
}

// Issue подписывает токен для identity; используется тестами и dev-утилитами,
// в проде токены выпускает внешний Auth Provider с тем же секретом.
func (p *JWTProvider) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		DisplayName: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(p.secret)
}
