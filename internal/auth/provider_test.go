package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studysync/room-service/internal/domain"
)

func Test_JWTProvider_Issue_And_Verify(t *testing.T) {
	req := require.New(t)
	p := NewJWTProvider("test-secret")

	token, err := p.Issue(Identity{UserID: "u-1", DisplayName: "Alice"}, time.Minute)
	req.NoError(err)

	ident, err := p.Verify(context.Background(), token)
	req.NoError(err)
	req.Equal("u-1", ident.UserID)
	req.Equal("Alice", ident.DisplayName)
}

func Test_JWTProvider_DisplayName_Falls_Back_To_Subject(t *testing.T) {
	req := require.New(t)
	p := NewJWTProvider("test-secret")

	token, err := p.Issue(Identity{UserID: "u-2"}, time.Minute)
	req.NoError(err)

	ident, err := p.Verify(context.Background(), token)
	req.NoError(err)
	req.Equal("u-2", ident.DisplayName)
}

func Test_JWTProvider_Rejects_Wrong_Secret(t *testing.T) {
	req := require.New(t)

	token, err := NewJWTProvider("secret-a").Issue(Identity{UserID: "u-1"}, time.Minute)
	req.NoError(err)

	_, err = NewJWTProvider("secret-b").Verify(context.Background(), token)
	req.True(errors.Is(err, domain.ErrUnauthorized))
}

func Test_JWTProvider_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	p := NewJWTProvider("test-secret")

	token, err := p.Issue(Identity{UserID: "u-1"}, -time.Minute)
	req.NoError(err)

	_, err = p.Verify(context.Background(), token)
	req.True(errors.Is(err, domain.ErrUnauthorized))
}

func Test_JWTProvider_Rejects_Empty_Token(t *testing.T) {
	req := require.New(t)

	_, err := NewJWTProvider("test-secret").Verify(context.Background(), "")
	req.True(errors.Is(err, domain.ErrUnauthorized))
}
