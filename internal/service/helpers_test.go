package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studysync/room-service/internal/auth"
	"github.com/studysync/room-service/internal/domain"
	"github.com/studysync/room-service/internal/hub"
	"github.com/studysync/room-service/internal/registry"
	"github.com/studysync/room-service/internal/store"
)

// fixture — полный стек сервисов поверх живого badger в t.TempDir().
type fixture struct {
	store  store.Store
	reg    *registry.Registry
	hub    *hub.Hub
	rooms  *RoomService
	member *MemberService
	chat   *ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewBadgerStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New()
	h := hub.New(reg, slog.Default())
	locks := NewRoomLocks()

	return &fixture{
		store:  st,
		reg:    reg,
		hub:    h,
		rooms:  NewRoomService(st, h, locks),
		member: NewMemberService(st, reg, h, locks),
		chat:   NewChatService(st, h, locks),
	}
}

func (f *fixture) makeRoom(t *testing.T, owner string, max int) *domain.Room {
	t.Helper()
	room, err := f.rooms.CreateRoom(context.Background(), owner, "study hall", "", max)
	require.NoError(t, err)
	return room
}

func (f *fixture) join(t *testing.T, roomID, userID, name string, sess registry.Session) {
	t.Helper()
	err := f.member.Join(context.Background(), roomID, auth.Identity{UserID: userID, DisplayName: name}, sess)
	require.NoError(t, err)
}

// capture реализует registry.Session и копит все кадры.
type capture struct {
	id     string
	userID string
	frames [][]byte
	closed bool
}

func newCapture(id, userID string) *capture {
	return &capture{id: id, userID: userID}
}

func (c *capture) ID() string     { return c.id }
func (c *capture) UserID() string { return c.userID }
func (c *capture) Close() error   { c.closed = true; return nil }

func (c *capture) Enqueue(frame []byte) bool {
	c.frames = append(c.frames, frame)
	return true
}

func (c *capture) events(t *testing.T) []hub.Event {
	t.Helper()
	out := make([]hub.Event, 0, len(c.frames))
	for _, frame := range c.frames {
		var e hub.Event
		require.NoError(t, json.Unmarshal(frame, &e))
		out = append(out, e)
	}
	return out
}

func eventTypes(t *testing.T, c *capture) []string {
	t.Helper()
	var types []string
	for _, e := range c.events(t) {
		types = append(types, e.Type)
	}
	return types
}
