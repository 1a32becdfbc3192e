package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studysync/room-service/internal/domain"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	st, err := NewBadgerStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func makeRoom(t *testing.T, st *BadgerStore, owner string, max int) *domain.Room {
	t.Helper()
	room := &domain.Room{Name: "study hall", OwnerID: owner, MaxParticipants: max}
	require.NoError(t, st.CreateRoom(context.Background(), room))
	return room
}

func Test_CreateRoom_Assigns_ID_And_Activates(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()

	room := &domain.Room{Name: "algebra", OwnerID: "u-owner", MaxParticipants: 5}
	req.NoError(st.CreateRoom(ctx, room))
	req.NotEmpty(room.ID)
	req.True(room.IsActive)
	req.False(room.CreatedAt.IsZero())

	got, err := st.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.Equal(room.Name, got.Name)
	req.Equal(room.OwnerID, got.OwnerID)
}

func Test_GetRoom_Unknown_Is_NotFound(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)

	_, err := st.GetRoom(context.Background(), "no-such-room")
	req.True(errors.Is(err, domain.ErrRoomNotFound))
}

func Test_DeactivateRoom_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 5)

	req.NoError(st.DeactivateRoom(ctx, room.ID))
	req.NoError(st.DeactivateRoom(ctx, room.ID))

	got, err := st.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.False(got.IsActive)
}

func Test_ListRooms_Newest_First_With_Cursor(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		makeRoom(t, st, "u-owner", 5)
	}

	first, cursor, err := st.ListRooms(ctx, 3, "")
	req.NoError(err)
	req.Len(first, 3)
	req.NotEmpty(cursor)
	for i := 1; i < len(first); i++ {
		req.False(first[i].CreatedAt.After(first[i-1].CreatedAt))
	}

	rest, _, err := st.ListRooms(ctx, 3, cursor)
	req.NoError(err)
	req.Len(rest, 2)

	seen := make(map[string]struct{})
	for _, r := range append(first, rest...) {
		seen[r.ID] = struct{}{}
	}
	req.Len(seen, 5)
}

func Test_UpsertParticipant_Idempotent(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 5)

	joined, err := st.UpsertParticipant(ctx, room.ID, "u-1")
	req.NoError(err)
	req.True(joined)

	joined, err = st.UpsertParticipant(ctx, room.ID, "u-1")
	req.NoError(err)
	req.False(joined)

	parts, err := st.ListParticipants(ctx, room.ID)
	req.NoError(err)
	req.Len(parts, 1)
}

func Test_UpsertParticipant_Respects_Capacity(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 2)

	_, err := st.UpsertParticipant(ctx, room.ID, "u-1")
	req.NoError(err)
	_, err = st.UpsertParticipant(ctx, room.ID, "u-2")
	req.NoError(err)

	_, err = st.UpsertParticipant(ctx, room.ID, "u-3")
	req.True(errors.Is(err, domain.ErrRoomFull))

	// существующий участник проходит и при полной комнате
	joined, err := st.UpsertParticipant(ctx, room.ID, "u-2")
	req.NoError(err)
	req.False(joined)
}

func Test_TouchParticipant_Requires_Membership(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 5)

	err := st.TouchParticipant(ctx, room.ID, "u-stranger")
	req.True(errors.Is(err, domain.ErrNotInRoom))
}

func Test_AppendMessage_Assigns_Seq_And_Keeps_Order(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 5)

	var last *domain.Message
	for i := 0; i < 10; i++ {
		msg := &domain.Message{
			RoomID:  room.ID,
			UserID:  "u-1",
			Content: "сообщение",
			Type:    domain.MessageText,
		}
		req.NoError(st.AppendMessage(ctx, msg))
		req.NotEmpty(msg.ID)
		if last != nil {
			req.Greater(msg.Seq, last.Seq)
			req.False(msg.CreatedAt.Before(last.CreatedAt))
		}
		last = msg
	}

	out, _, err := st.ListMessages(ctx, room.ID, "", 100)
	req.NoError(err)
	req.Len(out, 10)
	for i := 1; i < len(out); i++ {
		req.Greater(out[i].Seq, out[i-1].Seq)
	}
}

func Test_ListMessages_Cursor_Resumes_Without_Gaps(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 5)

	for i := 0; i < 7; i++ {
		req.NoError(st.AppendMessage(ctx, &domain.Message{
			RoomID: room.ID, UserID: "u-1", Content: "msg", Type: domain.MessageText,
		}))
	}

	var all []domain.Message
	cursor := ""
	for {
		page, next, err := st.ListMessages(ctx, room.ID, cursor, 3)
		req.NoError(err)
		all = append(all, page...)
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}

	req.Len(all, 7)
	for i := 1; i < len(all); i++ {
		req.Equal(all[i-1].Seq+1, all[i].Seq)
	}
}

func Test_ListMessages_Bad_Cursor(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	room := makeRoom(t, st, "u-owner", 5)

	_, _, err := st.ListMessages(context.Background(), room.ID, "@@@", 10)
	req.True(errors.Is(err, ErrInvalidCursor))
}

func Test_AppendMessage_Validation(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 5)

	cases := []domain.Message{
		{RoomID: room.ID, UserID: "u-1", Content: "", Type: domain.MessageText},
		{RoomID: room.ID, UserID: "u-1", Content: "x", Type: "видео"},
		{RoomID: room.ID, UserID: "u-1", Content: "x", Type: domain.MessageFile},
		{RoomID: room.ID, UserID: "u-1", Content: "x", Type: domain.MessageText, FileURL: "http://f"},
	}
	for i := range cases {
		err := st.AppendMessage(ctx, &cases[i])
		req.True(errors.Is(err, domain.ErrInvalidMessage), "case %d", i)
	}

	err := st.AppendMessage(ctx, &domain.Message{
		RoomID: "no-such-room", UserID: "u-1", Content: "x", Type: domain.MessageText,
	})
	req.True(errors.Is(err, domain.ErrRoomNotFound))
}

func Test_SetPinned_Roundtrip(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 5)

	msg := &domain.Message{RoomID: room.ID, UserID: "u-1", Content: "закрепи меня", Type: domain.MessageText}
	req.NoError(st.AppendMessage(ctx, msg))

	req.NoError(st.SetPinned(ctx, msg.ID, true))
	got, err := st.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.True(got.IsPinned)

	req.NoError(st.SetPinned(ctx, msg.ID, false))
	got, err = st.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.False(got.IsPinned)

	err = st.SetPinned(ctx, "no-such-message", true)
	req.True(errors.Is(err, domain.ErrMessageNotFound))
}

func Test_ToggleReaction_Involution(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()
	room := makeRoom(t, st, "u-owner", 5)

	msg := &domain.Message{RoomID: room.ID, UserID: "u-1", Content: "реагируй", Type: domain.MessageText}
	req.NoError(st.AppendMessage(ctx, msg))

	active, err := st.ToggleReaction(ctx, msg.ID, "u-2", "👍")
	req.NoError(err)
	req.True(active)

	reactions, err := st.ListReactions(ctx, msg.ID)
	req.NoError(err)
	req.Len(reactions, 1)
	req.Equal("👍", reactions[0].Emoji)

	// повторный toggle той же пары снимает реакцию
	active, err = st.ToggleReaction(ctx, msg.ID, "u-2", "👍")
	req.NoError(err)
	req.False(active)

	reactions, err = st.ListReactions(ctx, msg.ID)
	req.NoError(err)
	req.Empty(reactions)

	_, err = st.ToggleReaction(ctx, "no-such-message", "u-2", "👍")
	req.True(errors.Is(err, domain.ErrMessageNotFound))
}

func Test_Profiles_Roundtrip(t *testing.T) {
	req := require.New(t)
	st := newTestStore(t)
	ctx := context.Background()

	req.NoError(st.UpsertProfile(ctx, domain.Profile{ID: "u-1", DisplayName: "Alice"}))
	req.NoError(st.UpsertProfile(ctx, domain.Profile{ID: "u-2", DisplayName: "Bob"}))

	profiles, err := st.GetProfiles(ctx, []string{"u-1", "u-2", "u-ghost"})
	req.NoError(err)
	req.Len(profiles, 2)
	req.Equal("Alice", profiles["u-1"].DisplayName)
	req.Equal("Bob", profiles["u-2"].DisplayName)
}
